package offers

import (
	"math/big"
	"strings"
	"time"

	"agroledger/native/params"
	"agroledger/native/registry"
)

// State is the slice of the transactional store the offer ledger needs.
type State interface {
	registry.State
	OfferGet(id [32]byte) (*LotOffer, bool, error)
	OfferPut(*LotOffer) error
}

// Ledger enforces the stock-conservation invariant for lot offers: at every
// observable boundary 0 <= QtyRemaining <= QtyTotal, and QtyRemaining plus the
// quantities held by in-flight orders equals QtyTotal.
type Ledger struct {
	nowFn func() int64
}

// NewLedger constructs an offer ledger using wall-clock time.
func NewLedger() *Ledger {
	return &Ledger{nowFn: func() int64 { return time.Now().Unix() }}
}

// SetNowFunc overrides the time source, primarily used in tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

func (l *Ledger) now() int64 {
	if l == nil || l.nowFn == nil {
		return time.Now().Unix()
	}
	return l.nowFn()
}

// Create lists a new lot offer for the calling farmer. The payment token must
// be in the allowed set; it is checked here and never re-checked afterwards.
// Resubmitting an identical definition returns the existing offer.
func (l *Ledger) Create(st State, caller [20]byte, farmerID [32]byte, token string, unitPrice *big.Int, qtyTotal uint64, metadataURI string, nonce [32]byte) (*LotOffer, error) {
	if err := params.Guard(st); err != nil {
		return nil, err
	}
	farmer, ok, err := st.FarmerGet(farmerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, registry.ErrFarmerNotFound
	}
	if farmer.Owner != caller {
		return nil, ErrUnauthorized
	}
	normalizedToken, err := params.RequireTokenAllowed(st, token)
	if err != nil {
		return nil, err
	}
	if unitPrice == nil || unitPrice.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if qtyTotal == 0 {
		return nil, ErrInvalidQuantity
	}
	trimmedURI := strings.TrimSpace(metadataURI)
	if len(trimmedURI) > registry.MaxURILen {
		return nil, registry.ErrURITooLong
	}
	id := OfferIDFor(farmerID, nonce)
	if existing, ok, err := st.OfferGet(id); err != nil {
		return nil, err
	} else if ok {
		if existing.FarmerID != farmerID || existing.Token != normalizedToken ||
			existing.UnitPrice.Cmp(unitPrice) != 0 || existing.QtyTotal != qtyTotal ||
			existing.MetadataURI != trimmedURI {
			return nil, ErrOfferExists
		}
		return existing.Clone(), nil
	}
	offer := &LotOffer{
		ID:           id,
		FarmerID:     farmerID,
		WarehouseID:  farmer.WarehouseID,
		Token:        normalizedToken,
		UnitPrice:    new(big.Int).Set(unitPrice),
		QtyTotal:     qtyTotal,
		QtyRemaining: qtyTotal,
		Active:       true,
		MetadataURI:  trimmedURI,
		CreatedAt:    l.now(),
	}
	if err := st.OfferPut(offer); err != nil {
		return nil, err
	}
	st.Emit(NewOfferCreatedEvent(offer))
	return offer.Clone(), nil
}

// Reserve decrements the available quantity. It is invoked only by the order
// engine at order creation, inside the same transaction that creates the
// order. A sold-out offer stops accepting reservations until stock is
// released back.
func (l *Ledger) Reserve(st State, offerID [32]byte, qty uint64) (*LotOffer, error) {
	offer, err := l.load(st, offerID)
	if err != nil {
		return nil, err
	}
	if qty == 0 {
		return nil, ErrInvalidQuantity
	}
	if !offer.Active {
		return nil, ErrOfferInactive
	}
	if qty > offer.QtyRemaining {
		return nil, ErrInsufficientStock
	}
	offer.QtyRemaining -= qty
	if offer.QtyRemaining == 0 {
		offer.Active = false
	}
	if err := st.OfferPut(offer); err != nil {
		return nil, err
	}
	st.Emit(NewStockReservedEvent(offer, qty))
	return offer.Clone(), nil
}

// Release returns reserved quantity to the offer. Exceeding QtyTotal signals a
// bookkeeping bug elsewhere and fails loudly rather than clamping. A sold-out
// offer becomes listable again when stock returns.
func (l *Ledger) Release(st State, offerID [32]byte, qty uint64) (*LotOffer, error) {
	offer, err := l.load(st, offerID)
	if err != nil {
		return nil, err
	}
	if qty == 0 {
		return nil, ErrInvalidQuantity
	}
	if offer.QtyRemaining+qty > offer.QtyTotal {
		return nil, ErrStockReleaseOverflow
	}
	wasSoldOut := offer.QtyRemaining == 0 && !offer.Active
	offer.QtyRemaining += qty
	if wasSoldOut {
		offer.Active = true
	}
	if err := st.OfferPut(offer); err != nil {
		return nil, err
	}
	st.Emit(NewStockReleasedEvent(offer, qty))
	return offer.Clone(), nil
}

// Deactivate withdraws the offer from new reservations. Orders already in
// flight are unaffected. The farmer owner or the warehouse authority may
// deactivate.
func (l *Ledger) Deactivate(st State, caller [20]byte, offerID [32]byte) (*LotOffer, error) {
	if err := params.Guard(st); err != nil {
		return nil, err
	}
	offer, err := l.load(st, offerID)
	if err != nil {
		return nil, err
	}
	farmer, ok, err := st.FarmerGet(offer.FarmerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, registry.ErrFarmerNotFound
	}
	warehouse, ok, err := st.WarehouseGet(offer.WarehouseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, registry.ErrWarehouseNotFound
	}
	if caller != farmer.Owner && caller != warehouse.Authority {
		return nil, ErrUnauthorized
	}
	if !offer.Active {
		return offer.Clone(), nil
	}
	offer.Active = false
	if err := st.OfferPut(offer); err != nil {
		return nil, err
	}
	st.Emit(NewOfferDeactivatedEvent(offer))
	return offer.Clone(), nil
}

func (l *Ledger) load(st State, offerID [32]byte) (*LotOffer, error) {
	offer, ok, err := st.OfferGet(offerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotFound
	}
	return offer, nil
}
