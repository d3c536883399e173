package orders

import (
	"math/big"
	"time"

	"agroledger/native/escrow"
	"agroledger/native/offers"
	"agroledger/native/params"
	"agroledger/native/registry"
)

// State is the slice of the transactional store the order engine needs. It is
// a superset of the offer ledger's and custodian's views because every
// transition commits its stock and escrow side effects in the same
// transaction as the state change.
type State interface {
	offers.State
	escrow.State
	OrderGet(id [32]byte) (*Order, bool, error)
	OrderPut(*Order) error
}

// Engine validates and applies order-state transitions. It is the only place
// order state changes; the offer ledger and escrow custodian are invoked as
// side effects of a transition, never independently.
type Engine struct {
	offers    *offers.Ledger
	custodian *escrow.Custodian
	expiry    Expiry
	nowFn     func() int64
}

// NewEngine constructs an order engine bound to the supplied ledger and
// custodian.
func NewEngine(ledger *offers.Ledger, custodian *escrow.Custodian, expiry Expiry) *Engine {
	return &Engine{
		offers:    ledger,
		custodian: custodian,
		expiry:    expiry,
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Create places a new order against an offer. Stock is reserved in the same
// transaction; pickup orders also deposit the full goods amount and enter
// ESCROWED_PICKUP, delivery orders defer the deposit until a quote is accepted
// and enter PENDING_DELIVERY_QUOTE. The escrowed goods amount is fixed here
// and never recomputed. Resubmitting an identical definition returns the
// existing order.
func (e *Engine) Create(st State, caller [20]byte, offerID [32]byte, qty uint64, mode FulfillmentMode, nonce [32]byte) (*Order, error) {
	if err := params.Guard(st); err != nil {
		return nil, err
	}
	if qty == 0 {
		return nil, ErrInvalidQuantity
	}
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	customerID := registry.CustomerIDFor(caller)
	if _, ok, err := st.CustomerGet(customerID); err != nil {
		return nil, err
	} else if !ok {
		return nil, registry.ErrCustomerNotFound
	}
	offer, ok, err := st.OfferGet(offerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, offers.ErrOfferNotFound
	}
	if err := registry.RequireConfirmed(st, offer.WarehouseID, customerID); err != nil {
		return nil, err
	}
	id := OrderIDFor(customerID, offerID, nonce)
	if existing, ok, err := st.OrderGet(id); err != nil {
		return nil, err
	} else if ok {
		if existing.OfferID != offerID || existing.Quantity != qty || existing.Mode != mode {
			return nil, ErrOrderExists
		}
		return existing.Clone(), nil
	}
	if _, err := e.offers.Reserve(st, offerID, qty); err != nil {
		return nil, err
	}
	now := e.now()
	goods := new(big.Int).Mul(offer.UnitPrice, new(big.Int).SetUint64(qty))
	order := &Order{
		ID:              id,
		BuyerCustomerID: customerID,
		OfferID:         offerID,
		FarmerID:        offer.FarmerID,
		WarehouseID:     offer.WarehouseID,
		Quantity:        qty,
		Token:           offer.Token,
		UnitPrice:       new(big.Int).Set(offer.UnitPrice),
		GoodsAmount:     goods,
		Mode:            mode,
		CreatedAt:       now,
		ExpiresAt:       now + int64(e.expiry.forMode(mode)/time.Second),
	}
	switch mode {
	case ModePickup:
		if err := e.custodian.Deposit(st, id, caller, offer.Token, goods); err != nil {
			return nil, err
		}
		order.EscrowAmount = new(big.Int).Set(goods)
		order.State = StateEscrowedPickup
	case ModeDelivery:
		order.State = StatePendingDeliveryQuote
	}
	if err := st.OrderPut(order); err != nil {
		return nil, err
	}
	st.Emit(NewCreatedEvent(order))
	st.Emit(NewStateChangedEvent(order, 0, order.EscrowAmount, now))
	return order.Clone(), nil
}

// QuoteDelivery attaches a delivery fee to a pending delivery order. Only the
// warehouse authority quotes.
func (e *Engine) QuoteDelivery(st State, caller [20]byte, orderID [32]byte, quote *big.Int) (*Order, error) {
	order, err := e.loadForTransition(st, orderID)
	if err != nil {
		return nil, err
	}
	if order.State != StatePendingDeliveryQuote {
		return nil, ErrInvalidStateTransition
	}
	if err := e.requireWarehouseAuthority(st, order, caller); err != nil {
		return nil, err
	}
	if quote == nil || quote.Sign() <= 0 {
		return nil, ErrInvalidQuote
	}
	prev := order.State
	order.DeliveryQuote = new(big.Int).Set(quote)
	order.State = StateDeliveryQuoted
	if err := st.OrderPut(order); err != nil {
		return nil, err
	}
	st.Emit(NewQuotedEvent(order))
	st.Emit(NewStateChangedEvent(order, prev, nil, e.now()))
	return order.Clone(), nil
}

// AcceptQuote deposits goods plus delivery fee and moves the order to
// ESCROWED_READY. Only the buyer accepts. The deposited total becomes the
// order's escrowed amount and is never recomputed afterwards.
func (e *Engine) AcceptQuote(st State, caller [20]byte, orderID [32]byte) (*Order, error) {
	order, err := e.loadForTransition(st, orderID)
	if err != nil {
		return nil, err
	}
	if order.State != StateDeliveryQuoted {
		return nil, ErrInvalidStateTransition
	}
	if err := e.requireBuyer(st, order, caller); err != nil {
		return nil, err
	}
	total := new(big.Int).Add(order.GoodsAmount, order.DeliveryQuote)
	if err := e.custodian.Deposit(st, order.ID, caller, order.Token, total); err != nil {
		return nil, err
	}
	prev := order.State
	order.EscrowAmount = total
	order.State = StateEscrowedReady
	if err := st.OrderPut(order); err != nil {
		return nil, err
	}
	st.Emit(NewEscrowedEvent(order))
	st.Emit(NewStateChangedEvent(order, prev, total, e.now()))
	return order.Clone(), nil
}

// MarkInTransit records hand-off to transport. Only the warehouse authority
// may advance either escrowed state.
func (e *Engine) MarkInTransit(st State, caller [20]byte, orderID [32]byte) (*Order, error) {
	order, err := e.loadForTransition(st, orderID)
	if err != nil {
		return nil, err
	}
	if order.State != StateEscrowedReady && order.State != StateEscrowedPickup {
		return nil, ErrInvalidStateTransition
	}
	if err := e.requireWarehouseAuthority(st, order, caller); err != nil {
		return nil, err
	}
	prev := order.State
	order.State = StateInTransit
	if err := st.OrderPut(order); err != nil {
		return nil, err
	}
	st.Emit(NewInTransitEvent(order))
	st.Emit(NewStateChangedEvent(order, prev, nil, e.now()))
	return order.Clone(), nil
}

// Fulfill settles the escrow and terminates the order. The warehouse authority
// or the confirmed buyer may fulfill. The payout split is computed from order
// attributes now, not cached earlier; a settlement failure leaves the order in
// IN_TRANSIT.
func (e *Engine) Fulfill(st State, caller [20]byte, orderID [32]byte) (*Order, error) {
	order, err := e.loadForTransition(st, orderID)
	if err != nil {
		return nil, err
	}
	if order.State != StateInTransit {
		return nil, ErrInvalidStateTransition
	}
	warehouse, err := e.warehouse(st, order)
	if err != nil {
		return nil, err
	}
	if caller != warehouse.Authority {
		buyer, err := e.buyer(st, order)
		if err != nil {
			return nil, err
		}
		if caller != buyer.Owner {
			return nil, ErrUnauthorized
		}
		if err := registry.RequireConfirmed(st, order.WarehouseID, order.BuyerCustomerID); err != nil {
			return nil, err
		}
	}
	farmer, ok, err := st.FarmerGet(order.FarmerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, registry.ErrFarmerNotFound
	}
	payout, err := e.custodian.ComputeSplit(order.GoodsAmount, order.DeliveryQuote)
	if err != nil {
		return nil, err
	}
	recipients := escrow.Recipients{Farmer: farmer.Owner, Warehouse: warehouse.Authority}
	if err := e.custodian.Settle(st, order.ID, recipients, payout); err != nil {
		return nil, err
	}
	prev := order.State
	order.State = StateFulfilled
	if err := st.OrderPut(order); err != nil {
		return nil, err
	}
	st.Emit(NewFulfilledEvent(order))
	st.Emit(NewStateChangedEvent(order, prev, order.EscrowAmount, e.now()))
	return order.Clone(), nil
}

// Cancel terminates the order on the buyer's initiative. Before any deposit
// exists the warehouse authority may also cancel. Stock is released exactly
// once; escrowed funds, if any, are refunded in the same transaction.
func (e *Engine) Cancel(st State, caller [20]byte, orderID [32]byte) (*Order, error) {
	order, err := e.loadForTransition(st, orderID)
	if err != nil {
		return nil, err
	}
	switch order.State {
	case StatePendingDeliveryQuote, StateDeliveryQuoted:
		buyer, err := e.buyer(st, order)
		if err != nil {
			return nil, err
		}
		if caller != buyer.Owner {
			warehouse, err := e.warehouse(st, order)
			if err != nil {
				return nil, err
			}
			if caller != warehouse.Authority {
				return nil, ErrUnauthorized
			}
		}
		return e.terminate(st, order, StateCanceled, nil)
	case StateEscrowedReady, StateEscrowedPickup, StateInTransit:
		buyer, err := e.buyer(st, order)
		if err != nil {
			return nil, err
		}
		if caller != buyer.Owner {
			return nil, ErrUnauthorized
		}
		return e.terminate(st, order, StateCanceled, buyer)
	default:
		return nil, ErrInvalidStateTransition
	}
}

// Refuse terminates an escrowed order on the warehouse's initiative, refunding
// the buyer in full.
func (e *Engine) Refuse(st State, caller [20]byte, orderID [32]byte) (*Order, error) {
	order, err := e.loadForTransition(st, orderID)
	if err != nil {
		return nil, err
	}
	switch order.State {
	case StateEscrowedReady, StateEscrowedPickup, StateInTransit:
	default:
		return nil, ErrInvalidStateTransition
	}
	if err := e.requireWarehouseAuthority(st, order, caller); err != nil {
		return nil, err
	}
	buyer, err := e.buyer(st, order)
	if err != nil {
		return nil, err
	}
	return e.terminate(st, order, StateRefused, buyer)
}

// Expire applies the lazy-expiration transition. Anyone may invoke it; a
// terminal order is left untouched and returned as-is. Expiring refunds any
// existing deposit and releases the stock reservation, all in one commit.
func (e *Engine) Expire(st State, orderID [32]byte) (*Order, error) {
	if err := params.Guard(st); err != nil {
		return nil, err
	}
	order, err := e.load(st, orderID)
	if err != nil {
		return nil, err
	}
	if order.State.Terminal() {
		return order.Clone(), nil
	}
	if !order.expired(e.now()) {
		return nil, ErrNotExpired
	}
	return e.expire(st, order)
}

func (e *Engine) expire(st State, order *Order) (*Order, error) {
	if order.Deposited() {
		buyer, err := e.buyer(st, order)
		if err != nil {
			return nil, err
		}
		if err := e.custodian.Refund(st, order.ID, buyer.Owner, order.EscrowAmount); err != nil {
			return nil, err
		}
	}
	if _, err := e.offers.Release(st, order.OfferID, order.Quantity); err != nil {
		return nil, err
	}
	prev := order.State
	order.State = StateExpired
	if err := st.OrderPut(order); err != nil {
		return nil, err
	}
	st.Emit(NewExpiredEvent(order))
	st.Emit(NewStateChangedEvent(order, prev, order.EscrowAmount, e.now()))
	return order.Clone(), nil
}

// terminate applies a cancellation or refusal: refund when a deposit exists,
// release the reservation, commit the terminal state.
func (e *Engine) terminate(st State, order *Order, state OrderState, buyer *registry.Customer) (*Order, error) {
	if order.Deposited() {
		if buyer == nil {
			loaded, err := e.buyer(st, order)
			if err != nil {
				return nil, err
			}
			buyer = loaded
		}
		if err := e.custodian.Refund(st, order.ID, buyer.Owner, order.EscrowAmount); err != nil {
			return nil, err
		}
	}
	if _, err := e.offers.Release(st, order.OfferID, order.Quantity); err != nil {
		return nil, err
	}
	prev := order.State
	order.State = state
	if err := st.OrderPut(order); err != nil {
		return nil, err
	}
	switch state {
	case StateCanceled:
		st.Emit(NewCanceledEvent(order))
	case StateRefused:
		st.Emit(NewRefusedEvent(order))
	}
	st.Emit(NewStateChangedEvent(order, prev, order.EscrowAmount, e.now()))
	return order.Clone(), nil
}

// loadForTransition runs the shared preamble of every transition: the pause
// gate, the order lookup, the terminal check and the lazy expiry guard. An
// expired order surfaces ErrOrderExpired so the caller can resubmit the
// EXPIRED transition instead of the one requested.
func (e *Engine) loadForTransition(st State, orderID [32]byte) (*Order, error) {
	if err := params.Guard(st); err != nil {
		return nil, err
	}
	order, err := e.load(st, orderID)
	if err != nil {
		return nil, err
	}
	if order.State.Terminal() {
		return nil, ErrInvalidStateTransition
	}
	if order.expired(e.now()) {
		return nil, ErrOrderExpired
	}
	return order, nil
}

func (e *Engine) load(st State, orderID [32]byte) (*Order, error) {
	order, ok, err := st.OrderGet(orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (e *Engine) buyer(st State, order *Order) (*registry.Customer, error) {
	customer, ok, err := st.CustomerGet(order.BuyerCustomerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, registry.ErrCustomerNotFound
	}
	return customer, nil
}

func (e *Engine) warehouse(st State, order *Order) (*registry.Warehouse, error) {
	warehouse, ok, err := st.WarehouseGet(order.WarehouseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, registry.ErrWarehouseNotFound
	}
	return warehouse, nil
}

func (e *Engine) requireWarehouseAuthority(st State, order *Order, caller [20]byte) error {
	warehouse, err := e.warehouse(st, order)
	if err != nil {
		return err
	}
	if caller != warehouse.Authority {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) requireBuyer(st State, order *Order, caller [20]byte) error {
	buyer, err := e.buyer(st, order)
	if err != nil {
		return err
	}
	if caller != buyer.Owner {
		return ErrUnauthorized
	}
	return nil
}
