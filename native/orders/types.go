package orders

import (
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// OrderState represents the lifecycle states of an order. Once a terminal
// state is reached the order is immutable.
type OrderState uint8

const (
	StatePendingDeliveryQuote OrderState = iota + 1
	StateDeliveryQuoted
	StateEscrowedReady
	StateEscrowedPickup
	StateInTransit
	StateFulfilled
	StateCanceled
	StateRefused
	StateExpired
)

// Valid reports whether the state value is within the supported range.
func (s OrderState) Valid() bool {
	return s >= StatePendingDeliveryQuote && s <= StateExpired
}

// Terminal reports whether no further transition is permitted from s.
func (s OrderState) Terminal() bool {
	switch s {
	case StateFulfilled, StateCanceled, StateRefused, StateExpired:
		return true
	default:
		return false
	}
}

func (s OrderState) String() string {
	switch s {
	case 0:
		return "none"
	case StatePendingDeliveryQuote:
		return "pending_delivery_quote"
	case StateDeliveryQuoted:
		return "delivery_quoted"
	case StateEscrowedReady:
		return "escrowed_ready"
	case StateEscrowedPickup:
		return "escrowed_pickup"
	case StateInTransit:
		return "in_transit"
	case StateFulfilled:
		return "fulfilled"
	case StateCanceled:
		return "canceled"
	case StateRefused:
		return "refused"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// FulfillmentMode selects the entry point of the state machine at creation.
type FulfillmentMode uint8

const (
	ModePickup FulfillmentMode = iota + 1
	ModeDelivery
)

func (m FulfillmentMode) Valid() bool {
	return m == ModePickup || m == ModeDelivery
}

func (m FulfillmentMode) String() string {
	switch m {
	case ModePickup:
		return "pickup"
	case ModeDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// Order is created atomically with a stock reservation (and, in pickup mode,
// an escrow deposit) and mutated only through the engine's transitions.
type Order struct {
	ID              [32]byte        `json:"id"`
	BuyerCustomerID [32]byte        `json:"buyerCustomerId"`
	OfferID         [32]byte        `json:"offerId"`
	FarmerID        [32]byte        `json:"farmerId"`
	WarehouseID     [32]byte        `json:"warehouseId"`
	Quantity        uint64          `json:"quantity"`
	Token           string          `json:"token"`
	UnitPrice       *big.Int        `json:"unitPrice"`
	GoodsAmount     *big.Int        `json:"goodsAmount"`
	EscrowAmount    *big.Int        `json:"escrowAmount"`
	DeliveryQuote   *big.Int        `json:"deliveryQuote,omitempty"`
	Mode            FulfillmentMode `json:"mode"`
	State           OrderState      `json:"state"`
	CreatedAt       int64           `json:"createdAt"`
	ExpiresAt       int64           `json:"expiresAt"`
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.UnitPrice = cloneBig(o.UnitPrice)
	clone.GoodsAmount = cloneBig(o.GoodsAmount)
	if o.EscrowAmount != nil {
		clone.EscrowAmount = new(big.Int).Set(o.EscrowAmount)
	}
	if o.DeliveryQuote != nil {
		clone.DeliveryQuote = new(big.Int).Set(o.DeliveryQuote)
	}
	return &clone
}

// Deposited reports whether an escrow deposit exists for the order.
func (o *Order) Deposited() bool {
	return o != nil && o.EscrowAmount != nil && o.EscrowAmount.Sign() > 0
}

func (o *Order) expired(now int64) bool {
	return o != nil && !o.State.Terminal() && now > o.ExpiresAt
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// OrderIDFor derives the deterministic identifier for an order from its buyer,
// offer and a caller-supplied nonce.
func OrderIDFor(buyerCustomerID, offerID, nonce [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("order"), buyerCustomerID[:], offerID[:], nonce[:])
}

// Expiry holds the passive per-mode order lifetimes. There is no active timer:
// the deadline is compared against current time at transition time.
type Expiry struct {
	Pickup   time.Duration
	Delivery time.Duration
}

// Validate rejects non-positive lifetimes.
func (e Expiry) Validate() error {
	if e.Pickup <= 0 || e.Delivery <= 0 {
		return ErrInvalidExpiry
	}
	return nil
}

func (e Expiry) forMode(mode FulfillmentMode) time.Duration {
	if mode == ModeDelivery {
		return e.Delivery
	}
	return e.Pickup
}
