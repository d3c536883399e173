package orders

import "errors"

var (
	ErrOrderNotFound          = errors.New("orders: order not found")
	ErrOrderExists            = errors.New("orders: identifier already exists with different definition")
	ErrInvalidStateTransition = errors.New("orders: state transition not allowed")
	ErrOrderExpired           = errors.New("orders: order expired")
	ErrNotExpired             = errors.New("orders: expiry deadline not reached")
	ErrInvalidQuote           = errors.New("orders: delivery quote must be positive")
	ErrInvalidQuantity        = errors.New("orders: quantity must be positive")
	ErrInvalidMode            = errors.New("orders: unknown fulfillment mode")
	ErrUnauthorized           = errors.New("orders: unauthorized caller")
	ErrInvalidExpiry          = errors.New("orders: expiry durations must be positive")
)
