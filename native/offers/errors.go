package offers

import "errors"

var (
	ErrOfferNotFound        = errors.New("offers: offer not found")
	ErrOfferExists          = errors.New("offers: identifier already exists with different definition")
	ErrOfferInactive        = errors.New("offers: offer inactive")
	ErrInsufficientStock    = errors.New("offers: insufficient stock")
	ErrStockReleaseOverflow = errors.New("offers: stock release exceeds total quantity")
	ErrInvalidPrice         = errors.New("offers: unit price must be positive")
	ErrInvalidQuantity      = errors.New("offers: quantity must be positive")
	ErrUnauthorized         = errors.New("offers: unauthorized caller")
)
