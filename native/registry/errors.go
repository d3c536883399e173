package registry

import "errors"

var (
	ErrWarehouseExists   = errors.New("registry: warehouse already exists")
	ErrWarehouseNotFound = errors.New("registry: warehouse not found")
	ErrWarehouseInactive = errors.New("registry: warehouse inactive")
	ErrFarmerExists      = errors.New("registry: farmer already exists")
	ErrFarmerNotFound    = errors.New("registry: farmer not found")
	ErrCustomerExists    = errors.New("registry: customer already exists")
	ErrCustomerNotFound  = errors.New("registry: customer not found")
	ErrNotConfirmed      = errors.New("registry: customer not confirmed for warehouse")
	ErrUnauthorized      = errors.New("registry: caller is not the record authority")
	ErrNameTooLong       = errors.New("registry: name exceeds bound")
	ErrURITooLong        = errors.New("registry: metadata uri exceeds bound")
	ErrNameRequired      = errors.New("registry: name required")
)
