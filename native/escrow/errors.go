package escrow

import "errors"

var (
	ErrInsufficientFunds = errors.New("escrow: insufficient balance")
	ErrSettlementFailure = errors.New("escrow: settlement transfer failed")
	ErrVaultMismatch     = errors.New("escrow: vault balance does not match escrowed amount")
	ErrVaultNotFound     = errors.New("escrow: vault not found")
	ErrInvalidAmount     = errors.New("escrow: amount must be positive")
	ErrInvalidSplit      = errors.New("escrow: farmer share bps out of range")
)
