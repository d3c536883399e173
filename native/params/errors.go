package params

import (
	"errors"

	"agroledger/native/common"
)

var (
	ErrNotInitialized       = errors.New("params: program config not initialized")
	ErrAlreadyInitialized   = errors.New("params: program config already initialized")
	ErrTooManyAllowedTokens = errors.New("params: too many allowed tokens")
	ErrUnauthorized         = errors.New("params: caller is not the admin")
	ErrTokenNotAllowed      = errors.New("params: token not in allowed list")
	ErrInvalidToken         = errors.New("params: invalid token symbol")

	// ErrProgramPaused is shared with every other module through native/common.
	ErrProgramPaused = common.ErrProgramPaused
)
