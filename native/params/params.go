package params

import (
	"strings"

	"agroledger/core/types"
	"agroledger/native/common"
)

const (
	// MaxAllowedTokens bounds the allowed payment-token set.
	MaxAllowedTokens = 50
	// MaxTokenSymbolLen bounds a single token symbol.
	MaxTokenSymbolLen = 16
)

// ProgramConfig is the global settlement configuration singleton. It is
// created exactly once and mutated only by the admin authority.
type ProgramConfig struct {
	Admin           [20]byte `json:"admin"`
	LogisticsWallet [20]byte `json:"logisticsWallet"`
	Paused          bool     `json:"paused"`
	AllowedTokens   []string `json:"allowedTokens"`
}

// Clone returns a deep copy of the config.
func (c *ProgramConfig) Clone() *ProgramConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.AllowedTokens = append([]string(nil), c.AllowedTokens...)
	return &clone
}

// IsPaused satisfies common.PauseView.
func (c *ProgramConfig) IsPaused() bool { return c != nil && c.Paused }

// IsTokenAllowed reports whether the supplied symbol is in the allowed set.
func (c *ProgramConfig) IsTokenAllowed(token string) bool {
	if c == nil {
		return false
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return false
	}
	for _, allowed := range c.AllowedTokens {
		if allowed == normalized {
			return true
		}
	}
	return false
}

// NormalizeToken validates a token symbol and returns its canonical uppercase
// form.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" || len(trimmed) > MaxTokenSymbolLen {
		return "", ErrInvalidToken
	}
	return trimmed, nil
}

// State is the slice of the transactional store the config gate needs.
type State interface {
	ConfigGet() (*ProgramConfig, bool, error)
	ConfigPut(*ProgramConfig) error
	Emit(*types.Event)
}

// Mutation describes an admin update. Nil fields are left untouched.
type Mutation struct {
	Paused          *bool
	LogisticsWallet *[20]byte
	AllowedTokens   *[]string
	Admin           *[20]byte
}

func normalizeTokenSet(tokens []string) ([]string, error) {
	if len(tokens) > MaxAllowedTokens {
		return nil, ErrTooManyAllowedTokens
	}
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		normalized, err := NormalizeToken(token)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}

// Initialize creates the singleton config record. It fails if the record
// already exists or the allowed-token set exceeds its bound.
func Initialize(st State, admin, logistics [20]byte, paused bool, tokens []string) (*ProgramConfig, error) {
	if _, ok, err := st.ConfigGet(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	normalized, err := normalizeTokenSet(tokens)
	if err != nil {
		return nil, err
	}
	cfg := &ProgramConfig{
		Admin:           admin,
		LogisticsWallet: logistics,
		Paused:          paused,
		AllowedTokens:   normalized,
	}
	if err := st.ConfigPut(cfg); err != nil {
		return nil, err
	}
	st.Emit(NewInitializedEvent(cfg))
	return cfg.Clone(), nil
}

// Update applies an admin mutation. While the program is paused the only
// permitted mutation is the admin's own unpause.
func Update(st State, caller [20]byte, mut Mutation) (*ProgramConfig, error) {
	cfg, err := Config(st)
	if err != nil {
		return nil, err
	}
	if caller != cfg.Admin {
		return nil, ErrUnauthorized
	}
	if cfg.Paused && !isUnpauseOnly(mut) {
		return nil, ErrProgramPaused
	}
	if mut.Paused != nil {
		cfg.Paused = *mut.Paused
	}
	if mut.LogisticsWallet != nil {
		cfg.LogisticsWallet = *mut.LogisticsWallet
	}
	if mut.AllowedTokens != nil {
		normalized, err := normalizeTokenSet(*mut.AllowedTokens)
		if err != nil {
			return nil, err
		}
		cfg.AllowedTokens = normalized
	}
	if mut.Admin != nil {
		cfg.Admin = *mut.Admin
	}
	if err := st.ConfigPut(cfg); err != nil {
		return nil, err
	}
	st.Emit(NewUpdatedEvent(cfg))
	return cfg.Clone(), nil
}

func isUnpauseOnly(mut Mutation) bool {
	if mut.Paused == nil || *mut.Paused {
		return false
	}
	return mut.LogisticsWallet == nil && mut.AllowedTokens == nil && mut.Admin == nil
}

// Config loads the singleton, failing when it has not been initialized yet.
func Config(st State) (*ProgramConfig, error) {
	cfg, ok, err := st.ConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

// Guard is the precondition every mutating operation runs first: the config
// must exist and the program must not be paused.
func Guard(st State) error {
	cfg, err := Config(st)
	if err != nil {
		return err
	}
	return common.Guard(cfg)
}

// RequireTokenAllowed enforces the allowed-token precondition at offer
// creation time. An offer's token is never re-checked afterwards.
func RequireTokenAllowed(st State, token string) (string, error) {
	cfg, err := Config(st)
	if err != nil {
		return "", err
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return "", err
	}
	if !cfg.IsTokenAllowed(normalized) {
		return "", ErrTokenNotAllowed
	}
	return normalized, nil
}
