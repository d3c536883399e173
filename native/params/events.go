package params

import (
	"encoding/hex"
	"strconv"
	"strings"

	"agroledger/core/types"
)

const (
	EventTypeConfigInitialized = "market.config.initialized"
	EventTypeConfigUpdated     = "market.config.updated"
)

// NewInitializedEvent returns the canonical payload for config creation.
func NewInitializedEvent(cfg *ProgramConfig) *types.Event {
	return newConfigEvent(EventTypeConfigInitialized, cfg)
}

// NewUpdatedEvent returns the canonical payload for an admin update.
func NewUpdatedEvent(cfg *ProgramConfig) *types.Event {
	return newConfigEvent(EventTypeConfigUpdated, cfg)
}

func newConfigEvent(eventType string, cfg *ProgramConfig) *types.Event {
	attrs := make(map[string]string)
	if cfg == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["admin"] = hex.EncodeToString(cfg.Admin[:])
	attrs["logisticsWallet"] = hex.EncodeToString(cfg.LogisticsWallet[:])
	attrs["paused"] = strconv.FormatBool(cfg.Paused)
	attrs["allowedTokens"] = strings.Join(cfg.AllowedTokens, ",")
	return &types.Event{Type: eventType, Attributes: attrs}
}
