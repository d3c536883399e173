package models

import (
	"time"

	"gorm.io/gorm"
)

// IdempotencyKey stores request idempotency metadata so retried POSTs replay
// the original response instead of re-running the transition. RequestHash
// fingerprints the original payload; reusing a key with a different body is a
// client error, not a replay.
type IdempotencyKey struct {
	Key         string `gorm:"primaryKey;size:128"`
	RequestID   string `gorm:"size:64"`
	Method      string `gorm:"size:8"`
	Path        string `gorm:"size:255"`
	RequestHash string `gorm:"size:64"`
	Status      int
	Response    string `gorm:"type:text"`
	CreatedAt   time.Time
}

// AuditLog records who invoked which transition and what it returned.
type AuditLog struct {
	ID        uint   `gorm:"primaryKey"`
	RequestID string `gorm:"size:64;index"`
	Caller    string `gorm:"size:42;index"`
	Method    string `gorm:"size:8"`
	Path      string `gorm:"size:255"`
	Status    int
	CreatedAt time.Time
}

// AutoMigrate performs all schema migrations for the gateway.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&IdempotencyKey{},
		&AuditLog{},
	)
}
