package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"agroledger/core/types"
)

// Outbox persists lifecycle events in the same commit as the state change that
// produced them. External indexers drain it with Pending/MarkDelivered; rows
// only become visible after the owning operation committed.
type Outbox struct {
	db *sql.DB
}

// OutboxEntry is a single undelivered event row.
type OutboxEntry struct {
	ID        int64
	Event     *types.Event
	CreatedAt time.Time
}

// NewOutbox opens (or creates) the sqlite-backed outbox at the supplied path.
func NewOutbox(path string) (*Outbox, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	out := &Outbox{db: db}
	if err := out.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return out, nil
}

func (o *Outbox) init() error {
	schema := `CREATE TABLE IF NOT EXISTS outbox (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        event_type TEXT NOT NULL,
        attributes BLOB NOT NULL,
        delivered INTEGER NOT NULL DEFAULT 0,
        created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );`
	if _, err := o.db.Exec(schema); err != nil {
		return fmt.Errorf("outbox: init schema: %w", err)
	}
	return nil
}

// Append writes all events inside a single sqlite transaction. Either every
// event becomes visible or none do.
func (o *Outbox) Append(events ...*types.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := o.db.Begin()
	if err != nil {
		return fmt.Errorf("outbox: begin: %w", err)
	}
	for _, evt := range events {
		if evt == nil {
			continue
		}
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("outbox: encode attributes: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO outbox (event_type, attributes) VALUES (?, ?)`, evt.Type, attrs); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("outbox: insert: %w", err)
		}
	}
	return tx.Commit()
}

// Pending returns up to limit undelivered entries with IDs greater than afterID
// in insertion order.
func (o *Outbox) Pending(afterID int64, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := o.db.Query(
		`SELECT id, event_type, attributes, created_at FROM outbox
         WHERE delivered = 0 AND id > ? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: query pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			entry     OutboxEntry
			eventType string
			rawAttrs  []byte
		)
		if err := rows.Scan(&entry.ID, &eventType, &rawAttrs, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("outbox: scan: %w", err)
		}
		attrs := make(map[string]string)
		if len(rawAttrs) > 0 {
			if err := json.Unmarshal(rawAttrs, &attrs); err != nil {
				return nil, fmt.Errorf("outbox: decode attributes: %w", err)
			}
		}
		entry.Event = &types.Event{Type: eventType, Attributes: attrs}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkDelivered flags all entries up to and including id as consumed.
func (o *Outbox) MarkDelivered(id int64) error {
	_, err := o.db.Exec(`UPDATE outbox SET delivered = 1 WHERE id <= ? AND delivered = 0`, id)
	if err != nil {
		return fmt.Errorf("outbox: mark delivered: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (o *Outbox) Close() error {
	return o.db.Close()
}
