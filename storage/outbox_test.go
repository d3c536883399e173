package storage

import (
	"path/filepath"
	"testing"

	"agroledger/core/types"
)

func newTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	outbox, err := NewOutbox(filepath.Join(t.TempDir(), "outbox.db"))
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	t.Cleanup(func() { _ = outbox.Close() })
	return outbox
}

func event(kind, orderID string) *types.Event {
	return &types.Event{Type: kind, Attributes: map[string]string{"orderId": orderID}}
}

func TestOutboxAppendAndDrain(t *testing.T) {
	outbox := newTestOutbox(t)

	if err := outbox.Append(); err != nil {
		t.Fatalf("empty append: %v", err)
	}
	if err := outbox.Append(
		event("market.order_created", "aa"),
		nil,
		event("market.order_state_changed", "aa"),
		event("market.order_fulfilled", "bb"),
	); err != nil {
		t.Fatalf("append: %v", err)
	}

	pending, err := outbox.Pending(0, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending = %d rows, want 3", len(pending))
	}
	if pending[0].Event.Type != "market.order_created" || pending[0].Event.Attributes["orderId"] != "aa" {
		t.Fatalf("first entry = %+v", pending[0].Event)
	}
	for i := 1; i < len(pending); i++ {
		if pending[i].ID <= pending[i-1].ID {
			t.Fatalf("entries out of insertion order: %d then %d", pending[i-1].ID, pending[i].ID)
		}
	}

	// Drain the first two, leave the third pending.
	if err := outbox.MarkDelivered(pending[1].ID); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	rest, err := outbox.Pending(0, 10)
	if err != nil {
		t.Fatalf("pending after drain: %v", err)
	}
	if len(rest) != 1 || rest[0].Event.Type != "market.order_fulfilled" {
		t.Fatalf("rest = %+v", rest)
	}
}

func TestOutboxPendingAfterCursor(t *testing.T) {
	outbox := newTestOutbox(t)
	if err := outbox.Append(event("a", "1"), event("b", "2"), event("c", "3")); err != nil {
		t.Fatalf("append: %v", err)
	}
	all, err := outbox.Pending(0, 2)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("limit ignored: %d rows", len(all))
	}
	tail, err := outbox.Pending(all[1].ID, 10)
	if err != nil {
		t.Fatalf("pending after cursor: %v", err)
	}
	if len(tail) != 1 || tail[0].Event.Type != "c" {
		t.Fatalf("tail = %+v", tail)
	}
}
