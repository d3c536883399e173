package state

import (
	"encoding/json"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"agroledger/core/types"
	"agroledger/storage"
)

// Txn stages the reads, writes and events of a single atomic operation. It is
// not safe for concurrent use; every operation builds its own transaction.
type Txn struct {
	store    *Store
	readOnly bool
	reads    map[string]uint64
	writes   map[string][]byte
	events   []*types.Event
}

// Emit buffers an event for atomic emission with the transaction commit.
func (t *Txn) Emit(evt *types.Event) {
	if evt == nil {
		return
	}
	t.events = append(t.events, evt)
}

func hashKey(key string) []byte {
	return ethcrypto.Keccak256([]byte(key))
}

// getRaw reads a record, recording the version observed the first time a key
// is touched. Re-reading a key whose version moved underneath the transaction
// surfaces ErrConflict immediately rather than at commit.
func (t *Txn) getRaw(key string) ([]byte, bool, error) {
	if raw, ok := t.writes[key]; ok {
		return raw, raw != nil, nil
	}
	ver := t.store.versionOf(key)
	if prev, seen := t.reads[key]; seen {
		if prev != ver {
			return nil, false, ErrConflict
		}
	} else if !t.readOnly {
		t.reads[key] = ver
	}
	raw, err := t.store.db.Get(hashKey(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("state: read %s: %w", key, err)
	}
	return raw, true, nil
}

func (t *Txn) getJSON(key string, v any) (bool, error) {
	raw, ok, err := t.getRaw(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (t *Txn) putJSON(key string, v any) error {
	if t.readOnly {
		return ErrReadOnly
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	t.writes[key] = raw
	return nil
}
