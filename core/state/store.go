package state

import (
	"fmt"
	"sync"

	"agroledger/core/events"
	"agroledger/core/types"
	"agroledger/storage"
)

// Store is the transactional entity arena backing every engine. Each mutating
// request runs as a single Update transaction: reads record the version they
// observed, writes are staged, and commit re-validates every read under the
// store lock before applying anything. A losing race returns ErrConflict and
// leaves no observable effect, so callers can safely resubmit.
type Store struct {
	mu       sync.Mutex
	db       storage.Database
	versions map[string]uint64
	emitter  events.Emitter
	outbox   *storage.Outbox
}

// NewStore creates a store over the supplied database backend.
func NewStore(db storage.Database) *Store {
	return &Store{
		db:       db,
		versions: make(map[string]uint64),
		emitter:  events.NoopEmitter{},
	}
}

// SetEmitter configures the post-commit event destination. Passing nil resets
// it to a no-op implementation.
func (s *Store) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

// SetOutbox configures the transactional outbox events are appended to as part
// of commit.
func (s *Store) SetOutbox(outbox *storage.Outbox) { s.outbox = outbox }

// View runs fn against a read-only transaction. No commit happens and no
// conflict detection is performed beyond the consistency of individual reads.
func (s *Store) View(fn func(*Txn) error) error {
	txn := s.begin(true)
	return fn(txn)
}

// Update runs fn against a read-write transaction and commits it if fn returns
// nil. On any error the staged writes and buffered events are discarded
// wholesale; there is no partial commit.
func (s *Store) Update(fn func(*Txn) error) error {
	txn := s.begin(false)
	if err := fn(txn); err != nil {
		return err
	}
	committed, err := s.commit(txn)
	if err != nil {
		return err
	}
	for _, evt := range committed {
		s.emitter.Emit(events.Wrap(evt))
	}
	return nil
}

func (s *Store) begin(readOnly bool) *Txn {
	return &Txn{
		store:    s,
		readOnly: readOnly,
		reads:    make(map[string]uint64),
		writes:   make(map[string][]byte),
	}
}

// commit validates the transaction's read set and applies its writes and
// events atomically with respect to other transactions. Events are returned to
// the caller for delivery only after the commit has succeeded.
func (s *Store) commit(t *Txn) ([]*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, ver := range t.reads {
		if s.versions[key] != ver {
			return nil, ErrConflict
		}
	}
	batch := make([]storage.KV, 0, len(t.writes))
	for key, raw := range t.writes {
		batch = append(batch, storage.KV{Key: hashKey(key), Value: raw})
	}
	if err := s.db.WriteBatch(batch); err != nil {
		return nil, fmt.Errorf("state: write batch: %w", err)
	}
	if s.outbox != nil && len(t.events) > 0 {
		if err := s.outbox.Append(t.events...); err != nil {
			return nil, fmt.Errorf("state: append outbox: %w", err)
		}
	}
	for key := range t.writes {
		s.versions[key]++
	}
	return t.events, nil
}

func (s *Store) versionOf(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[key]
}
