// Package transferlog implements the durable record of every transfer seen
// by the ledger, keyed by transfer id. At most one entry ever exists per
// id; a second differing observation is a protocol error.
package transferlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/interledger4go/virtual-ledger-plugin/internal/ledgererr"
	"github.com/interledger4go/virtual-ledger-plugin/internal/models"
	"github.com/interledger4go/virtual-ledger-plugin/internal/store"
)

// State is the lifecycle state of a logged transfer.
type State string

const (
	Prepared  State = "prepared"
	Completed State = "completed"
)

// Entry is the durable record for one transfer id.
type Entry struct {
	Transfer  models.Transfer  `json:"transfer"`
	Direction models.Direction `json:"direction"`
	State     State            `json:"state"`
}

// Log owns the "t:*" keyspace of the underlying store. Operations on a
// single id are serialized through a per-id mutex; operations on distinct
// ids may interleave freely.
//
// Store is an opaque key/value map with no enumeration primitive, so Log
// keeps its own in-process index of every id it has written, to back List.
// That index starts empty on process restart; it is meant for inspection
// of the current run, not as a durable ledger of historical transfers.
type Log struct {
	kv store.Store

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	idsMu sync.Mutex
	ids   []string
}

// New creates a TransferLog backed by kv.
func New(kv store.Store) *Log {
	return &Log{kv: kv, locks: make(map[string]*sync.Mutex)}
}

func (l *Log) lockFor(id string) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

func key(id string) string { return "t:" + id }

func (l *Log) read(ctx context.Context, id string) (*Entry, error) {
	raw, ok, err := l.kv.Get(ctx, key(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgererr.ErrStore, err)
	}
	if !ok {
		return nil, nil
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("%w: corrupt transfer log entry %q: %v", ledgererr.ErrStore, id, err)
	}
	return &e, nil
}

func (l *Log) write(ctx context.Context, id string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ledgererr.ErrStore, err)
	}
	if err := l.kv.Put(ctx, key(id), string(raw)); err != nil {
		return fmt.Errorf("%w: %v", ledgererr.ErrStore, err)
	}
	return nil
}

// Get returns the entry for id, or nil if none exists.
func (l *Log) Get(ctx context.Context, id string) (*Entry, error) {
	mu := l.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	return l.read(ctx, id)
}

func (l *Log) store(ctx context.Context, tr models.Transfer, dir models.Direction) error {
	mu := l.lockFor(tr.ID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := l.read(ctx, tr.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Direction != dir || !existing.Transfer.Equal(tr) {
			return ledgererr.ErrDuplicateTransfer
		}
		return nil // identical re-store: idempotent no-op
	}
	if err := l.write(ctx, tr.ID, Entry{Transfer: tr, Direction: dir, State: Prepared}); err != nil {
		return err
	}
	l.idsMu.Lock()
	l.ids = append(l.ids, tr.ID)
	l.idsMu.Unlock()
	return nil
}

// StoreIncoming records a newly observed incoming transfer.
func (l *Log) StoreIncoming(ctx context.Context, tr models.Transfer) error {
	return l.store(ctx, tr, models.Incoming)
}

// StoreOutgoing records a newly sent outgoing transfer.
func (l *Log) StoreOutgoing(ctx context.Context, tr models.Transfer) error {
	return l.store(ctx, tr, models.Outgoing)
}

// Complete marks the entry for id as completed. Idempotent: completing an
// already-completed entry is a no-op, and completing an absent entry is a
// no-op too (there is nothing to finalize).
func (l *Log) Complete(ctx context.Context, id string) error {
	mu := l.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	e, err := l.read(ctx, id)
	if err != nil {
		return err
	}
	if e == nil || e.State == Completed {
		return nil
	}
	e.State = Completed
	return l.write(ctx, id, *e)
}

// IsComplete reports whether id's entry is completed. An absent entry is
// not complete.
func (l *Log) IsComplete(ctx context.Context, id string) (bool, error) {
	e, err := l.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return e != nil && e.State == Completed, nil
}

// List returns every entry seen so far, in the order their ids were first
// observed. An id that has since been written elsewhere is read fresh from
// the store, so the state and direction reported are current.
func (l *Log) List(ctx context.Context) ([]*Entry, error) {
	l.idsMu.Lock()
	ids := make([]string, len(l.ids))
	copy(ids, l.ids)
	l.idsMu.Unlock()

	entries := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		e, err := l.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// GetType returns the direction recorded for id.
func (l *Log) GetType(ctx context.Context, id string) (models.Direction, error) {
	e, err := l.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", ledgererr.ErrUnknownTransfer
	}
	return e.Direction, nil
}
