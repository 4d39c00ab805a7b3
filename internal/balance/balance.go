// Package balance implements the single signed decimal running balance a
// bilateral trustline tracks: a value guarded by [min, max] credit limits,
// persisted through a Store and observable through change notifications.
package balance

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/interledger4go/virtual-ledger-plugin/internal/ledgererr"
	"github.com/interledger4go/virtual-ledger-plugin/internal/store"
)

const defaultKey = "balance"

// Changed is the payload delivered to balance-change subscribers.
type Changed struct {
	Balance decimal.Decimal
}

// Balance is the trustline's running balance. Min is the credit the peer
// extends to us (typically <= 0), Max is the credit we extend to the peer
// (typically >= 0). All reads and writes go through a single mutex so a
// get-then-put is always atomic with respect to other callers.
type Balance struct {
	mu  sync.Mutex
	kv  store.Store
	key string
	min decimal.Decimal
	max decimal.Decimal

	subsMu sync.Mutex
	subs   []chan Changed
}

// New creates a Balance backed by kv, bounded by [min, max].
func New(kv store.Store, min, max decimal.Decimal) *Balance {
	return &Balance{kv: kv, key: defaultKey, min: min, max: max}
}

// Subscribe returns a bounded channel of balance-change notifications. If
// the subscriber falls behind, notifications are dropped rather than
// blocking the balance's critical section, so a slow observer never holds
// up the owner.
func (b *Balance) Subscribe() <-chan Changed {
	ch := make(chan Changed, 8)
	b.subsMu.Lock()
	b.subs = append(b.subs, ch)
	b.subsMu.Unlock()
	return ch
}

func (b *Balance) notify(c Changed) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Get returns the current balance, lazily initializing to zero if the store
// has never been written to.
func (b *Balance) Get(ctx context.Context) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(ctx)
}

func (b *Balance) get(ctx context.Context) (decimal.Decimal, error) {
	raw, ok, err := b.kv.Get(ctx, b.key)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ledgererr.ErrStore, err)
	}
	if !ok {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: corrupt balance value %q", ledgererr.ErrStore, raw)
	}
	return d, nil
}

func (b *Balance) put(ctx context.Context, d decimal.Decimal) error {
	if err := b.kv.Put(ctx, b.key, d.String()); err != nil {
		return fmt.Errorf("%w: %v", ledgererr.ErrStore, err)
	}
	return nil
}

// Add increments the balance by amount, failing with ErrOverLimit if the
// result would exceed max.
func (b *Balance) Add(ctx context.Context, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, err := b.get(ctx)
	if err != nil {
		return err
	}
	next := cur.Add(amount)
	if next.GreaterThan(b.max) {
		return ledgererr.ErrOverLimit
	}
	if err := b.put(ctx, next); err != nil {
		return err
	}
	b.notify(Changed{Balance: next})
	return nil
}

// Sub decrements the balance by amount, failing with ErrUnderLimit if the
// result would fall below min.
func (b *Balance) Sub(ctx context.Context, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, err := b.get(ctx)
	if err != nil {
		return err
	}
	next := cur.Sub(amount)
	if next.LessThan(b.min) {
		return ledgererr.ErrUnderLimit
	}
	if err := b.put(ctx, next); err != nil {
		return err
	}
	b.notify(Changed{Balance: next})
	return nil
}

// IsValidIncoming is a pure predicate: true when amount is a well-formed
// positive decimal and crediting it would not push the balance past max.
func (b *Balance) IsValidIncoming(ctx context.Context, amount decimal.Decimal) (bool, error) {
	if amount.IsNegative() || amount.IsZero() {
		return false, nil
	}
	b.mu.Lock()
	cur, err := b.get(ctx)
	b.mu.Unlock()
	if err != nil {
		return false, err
	}
	return cur.Add(amount).LessThanOrEqual(b.max), nil
}

// Min returns the configured lower credit bound.
func (b *Balance) Min() decimal.Decimal { return b.min }

// Max returns the configured upper credit bound.
func (b *Balance) Max() decimal.Decimal { return b.max }
