// Package ledger implements the bilateral virtual ledger state machine. It
// consumes inbound wire messages from a Connection, drives the Balance and
// TransferLog, and exposes Send/FulfillCondition/ReplyToTransfer plus an
// event stream to the embedding plugin.
//
// The state machine is a single goroutine owning a mailbox of inbound
// messages and API calls, so at most one handler touches balance/log state
// at a time, without a global mutex. This gives every call the same
// serialization guarantee a per-account mutex map would, generalized to a
// single mailbox since this plugin tracks one balance, not many accounts.
package ledger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/interledger4go/virtual-ledger-plugin/internal/balance"
	"github.com/interledger4go/virtual-ledger-plugin/internal/condition"
	"github.com/interledger4go/virtual-ledger-plugin/internal/connection"
	"github.com/interledger4go/virtual-ledger-plugin/internal/events"
	"github.com/interledger4go/virtual-ledger-plugin/internal/ledgererr"
	"github.com/interledger4go/virtual-ledger-plugin/internal/models"
	"github.com/interledger4go/virtual-ledger-plugin/internal/transferlog"
)

// Info is the opaque currency metadata a plugin configures once and exposes
// verbatim to callers; the ledger core never interprets it.
type Info struct {
	Precision      int32
	Scale          int32
	CurrencyCode   string
	CurrencySymbol string
}

// Ledger is the core state machine for one bilateral trustline.
type Ledger struct {
	conn      connection.Connection
	bal       *balance.Balance
	log       *transferlog.Log
	validator condition.Validator
	publisher events.Publisher
	info      Info
	logger    *log.Logger

	emitter events.Emitter

	inbox   chan models.Envelope
	apiCall chan apiCallReq

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
	mu      sync.RWMutex
}

// apiCallReq is one queued call() request: fn runs on the mailbox goroutine
// and its result is delivered on done.
type apiCallReq struct {
	fn   func(context.Context) error
	done chan error
}

// New constructs a Ledger. publisher may be events.NoopPublisher{} if no
// side-channel event fan-out is wired. logger may be nil, in which case the
// standard library's default logger is used.
func New(conn connection.Connection, bal *balance.Balance, tlog *transferlog.Log, validator condition.Validator, publisher events.Publisher, info Info, logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.Default()
	}
	return &Ledger{
		conn:      conn,
		bal:       bal,
		log:       tlog,
		validator: validator,
		publisher: publisher,
		info:      info,
		logger:    logger,
		inbox:     make(chan models.Envelope, 64),
		apiCall:   make(chan apiCallReq, 64),
	}
}

// Events returns a subscription to the ledger's observable event stream.
func (l *Ledger) Events(buffer int) <-chan events.Event {
	return l.emitter.Subscribe(buffer)
}

// GetInfo returns the static currency metadata configured for this ledger.
func (l *Ledger) GetInfo() Info { return l.info }

// Connect brings the transport up and starts the mailbox loop.
func (l *Ledger) Connect(ctx context.Context) error {
	if err := l.conn.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", ledgererr.ErrTransport, err)
	}

	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		l.emitter.Publish(events.Event{Kind: events.KindConnect})
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.started = true
	l.mu.Unlock()

	l.wg.Add(2)
	go l.receiveLoop(runCtx)
	go l.mailboxLoop(runCtx)

	l.emitter.Publish(events.Event{Kind: events.KindConnect})
	return nil
}

// Disconnect tears the transport and mailbox loop down.
func (l *Ledger) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.started = false
	l.mu.Unlock()

	err := l.conn.Disconnect(ctx)
	l.wg.Wait()
	l.emitter.Publish(events.Event{Kind: events.KindDisconnect})
	if err != nil {
		return fmt.Errorf("%w: %v", ledgererr.ErrTransport, err)
	}
	return nil
}

// IsConnected reports the transport's connection state.
func (l *Ledger) IsConnected() bool { return l.conn.IsConnected() }

// GetBalance returns the current balance as a decimal string.
func (l *Ledger) GetBalance(ctx context.Context) (string, error) {
	d, err := l.bal.Get(ctx)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// ListTransfers returns every transfer this node has recorded, for
// inspection.
func (l *Ledger) ListTransfers(ctx context.Context) ([]*transferlog.Entry, error) {
	return l.log.List(ctx)
}

func (l *Ledger) receiveLoop(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-l.conn.Receive():
			if !ok {
				return
			}
			select {
			case l.inbox <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}

// mailboxLoop is the single serialization point: every inbound message and
// every public API call runs here, one at a time.
func (l *Ledger) mailboxLoop(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			l.drainAPICalls()
			return
		case env := <-l.inbox:
			l.dispatch(ctx, env)
		case req := <-l.apiCall:
			req.done <- req.fn(ctx)
		}
	}
}

// drainAPICalls fails every request already sitting in apiCall when the
// mailbox shuts down. call()'s RLock on l.mu guarantees any request that
// got as far as being enqueued did so before Disconnect's cancel, so this
// one non-blocking pass is enough to catch all of them: nothing new can
// arrive once l.started is false.
func (l *Ledger) drainAPICalls() {
	for {
		select {
		case req := <-l.apiCall:
			req.done <- fmt.Errorf("%w: ledger disconnected", ledgererr.ErrTransport)
		default:
			return
		}
	}
}

// call runs fn on the mailbox goroutine and blocks until it has, giving
// every public API method the same single-handler-at-a-time guarantee
// inbound dispatch gets. The RLock held across the enqueue keeps
// Disconnect from cancelling the mailbox until the request is either
// queued or abandoned, so a call can never be left stranded in a channel
// nobody is reading anymore.
func (l *Ledger) call(ctx context.Context, fn func(context.Context) error) error {
	l.mu.RLock()
	if !l.started {
		l.mu.RUnlock()
		return ledgererr.ErrTransport
	}

	req := apiCallReq{fn: fn, done: make(chan error, 1)}
	select {
	case l.apiCall <- req:
		l.mu.RUnlock()
	case <-ctx.Done():
		l.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Ledger) emitError(err error) {
	l.emitter.Publish(events.Event{Kind: events.KindError, Err: err})
}

func (l *Ledger) send(ctx context.Context, env models.Envelope) error {
	if err := l.conn.Send(ctx, env); err != nil {
		return fmt.Errorf("%w: %v", ledgererr.ErrTransport, err)
	}
	return nil
}

func (l *Ledger) publishSettled(tr models.Transfer, dir models.Direction, bal decimal.Decimal) {
	err := l.publisher.Publish("ledger.transfers.settled", events.TransferSettled{
		TransferID: tr.ID,
		Direction:  string(dir),
		Amount:     tr.Amount,
		Balance:    bal,
		OccurredAt: time.Now(),
	})
	if err != nil {
		l.logger.Printf("ledger: publish settled event for transfer %s failed: %v", tr.ID, err)
	}
}

// publishSettledFromStore re-reads the balance before publishing a settled
// event, since the value at hand by the time a handler finishes isn't
// guaranteed to still be current. A failed read is logged and the publish
// is skipped rather than reporting a stale or zero balance.
func (l *Ledger) publishSettledFromStore(ctx context.Context, tr models.Transfer, dir models.Direction) {
	bal, err := l.bal.Get(ctx)
	if err != nil {
		l.logger.Printf("ledger: skipping settled publish for transfer %s: balance read failed: %v", tr.ID, err)
		return
	}
	l.publishSettled(tr, dir, bal)
}

func (l *Ledger) publishVoided(tr models.Transfer, dir models.Direction, reason string) {
	err := l.publisher.Publish("ledger.transfers.settled", events.TransferVoided{
		TransferID: tr.ID,
		Direction:  string(dir),
		Reason:     reason,
		OccurredAt: time.Now(),
	})
	if err != nil {
		l.logger.Printf("ledger: publish voided event for transfer %s failed: %v", tr.ID, err)
	}
}
