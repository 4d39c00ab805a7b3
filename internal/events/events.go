// Package events defines the ledger's observable event surface and a
// side-channel publisher that forwards settlement events to Kafka for
// downstream reconciliation consumers, independent of the peer-to-peer
// connection.
package events

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/interledger4go/virtual-ledger-plugin/internal/models"
)

// Kind enumerates the events the ledger state machine emits.
type Kind string

const (
	KindConnect                      Kind = "connect"
	KindDisconnect                   Kind = "disconnect"
	KindIncoming                     Kind = "incoming"
	KindAccept                       Kind = "accept"
	KindReject                       Kind = "reject"
	KindReply                        Kind = "reply"
	KindFulfillExecutionCondition    Kind = "fulfill_execution_condition"
	KindFulfillCancellationCondition Kind = "fulfill_cancellation_condition"
	KindFulfillment                  Kind = "fulfillment"
	KindError                        Kind = "error"

	// Debug events, observable hooks for tests.
	KindRepeatTransfer   Kind = "_repeatTransfer"
	KindFalseAcknowledge Kind = "_falseAcknowledge"
	KindBalanceChanged   Kind = "_balanceChanged"
)

// Event is the payload delivered to subscribers. Fields not relevant to a
// given Kind are left zero.
type Event struct {
	Kind     Kind
	Transfer models.Transfer
	Message  []byte
	Err      error
	Balance  decimal.Decimal
}

// Emitter is a bounded-channel fan-out of Events to subscribers. Publish
// never blocks on a slow subscriber: it drops the event for that
// subscriber instead, so the owner's critical section always releases
// before subscribers run.
type Emitter struct {
	mu   sync.Mutex
	subs []chan Event
}

// Subscribe registers a new listener and returns its channel.
func (e *Emitter) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()
	return ch
}

// Publish fans an event out to all subscribers.
func (e *Emitter) Publish(ev Event) {
	e.mu.Lock()
	subs := e.subs
	e.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// TransferSettled is the Kafka payload for a transfer whose terminal state
// carried a nonzero balance effect (unconditional accept, or conditional
// execute).
type TransferSettled struct {
	TransferID string          `json:"transfer_id"`
	Direction  string          `json:"direction"`
	Amount     decimal.Decimal `json:"amount"`
	Balance    decimal.Decimal `json:"balance"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// TransferVoided is the Kafka payload for a transfer that completed with no
// balance effect (reject, or conditional cancel).
type TransferVoided struct {
	TransferID string    `json:"transfer_id"`
	Direction  string    `json:"direction"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}
