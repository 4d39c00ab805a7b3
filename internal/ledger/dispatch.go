package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/interledger4go/virtual-ledger-plugin/internal/events"
	"github.com/interledger4go/virtual-ledger-plugin/internal/ledgererr"
	"github.com/interledger4go/virtual-ledger-plugin/internal/models"
	"github.com/interledger4go/virtual-ledger-plugin/internal/transferlog"
)

// dispatch routes one inbound wire envelope to its handler. It always runs
// on the mailbox goroutine, so it is the only place balance/log mutations
// for inbound messages happen.
func (l *Ledger) dispatch(ctx context.Context, env models.Envelope) {
	switch env.Type {
	case models.MsgTransfer:
		var tr models.Transfer
		if err := json.Unmarshal(env.Payload, &tr); err != nil {
			l.emitError(fmt.Errorf("%w: %v", ledgererr.ErrInvalidMessage, err))
			return
		}
		l.handleIncomingTransfer(ctx, tr)

	case models.MsgAcknowledge:
		var p models.AcknowledgePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			l.emitError(fmt.Errorf("%w: %v", ledgererr.ErrInvalidMessage, err))
			return
		}
		l.handleAcknowledge(ctx, p)

	case models.MsgReject:
		var p models.RejectPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			l.emitError(fmt.Errorf("%w: %v", ledgererr.ErrInvalidMessage, err))
			return
		}
		l.handleReject(ctx, p)

	case models.MsgReply:
		var p models.ReplyPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			l.emitError(fmt.Errorf("%w: %v", ledgererr.ErrInvalidMessage, err))
			return
		}
		l.emitter.Publish(events.Event{Kind: events.KindReply, Transfer: p.Transfer, Message: p.Message})

	case models.MsgFulfillment:
		var p models.FulfillmentPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			l.emitError(fmt.Errorf("%w: %v", ledgererr.ErrInvalidMessage, err))
			return
		}
		l.handleFulfillmentMessage(ctx, p)

	default:
		l.emitError(fmt.Errorf("%w: unrecognized type %q", ledgererr.ErrInvalidMessage, env.Type))
	}
}

// handleIncomingTransfer validates and accepts or rejects a transfer the
// peer just sent.
func (l *Ledger) handleIncomingTransfer(ctx context.Context, tr models.Transfer) {
	existing, err := l.log.Get(ctx, tr.ID)
	if err != nil {
		l.emitError(err)
		return
	}
	if existing != nil {
		l.emitter.Publish(events.Event{Kind: events.KindRepeatTransfer, Transfer: tr})
		l.rejectTransfer(ctx, tr, []byte("repeat transfer id"))
		return
	}

	if err := l.log.StoreIncoming(ctx, tr); err != nil {
		l.emitError(err)
		return
	}

	// Observers see the transfer before accept/reject is decided.
	l.emitter.Publish(events.Event{Kind: events.KindIncoming, Transfer: tr})

	if tr.Amount.IsNegative() || tr.Amount.IsZero() {
		l.rejectTransfer(ctx, tr, []byte("invalid amount"))
		return
	}

	valid, err := l.bal.IsValidIncoming(ctx, tr.Amount)
	if err != nil {
		l.emitError(err)
		return
	}
	if !valid {
		l.rejectTransfer(ctx, tr, []byte("credit limit exceeded"))
		return
	}

	if !tr.IsConditional() {
		if err := l.bal.Add(ctx, tr.Amount); err != nil {
			l.emitError(err)
			return
		}
		l.emitter.Publish(events.Event{Kind: events.KindBalanceChanged})
		// The log entry is marked complete before the acknowledge goes out.
		if err := l.log.Complete(ctx, tr.ID); err != nil {
			l.emitError(err)
			return
		}
	}

	if err := l.acknowledgeTransfer(ctx, tr, []byte("transfer accepted")); err != nil {
		l.emitError(err)
		return
	}

	if !tr.IsConditional() {
		l.publishSettledFromStore(ctx, tr, models.Incoming)
	}
	// Conditional transfers stay "prepared": balance moves only on
	// execute-fulfillment.
}

func (l *Ledger) rejectTransfer(ctx context.Context, tr models.Transfer, reason []byte) {
	// The log entry is marked complete before the reject goes out, so a
	// retransmitted reject can never race a later duplicate of this transfer.
	if err := l.log.Complete(ctx, tr.ID); err != nil {
		l.emitError(err)
		return
	}
	env, err := models.NewRejectEnvelope(models.RejectPayload{Transfer: tr, Message: reason})
	if err != nil {
		l.emitError(err)
		return
	}
	if err := l.send(ctx, env); err != nil {
		l.emitError(err)
		return
	}
	l.emitter.Publish(events.Event{Kind: events.KindReject, Transfer: tr, Message: reason})
	l.publishVoided(tr, models.Incoming, string(reason))
}

func (l *Ledger) acknowledgeTransfer(ctx context.Context, tr models.Transfer, msg []byte) error {
	env, err := models.NewAcknowledgeEnvelope(models.AcknowledgePayload{Transfer: tr, Message: msg})
	if err != nil {
		return err
	}
	return l.send(ctx, env)
}

// handleAcknowledge processes the peer's response to a transfer this node
// sent, detecting an acknowledge that doesn't match what was actually sent.
func (l *Ledger) handleAcknowledge(ctx context.Context, p models.AcknowledgePayload) {
	tr := p.Transfer
	stored, err := l.log.Get(ctx, tr.ID)
	if err != nil {
		l.emitError(err)
		return
	}

	falseAck := stored == nil ||
		!stored.Transfer.Equal(tr) ||
		stored.Direction != models.Outgoing ||
		stored.State == transferlog.Completed

	if falseAck {
		l.emitter.Publish(events.Event{Kind: events.KindFalseAcknowledge, Transfer: tr})
		l.emitError(fmt.Errorf("%w: transfer %s", ledgererr.ErrFalseAcknowledge, tr.ID))
		return
	}

	if !tr.IsConditional() {
		if err := l.bal.Sub(ctx, tr.Amount); err != nil {
			l.emitError(err)
			return
		}
		l.emitter.Publish(events.Event{Kind: events.KindBalanceChanged})
		if err := l.log.Complete(ctx, tr.ID); err != nil {
			l.emitError(err)
			return
		}
		l.publishSettledFromStore(ctx, tr, models.Outgoing)
	}
	// Conditional outgoing: leave balance untouched, stay "prepared" until
	// execute-fulfillment arrives.

	l.emitter.Publish(events.Event{Kind: events.KindAccept, Transfer: tr, Message: p.Message})
}

// handleReject processes the peer's rejection of a transfer this node sent.
func (l *Ledger) handleReject(ctx context.Context, p models.RejectPayload) {
	l.emitter.Publish(events.Event{Kind: events.KindReject, Transfer: p.Transfer, Message: p.Message})

	entry, err := l.log.Get(ctx, p.Transfer.ID)
	if err != nil {
		l.emitError(err)
		return
	}
	if entry == nil {
		return
	}
	if entry.State == transferlog.Completed {
		// Reject-after-accept: ignored for balance purposes, already logged
		// above via the reject event.
		return
	}
	if err := l.log.Complete(ctx, p.Transfer.ID); err != nil {
		l.emitError(err)
		return
	}
	l.publishVoided(p.Transfer, entry.Direction, string(p.Message))
}

// handleFulfillmentMessage looks the transfer up locally and runs condition
// resolution. It never echoes a fulfillment back onto the wire.
func (l *Ledger) handleFulfillmentMessage(ctx context.Context, p models.FulfillmentPayload) {
	entry, err := l.log.Get(ctx, p.Transfer.ID)
	if err != nil {
		l.emitError(err)
		return
	}
	if entry == nil {
		l.emitError(fmt.Errorf("%w: %s", ledgererr.ErrUnknownTransfer, p.Transfer.ID))
		return
	}
	if err := l.resolveCondition(ctx, entry.Transfer, entry.Direction, p.Fulfillment); err != nil {
		l.emitError(err)
		return
	}
	l.emitter.Publish(events.Event{Kind: events.KindFulfillment, Transfer: entry.Transfer})
}

// resolveCondition executes the transfer when the fulfillment matches its
// execution condition, cancels it when the fulfillment matches its
// cancellation condition instead, and otherwise reports an invalid
// fulfillment.
func (l *Ledger) resolveCondition(ctx context.Context, tr models.Transfer, dir models.Direction, fulfillment string) error {
	if tr.ExecutionCondition == "" {
		return ledgererr.ErrNotConditional
	}

	if l.validator.Validate(fulfillment, tr.ExecutionCondition) {
		return l.executeTransfer(ctx, tr, dir)
	}

	if tr.CancellationCondition != "" && l.validator.Validate(fulfillment, tr.CancellationCondition) {
		return l.cancelTransfer(ctx, tr, dir)
	}

	return fmt.Errorf("%w: transfer %s", ledgererr.ErrInvalidFulfillment, tr.ID)
}

func (l *Ledger) executeTransfer(ctx context.Context, tr models.Transfer, dir models.Direction) error {
	switch dir {
	case models.Outgoing:
		// Outgoing conditional transfers are never debited on send or ack;
		// debit now, on execute.
		if err := l.bal.Sub(ctx, tr.Amount); err != nil {
			return err
		}
	case models.Incoming:
		if err := l.bal.Add(ctx, tr.Amount); err != nil {
			return err
		}
	default:
		return errors.New("unknown transfer direction")
	}
	l.emitter.Publish(events.Event{Kind: events.KindBalanceChanged})

	if err := l.log.Complete(ctx, tr.ID); err != nil {
		return err
	}
	l.publishSettledFromStore(ctx, tr, dir)
	l.emitter.Publish(events.Event{Kind: events.KindFulfillExecutionCondition, Transfer: tr})
	return nil
}

func (l *Ledger) cancelTransfer(ctx context.Context, tr models.Transfer, dir models.Direction) error {
	// Outgoing conditional transfers were never debited, so there is
	// nothing to refund; incoming conditional transfers were never
	// credited, so there is nothing to reverse. Cancel leaves the balance
	// untouched on both sides.
	if err := l.log.Complete(ctx, tr.ID); err != nil {
		return err
	}
	l.publishVoided(tr, dir, "cancelled")
	l.emitter.Publish(events.Event{Kind: events.KindFulfillCancellationCondition, Transfer: tr})
	return nil
}
