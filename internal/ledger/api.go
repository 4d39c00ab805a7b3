package ledger

import (
	"context"
	"fmt"

	"github.com/interledger4go/virtual-ledger-plugin/internal/events"
	"github.com/interledger4go/virtual-ledger-plugin/internal/ledgererr"
	"github.com/interledger4go/virtual-ledger-plugin/internal/models"
)

// Send stores tr as outgoing and enqueues it on the connection. Balance is
// not touched here: the peer's acknowledge (or, for conditional outgoing
// transfers, the later execute-fulfillment) is authoritative.
func (l *Ledger) Send(ctx context.Context, tr models.Transfer) error {
	return l.call(ctx, func(ctx context.Context) error {
		if tr.Amount.IsNegative() || tr.Amount.IsZero() {
			return ledgererr.ErrInvalidAmount
		}
		if err := l.log.StoreOutgoing(ctx, tr); err != nil {
			return err
		}
		env, err := models.NewTransferEnvelope(tr)
		if err != nil {
			return err
		}
		return l.send(ctx, env)
	})
}

// FulfillCondition applies the fulfillment locally and forwards it to the
// peer. It runs the same resolveCondition path inbound fulfillments use,
// then forwards the fulfillment on the wire so the peer can resolve the
// transfer (execute or cancel) the same way.
func (l *Ledger) FulfillCondition(ctx context.Context, id, fulfillment string) error {
	return l.call(ctx, func(ctx context.Context) error {
		entry, err := l.log.Get(ctx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("%w: %s", ledgererr.ErrUnknownTransfer, id)
		}
		if err := l.resolveCondition(ctx, entry.Transfer, entry.Direction, fulfillment); err != nil {
			return err
		}

		env, err := models.NewFulfillmentEnvelope(models.FulfillmentPayload{
			Transfer:    entry.Transfer,
			Fulfillment: fulfillment,
		})
		if err != nil {
			return err
		}
		return l.send(ctx, env)
	})
}

// ReplyToTransfer forwards an informational reply to the peer about a
// known transfer.
func (l *Ledger) ReplyToTransfer(ctx context.Context, id string, msg []byte) error {
	return l.call(ctx, func(ctx context.Context) error {
		entry, err := l.log.Get(ctx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("%w: %s", ledgererr.ErrUnknownTransfer, id)
		}
		env, err := models.NewReplyEnvelope(models.ReplyPayload{Transfer: entry.Transfer, Message: msg})
		if err != nil {
			return err
		}
		if err := l.send(ctx, env); err != nil {
			return err
		}
		l.emitter.Publish(events.Event{Kind: events.KindReply, Transfer: entry.Transfer, Message: msg})
		return nil
	})
}
