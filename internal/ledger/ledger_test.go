package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interledger4go/virtual-ledger-plugin/internal/balance"
	"github.com/interledger4go/virtual-ledger-plugin/internal/condition"
	"github.com/interledger4go/virtual-ledger-plugin/internal/connection"
	"github.com/interledger4go/virtual-ledger-plugin/internal/events"
	"github.com/interledger4go/virtual-ledger-plugin/internal/models"
	"github.com/interledger4go/virtual-ledger-plugin/internal/store"
	"github.com/interledger4go/virtual-ledger-plugin/internal/transferlog"
)

const recvTimeout = time.Second

type harness struct {
	t      *testing.T
	ledger *Ledger
	peer   *connection.PipeConn
	bal    *balance.Balance
	log    *transferlog.Log
	evt    <-chan events.Event
}

func newHarness(t *testing.T, min, max decimal.Decimal) *harness {
	t.Helper()

	kv := store.NewMemoryStore()
	bal := balance.New(kv, min, max)
	tlog := transferlog.New(kv)

	local, peer := connection.NewPipe(16)

	l := New(local, bal, tlog, condition.Sha256Preimage{}, events.NoopPublisher{}, Info{}, nil)
	evt := l.Events(32)

	ctx := context.Background()
	require.NoError(t, l.Connect(ctx))
	require.NoError(t, peer.Connect(ctx))

	return &harness{t: t, ledger: l, peer: peer, bal: bal, log: tlog, evt: evt}
}

func (h *harness) sendToLedger(env models.Envelope) {
	require.NoError(h.t, h.peer.Send(context.Background(), env))
}

func (h *harness) expectFromLedger() models.Envelope {
	select {
	case env := <-h.peer.Receive():
		return env
	case <-time.After(recvTimeout):
		h.t.Fatal("timed out waiting for a message from the ledger")
		return models.Envelope{}
	}
}

func (h *harness) expectEvent(kind events.Kind) events.Event {
	for {
		select {
		case ev := <-h.evt:
			if ev.Kind == kind {
				return ev
			}
		case <-time.After(recvTimeout):
			h.t.Fatalf("timed out waiting for event %q", kind)
			return events.Event{}
		}
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func transferEnvelope(t *testing.T, tr models.Transfer) models.Envelope {
	env, err := models.NewTransferEnvelope(tr)
	require.NoError(t, err)
	return env
}

// S1 Unconditional accept.
func TestScenario_S1_UnconditionalAccept(t *testing.T) {
	h := newHarness(t, dec("0"), dec("10"))
	tr := models.Transfer{ID: "t1", Amount: dec("5"), Account: "peer"}

	h.sendToLedger(transferEnvelope(t, tr))
	h.expectEvent(events.KindIncoming)

	env := h.expectFromLedger()
	assert.Equal(t, models.MsgAcknowledge, env.Type)

	bal, err := h.bal.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("5")))

	entry, err := h.log.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, transferlog.Completed, entry.State)
	assert.Equal(t, models.Incoming, entry.Direction)
}

// S2 Over-limit reject.
func TestScenario_S2_OverLimitReject(t *testing.T) {
	h := newHarness(t, dec("0"), dec("10"))
	require.NoError(t, h.bal.Add(context.Background(), dec("8")))

	tr := models.Transfer{ID: "t2", Amount: dec("5"), Account: "peer"}
	h.sendToLedger(transferEnvelope(t, tr))
	h.expectEvent(events.KindIncoming)

	env := h.expectFromLedger()
	assert.Equal(t, models.MsgReject, env.Type)

	bal, err := h.bal.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("8")), "balance must be unchanged on reject")

	entry, err := h.log.Get(context.Background(), "t2")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, transferlog.Completed, entry.State)
}

// S3 Replay of an already-seen transfer id.
func TestScenario_S3_Replay(t *testing.T) {
	h := newHarness(t, dec("0"), dec("10"))
	tr := models.Transfer{ID: "t1", Amount: dec("5"), Account: "peer"}

	h.sendToLedger(transferEnvelope(t, tr))
	h.expectEvent(events.KindIncoming)
	h.expectFromLedger() // acknowledge

	h.sendToLedger(transferEnvelope(t, tr))
	h.expectEvent(events.KindRepeatTransfer)

	env := h.expectFromLedger()
	assert.Equal(t, models.MsgReject, env.Type)

	bal, err := h.bal.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("5")), "replay must not double-credit")
}

// S4 False acknowledge: the peer's ack body doesn't match what was sent.
func TestScenario_S4_FalseAcknowledge(t *testing.T) {
	h := newHarness(t, dec("-10"), dec("10"))
	tr := models.Transfer{ID: "t3", Amount: dec("2"), Account: "peer"}

	require.NoError(t, h.ledger.Send(context.Background(), tr))
	h.expectFromLedger() // the outgoing "transfer" envelope

	tampered := tr
	tampered.Amount = dec("3")
	ackEnv, err := models.NewAcknowledgeEnvelope(models.AcknowledgePayload{
		Transfer: tampered,
		Message:  []byte("transfer accepted"),
	})
	require.NoError(t, err)
	h.sendToLedger(ackEnv)

	h.expectEvent(events.KindFalseAcknowledge)

	bal, err := h.bal.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), "balance must be unchanged on a false acknowledge")
}

// S5 Conditional execute on an incoming transfer.
func TestScenario_S5_ConditionalExecute(t *testing.T) {
	h := newHarness(t, dec("0"), dec("10"))
	v := condition.Sha256Preimage{}
	preimage := []byte("s5-preimage")
	cond := v.Condition(preimage)
	fulfillment := v.Fulfillment(preimage)

	tr := models.Transfer{ID: "t4", Amount: dec("4"), Account: "peer", ExecutionCondition: cond}
	h.sendToLedger(transferEnvelope(t, tr))
	h.expectEvent(events.KindIncoming)

	ackEnv := h.expectFromLedger()
	assert.Equal(t, models.MsgAcknowledge, ackEnv.Type)

	bal, err := h.bal.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), "conditional accept must not move the balance yet")

	fulEnv, err := models.NewFulfillmentEnvelope(models.FulfillmentPayload{Transfer: tr, Fulfillment: fulfillment})
	require.NoError(t, err)
	h.sendToLedger(fulEnv)

	h.expectEvent(events.KindFulfillExecutionCondition)

	bal, err = h.bal.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("4")))

	entry, err := h.log.Get(context.Background(), "t4")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, transferlog.Completed, entry.State)
}

// S6 Conditional cancel on an incoming transfer: the fulfillment matches
// the cancellation condition instead of the execution condition.
func TestScenario_S6_ConditionalCancel(t *testing.T) {
	h := newHarness(t, dec("0"), dec("10"))
	v := condition.Sha256Preimage{}
	execPreimage := []byte("s6-exec-preimage")
	cancelPreimage := []byte("s6-cancel-preimage")

	tr := models.Transfer{
		ID:                    "t4",
		Amount:                dec("4"),
		Account:               "peer",
		ExecutionCondition:    v.Condition(execPreimage),
		CancellationCondition: v.Condition(cancelPreimage),
	}
	h.sendToLedger(transferEnvelope(t, tr))
	h.expectEvent(events.KindIncoming)
	h.expectFromLedger() // acknowledge

	fulEnv, err := models.NewFulfillmentEnvelope(models.FulfillmentPayload{
		Transfer:    tr,
		Fulfillment: v.Fulfillment(cancelPreimage),
	})
	require.NoError(t, err)
	h.sendToLedger(fulEnv)

	h.expectEvent(events.KindFulfillCancellationCondition)

	bal, err := h.bal.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), "cancel must never have applied the credit")

	entry, err := h.log.Get(context.Background(), "t4")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, transferlog.Completed, entry.State)
}

// Invalid/zero/negative amounts are rejected without touching the balance.
func TestIncoming_InvalidAmountRejected(t *testing.T) {
	h := newHarness(t, dec("0"), dec("10"))
	tr := models.Transfer{ID: "t5", Amount: dec("0"), Account: "peer"}

	h.sendToLedger(transferEnvelope(t, tr))
	h.expectEvent(events.KindIncoming)

	env := h.expectFromLedger()
	assert.Equal(t, models.MsgReject, env.Type)

	bal, err := h.bal.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

// Malformed wire messages surface as an error event, never a crash.
func TestDispatch_UnknownMessageTypeEmitsError(t *testing.T) {
	h := newHarness(t, dec("0"), dec("10"))
	h.sendToLedger(models.Envelope{Type: "not-a-real-type", Payload: []byte(`{}`)})

	ev := h.expectEvent(events.KindError)
	require.Error(t, ev.Err)
}

// Reject delivered for a transfer that already completed is ignored for
// balance purposes but still observed.
func TestReject_AfterAcceptIsIgnoredForBalance(t *testing.T) {
	h := newHarness(t, dec("-10"), dec("10"))
	tr := models.Transfer{ID: "t6", Amount: dec("2"), Account: "peer"}

	require.NoError(t, h.ledger.Send(context.Background(), tr))
	h.expectFromLedger()

	ackEnv, err := models.NewAcknowledgeEnvelope(models.AcknowledgePayload{Transfer: tr, Message: []byte("ok")})
	require.NoError(t, err)
	h.sendToLedger(ackEnv)
	h.expectEvent(events.KindAccept)

	rejEnv, err := models.NewRejectEnvelope(models.RejectPayload{Transfer: tr, Message: []byte("late reject")})
	require.NoError(t, err)
	h.sendToLedger(rejEnv)
	h.expectEvent(events.KindReject)

	bal, err := h.bal.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("-2")), "a reject after completion must not touch the balance")
}
