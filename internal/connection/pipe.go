package connection

import (
	"context"
	"sync"

	"github.com/interledger4go/virtual-ledger-plugin/internal/ledgererr"
	"github.com/interledger4go/virtual-ledger-plugin/internal/models"
)

// PipeConn is an in-memory Connection, typically created in pairs with
// NewPipe so that each end's Send delivers to the other's Receive channel.
// It exists for tests and in-process integrations of the ledger state
// machine that don't need a real socket.
type PipeConn struct {
	mu        sync.Mutex
	connected bool
	out       chan models.Envelope // what we deliver to the peer
	in        chan models.Envelope // what we receive from the peer
}

// NewPipe creates two connected PipeConns, A and B, where A.Send delivers
// to B.Receive and vice versa.
func NewPipe(buffer int) (a, b *PipeConn) {
	ab := make(chan models.Envelope, buffer)
	ba := make(chan models.Envelope, buffer)
	a = &PipeConn{out: ab, in: ba}
	b = &PipeConn{out: ba, in: ab}
	return a, b
}

func (p *PipeConn) Connect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

// Disconnect marks the connection as no longer usable for Send. It does
// not close the Receive channel, since that channel is written to by the
// peer's Send and closing it here could panic a peer that disconnects
// later or not at all.
func (p *PipeConn) Disconnect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

func (p *PipeConn) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *PipeConn) Send(ctx context.Context, msg models.Envelope) error {
	p.mu.Lock()
	connected := p.connected
	p.mu.Unlock()
	if !connected {
		return ledgererr.ErrTransport
	}
	select {
	case p.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PipeConn) Receive() <-chan models.Envelope {
	return p.in
}

var _ Connection = (*PipeConn)(nil)
