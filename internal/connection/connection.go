// Package connection provides the opaque message conduit the ledger state
// machine drives: connect/disconnect/send plus an inbound message stream.
// The transport itself (real socket framing, rendezvous, retry) is out of
// the ledger's scope, which only needs this interface.
package connection

import (
	"context"

	"github.com/interledger4go/virtual-ledger-plugin/internal/models"
)

// Connection is the conduit between this node and its peer.
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	Send(ctx context.Context, msg models.Envelope) error
	// Receive delivers inbound envelopes for as long as the connection is
	// active. Whether the returned channel is closed on Disconnect is
	// implementation-defined: WSConn closes it once its read loop exits;
	// PipeConn does not, since closing it could race a peer that is still
	// sending.
	Receive() <-chan models.Envelope
}
