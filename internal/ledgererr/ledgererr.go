// Package ledgererr defines the sentinel error taxonomy shared across the
// ledger, balance and transferlog packages so callers can distinguish
// protocol outcomes with errors.Is instead of string matching.
package ledgererr

import "errors"

var (
	// ErrDuplicateTransfer marks a transfer id collision in the transfer log.
	ErrDuplicateTransfer = errors.New("duplicate transfer")
	// ErrUnknownTransfer marks a fulfillment or reply for an id never seen.
	ErrUnknownTransfer = errors.New("unknown transfer")
	// ErrNotConditional marks a fulfillment attempt on a transfer with no condition.
	ErrNotConditional = errors.New("transfer is not conditional")
	// ErrInvalidFulfillment marks a fulfillment that matched neither condition.
	ErrInvalidFulfillment = errors.New("invalid fulfillment")
	// ErrInvalidAmount marks a NaN, non-positive, or unparseable amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrOverLimit marks a balance mutation that would exceed the max credit line.
	ErrOverLimit = errors.New("balance would exceed credit limit")
	// ErrUnderLimit marks a balance mutation that would fall below the min credit line.
	ErrUnderLimit = errors.New("balance would fall below credit limit")
	// ErrFalseAcknowledge marks an acknowledge for an unknown, mismatched, or completed transfer.
	ErrFalseAcknowledge = errors.New("false acknowledge")
	// ErrInvalidMessage marks a wire message of unrecognized shape or type.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrTransport marks a delivery failure from the connection.
	ErrTransport = errors.New("transport error")
	// ErrStore marks a persistence failure from the store adapter.
	ErrStore = errors.New("store error")
)
