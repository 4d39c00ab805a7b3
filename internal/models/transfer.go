package models

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Direction records which side of a transfer the local node is on. It is
// assigned locally when a transfer is stored and is never transmitted on
// the wire.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Transfer is the immutable value object exchanged between peers. Amount is
// an arbitrary-precision decimal. Decoding does not reject a bad amount (see
// UnmarshalJSON); the ledger rejects zero, negative and non-numeric amounts
// when it handles the transfer.
type Transfer struct {
	ID                    string          `json:"id"`
	Amount                decimal.Decimal `json:"amount"`
	Account               string          `json:"account"`
	Data                  []byte          `json:"data,omitempty"`
	NoteToSelf            []byte          `json:"noteToSelf,omitempty"`
	ExecutionCondition    string          `json:"executionCondition,omitempty"`
	CancellationCondition string          `json:"cancellationCondition,omitempty"`
	ExpiresAt             string          `json:"expiresAt,omitempty"`
}

// IsConditional reports whether the transfer carries an execution condition
// and therefore follows the two-phase accept/execute lifecycle.
func (t Transfer) IsConditional() bool {
	return t.ExecutionCondition != ""
}

// UnmarshalJSON decodes a transfer the way the wire format requires: a
// non-numeric or malformed amount must not fail the whole decode, since the
// rest of the envelope (id, account, conditions) is still needed to log and
// reject the transfer. A bad amount decodes as the zero value, which the
// existing zero/negative check downstream already rejects.
func (t *Transfer) UnmarshalJSON(data []byte) error {
	type alias Transfer
	aux := struct {
		Amount json.RawMessage `json:"amount"`
		*alias
	}{alias: (*alias)(t)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var amount decimal.Decimal
	if len(aux.Amount) > 0 {
		if err := json.Unmarshal(aux.Amount, &amount); err != nil {
			amount = decimal.Decimal{}
		}
	}
	t.Amount = amount
	return nil
}

// CanonicalJSON returns the deterministic wire encoding of the transfer.
// Field order follows struct declaration order, which encoding/json already
// preserves; no field is ever added conditionally beyond the omitempty
// fields already declared above.
func (t Transfer) CanonicalJSON() ([]byte, error) {
	return json.Marshal(t)
}

// Equal compares two transfers by their canonical wire representation. Any
// byte difference in the serialized form counts as a mismatch, which is
// what lets an acknowledge be checked against exactly what was sent.
func (t Transfer) Equal(other Transfer) bool {
	a, errA := t.CanonicalJSON()
	b, errB := other.CanonicalJSON()
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}
