package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfer_RoundTrip(t *testing.T) {
	tr := Transfer{
		ID:                 "t1",
		Amount:             decimal.NewFromFloat(4.25),
		Account:            "peer-account",
		Data:               []byte("hello"),
		ExecutionCondition: "cond-hash",
	}

	raw, err := tr.CanonicalJSON()
	require.NoError(t, err)

	var got Transfer
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.True(t, tr.Equal(got))
}

func TestTransfer_EqualDetectsAnyByteDifference(t *testing.T) {
	a := Transfer{ID: "t1", Amount: decimal.NewFromInt(5), Account: "x"}
	b := a
	b.Amount = decimal.NewFromInt(6)

	assert.False(t, a.Equal(b))
}

func TestTransfer_IsConditional(t *testing.T) {
	unconditional := Transfer{ID: "t1", Amount: decimal.NewFromInt(1)}
	conditional := Transfer{ID: "t2", Amount: decimal.NewFromInt(1), ExecutionCondition: "c"}

	assert.False(t, unconditional.IsConditional())
	assert.True(t, conditional.IsConditional())
}

func TestTransfer_UnmarshalJSON_NonNumericAmountDecodesAsZero(t *testing.T) {
	var tr Transfer
	err := json.Unmarshal([]byte(`{"id":"t1","amount":"not-a-number","account":"peer"}`), &tr)
	require.NoError(t, err)

	assert.Equal(t, "t1", tr.ID)
	assert.Equal(t, "peer", tr.Account)
	assert.True(t, tr.Amount.IsZero())
}

func TestTransfer_UnmarshalJSON_MissingAmountDecodesAsZero(t *testing.T) {
	var tr Transfer
	err := json.Unmarshal([]byte(`{"id":"t1","account":"peer"}`), &tr)
	require.NoError(t, err)

	assert.True(t, tr.Amount.IsZero())
}
