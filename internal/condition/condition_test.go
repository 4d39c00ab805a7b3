package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSha256Preimage_ValidatesMatchingPreimage(t *testing.T) {
	v := Sha256Preimage{}
	preimage := []byte("the-secret-preimage")
	cond := v.Condition(preimage)
	fulfillment := v.Fulfillment(preimage)

	assert.True(t, v.Validate(fulfillment, cond))
}

func TestSha256Preimage_RejectsWrongPreimage(t *testing.T) {
	v := Sha256Preimage{}
	cond := v.Condition([]byte("right-preimage"))
	wrongFulfillment := v.Fulfillment([]byte("wrong-preimage"))

	assert.False(t, v.Validate(wrongFulfillment, cond))
}

func TestSha256Preimage_RejectsMalformedInput(t *testing.T) {
	v := Sha256Preimage{}
	assert.False(t, v.Validate("not-base64!!", "also-not-base64!!"))
}
