package bfi

import (
	"math"
	"strings"
	"testing"

	"github.com/dd0wney/cluso-bfi/pkg/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotLayout_EncodeDecode(t *testing.T) {
	codec, err := signature.New(128, 4)
	require.NoError(t, err)
	layout := slotLayout{size: 64, sigBytes: codec.Bytes()}
	assert.Equal(t, 36, layout.payloadRoom())

	values := []string{"alpha", "", "beta"}
	require.NoError(t, layout.checkValues(values))

	buf := make([]byte, layout.size)
	sig := codec.Encode(values)
	layout.encode(buf, 77, sig, values)

	assert.True(t, isLive(buf))
	assert.Equal(t, uint64(77), slotKey(buf))
	assert.True(t, layout.signature(buf).Equal(sig))

	got, err := layout.values(buf)
	require.NoError(t, err)
	assert.Equal(t, values, got)

	assert.True(t, layout.containsAll(buf, []string{"beta", "alpha"}))
	assert.True(t, layout.containsAll(buf, []string{""}))
	assert.False(t, layout.containsAll(buf, []string{"alph"}))

	markFree(buf, 9)
	assert.False(t, isLive(buf))
	assert.Equal(t, uint64(9), freeLink(buf))
	assert.True(t, layout.signature(buf).Equal(sig), "delete leaves the signature bytes")
}

func TestSlotLayout_CheckValues(t *testing.T) {
	layout := slotLayout{size: 64, sigBytes: 16}

	assert.ErrorIs(t, layout.checkValues(nil), ErrNoValues)
	assert.ErrorIs(t, layout.checkValues([]string{strings.Repeat("x", 35)}), ErrPayloadTooLarge)
	assert.NoError(t, layout.checkValues([]string{strings.Repeat("x", 34)}))
	assert.ErrorIs(t, layout.checkValues([]string{strings.Repeat("x", math.MaxUint16+1)}), ErrPayloadTooLarge)
}

func TestSlotLayout_CorruptPayload(t *testing.T) {
	layout := slotLayout{size: 64, sigBytes: 16}
	buf := make([]byte, layout.size)
	layout.encode(buf, 0, make(signature.Signature, 16), []string{"abc"})

	// Claim a value length that runs past the slot
	buf[layout.payloadOffset()] = 0xff
	_, err := layout.values(buf)
	assert.ErrorIs(t, err, ErrCorruptSlot)
	assert.False(t, layout.containsAll(buf, []string{"abc"}))
}
