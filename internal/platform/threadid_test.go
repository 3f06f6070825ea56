package platform

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeThreadID(t *testing.T) {
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("thread:12345")), EncodeThreadID(12345))
}

func TestDecodeThreadIDRoundTrip(t *testing.T) {
	typeTag, numericID, err := DecodeThreadID(EncodeThreadID(987654321))
	require.NoError(t, err)
	assert.Equal(t, "thread", typeTag)
	assert.Equal(t, int64(987654321), numericID)
}

func TestDecodeThreadIDBareNumeric(t *testing.T) {
	typeTag, numericID, err := DecodeThreadID("4242")
	require.NoError(t, err)
	assert.Equal(t, "thread", typeTag)
	assert.Equal(t, int64(4242), numericID)
}

func TestDecodeThreadIDOtherTypePrefix(t *testing.T) {
	opaque := base64.StdEncoding.EncodeToString([]byte("inquiry:77"))
	typeTag, numericID, err := DecodeThreadID(opaque)
	require.NoError(t, err)
	assert.Equal(t, "inquiry", typeTag)
	assert.Equal(t, int64(77), numericID)
}

func TestDecodeThreadIDErrors(t *testing.T) {
	tests := []struct {
		name   string
		opaque string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"no type prefix", base64.StdEncoding.EncodeToString([]byte("12345"))},
		{"non-numeric tail", base64.StdEncoding.EncodeToString([]byte("thread:abc"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeThreadID(tt.opaque)
			assert.Error(t, err)
		})
	}
}
