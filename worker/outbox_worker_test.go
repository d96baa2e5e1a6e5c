package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 1, want: 1 * time.Minute},
		{attempts: 2, want: 2 * time.Minute},
		{attempts: 3, want: 4 * time.Minute},
		{attempts: 4, want: 8 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, retryBackoff(tt.attempts), "attempt %d", tt.attempts)
	}
}

func TestPayloadUint(t *testing.T) {
	payload := map[string]interface{}{
		"from_json": float64(42),
		"from_int":  7,
		"from_uint": uint(9),
		"text":      "nope",
	}

	got, err := payloadUint(payload, "from_json")
	require.NoError(t, err)
	assert.Equal(t, uint(42), got)

	got, err = payloadUint(payload, "from_int")
	require.NoError(t, err)
	assert.Equal(t, uint(7), got)

	got, err = payloadUint(payload, "from_uint")
	require.NoError(t, err)
	assert.Equal(t, uint(9), got)

	_, err = payloadUint(payload, "text")
	assert.Error(t, err)

	_, err = payloadUint(payload, "missing")
	assert.Error(t, err)
}
