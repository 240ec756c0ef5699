package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestNewJSONEventFillsDefaults(t *testing.T) {
	evt, err := NewJSONEvent("", testPayload{Name: "checkout", Count: 3}, 0)
	require.NoError(t, err)

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, 0, evt.Retry)
	assert.Equal(t, len(RetryDelays), evt.MaxRetry)

	decoded, err := DecodeJSON[testPayload](evt)
	require.NoError(t, err)
	assert.Equal(t, "checkout", decoded.Name)
	assert.Equal(t, 3, decoded.Count)
}

func TestNewJSONEventClampsMaxRetry(t *testing.T) {
	evt, err := NewJSONEvent("evt-1", testPayload{}, len(RetryDelays)+10)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", evt.ID)
	assert.Equal(t, len(RetryDelays), evt.MaxRetry)

	evt, err = NewJSONEvent("evt-2", testPayload{}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, evt.MaxRetry)
}

func TestDecodeJSONRejectsMismatchedPayload(t *testing.T) {
	evt := Event{ID: "evt-3", Payload: []byte(`{"name": 42}`)}

	_, err := DecodeJSON[testPayload](evt)
	assert.Error(t, err)
}
