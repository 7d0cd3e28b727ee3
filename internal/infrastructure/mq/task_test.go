package mq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTask(t *testing.T) {
	payload, err := EncodeTask(42)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prediction_id": 42}`, payload)

	_, err = EncodeTask(0)
	assert.ErrorIs(t, err, ErrMalformedTask)
}

func TestDecodeTask(t *testing.T) {
	task, err := DecodeTask([]byte(`{"prediction_id": 7, "extra": true}`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), task.PredictionID)
	assert.Equal(t, "7", task.Key())

	for _, payload := range []string{
		``,
		`not json`,
		`{}`,
		`{"prediction_id": null}`,
		`{"prediction_id": "7"}`,
		`{"prediction_id": -3}`,
		`{"prediction_id": 1.5}`,
	} {
		_, err := DecodeTask([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedTask, "payload %q", payload)
	}
}
