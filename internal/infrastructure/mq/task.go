package mq

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var ErrMalformedTask = errors.New("malformed task message")

// TaskMessage is the only payload carried from submission to the worker.
type TaskMessage struct {
	PredictionID int64 `json:"prediction_id"`
}

func (t TaskMessage) Key() string {
	return strconv.FormatInt(t.PredictionID, 10)
}

func EncodeTask(predictionID int64) (string, error) {
	if predictionID <= 0 {
		return "", fmt.Errorf("%w: prediction_id %d", ErrMalformedTask, predictionID)
	}
	b, err := json.Marshal(TaskMessage{PredictionID: predictionID})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeTask(payload []byte) (TaskMessage, error) {
	var task TaskMessage
	if err := json.Unmarshal(payload, &task); err != nil {
		return TaskMessage{}, fmt.Errorf("%w: %v", ErrMalformedTask, err)
	}
	if task.PredictionID <= 0 {
		return TaskMessage{}, fmt.Errorf("%w: missing prediction_id", ErrMalformedTask)
	}
	return task, nil
}
