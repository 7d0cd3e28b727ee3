package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	ctx     context.Context
	marked  []int64
	commits int
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string { return "member-1" }
func (s *fakeSession) GenerationID() int32 { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string) {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) Commit() { s.commits++ }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) { s.marked = append(s.marked, msg.Offset) }

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string { return "ml_tasks" }
func (c *fakeClaim) Partition() int32 { return 0 }
func (c *fakeClaim) InitialOffset() int64 { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64 { return int64(len(c.messages)) }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

type recordingHandler struct {
	seen   [][]byte
	failOn string
}

func (h *recordingHandler) Handle(_ context.Context, payload []byte) error {
	h.seen = append(h.seen, payload)
	if string(payload) == h.failOn {
		return errors.New("database unavailable")
	}
	return nil
}

func newClaim(payloads ...string) *fakeClaim {
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, len(payloads))}
	for i, p := range payloads {
		claim.messages <- &sarama.ConsumerMessage{Topic: "ml_tasks", Offset: int64(i), Value: []byte(p)}
	}
	close(claim.messages)
	return claim
}

func TestConsumer_CommitsEachHandledMessage(t *testing.T) {
	handler := &recordingHandler{}
	consumer := NewConsumer(nil, "ml_tasks", handler, 0)
	session := &fakeSession{ctx: context.Background()}

	err := consumer.ConsumeClaim(session, newClaim(`{"prediction_id":1}`, `{"prediction_id":2}`))
	require.NoError(t, err)

	assert.Len(t, handler.seen, 2)
	assert.Equal(t, []int64{0, 1}, session.marked)
	assert.Equal(t, 2, session.commits)
}

func TestConsumer_StopsWithoutAckOnHandlerError(t *testing.T) {
	handler := &recordingHandler{failOn: "second"}
	consumer := NewConsumer(nil, "ml_tasks", handler, 0)
	session := &fakeSession{ctx: context.Background()}

	err := consumer.ConsumeClaim(session, newClaim("first", "second", "third"))
	require.Error(t, err)

	assert.Len(t, handler.seen, 2)
	assert.Equal(t, []int64{0}, session.marked)
	assert.Equal(t, 1, session.commits)
}

func TestConsumer_StopsWhenSessionEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	session := &fakeSession{ctx: ctx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}

	err := NewConsumer(nil, "ml_tasks", &recordingHandler{}, 0).ConsumeClaim(session, claim)
	assert.NoError(t, err)
	assert.Empty(t, session.marked)
}
