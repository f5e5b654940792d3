package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/learnhub/apiserver/internal/mq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroker struct {
	channel string
	data    []byte
	attrs   map[string]string
	err     error
}

func (b *recordingBroker) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.channel, b.data, b.attrs = channel, data, attrs
	return "m-1", b.err
}

func TestPublishWritesEnvelope(t *testing.T) {
	broker := &recordingBroker{}
	p := NewPublisher(broker, "learnhub.events")
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return at }

	err := p.Publish(context.Background(), CourseCreated, CoursePayload{CourseID: "c-1", InstructorID: "u-1", Title: "Go"})
	require.NoError(t, err)

	assert.Equal(t, "learnhub.events", broker.channel)
	assert.Equal(t, CourseCreated, broker.attrs["type"])
	assert.Equal(t, "application/json", broker.attrs[mq.ContentTypeAttr])

	event, err := Decode(mq.Message{ID: "m-1", Data: broker.data})
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, CourseCreated, event.Type)
	assert.True(t, at.Equal(event.OccurredAt))

	var payload CoursePayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "c-1", payload.CourseID)
	assert.Equal(t, "u-1", payload.InstructorID)
}

func TestPublishWrapsBrokerError(t *testing.T) {
	broker := &recordingBroker{err: errors.New("connection reset")}
	err := NewPublisher(broker, "events").Publish(context.Background(), UserRegistered, UserPayload{UserID: "u-1"})
	assert.ErrorContains(t, err, "publish user.registered")
	assert.ErrorContains(t, err, "connection reset")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(mq.Message{ID: "m-1", Data: []byte("not json")})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), CourseDeleted, nil))
}
