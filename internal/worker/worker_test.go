package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/learnhub/apiserver/internal/events"
	"github.com/learnhub/apiserver/internal/logger"
	"github.com/learnhub/apiserver/internal/mq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type welcome struct{ name, email, role string }

type fakeMailer struct {
	sent []welcome
	err  error
}

func (f *fakeMailer) SendWelcome(_ context.Context, name, email, role string) error {
	f.sent = append(f.sent, welcome{name, email, role})
	return f.err
}

type capture struct {
	data []byte
}

func (c *capture) Publish(_ context.Context, _ string, data []byte, _ map[string]string) (string, error) {
	c.data = data
	return "m-1", nil
}

func encode(t *testing.T, eventType string, payload any) mq.Message {
	t.Helper()
	c := &capture{}
	require.NoError(t, events.NewPublisher(c, "events").Publish(context.Background(), eventType, payload))
	return mq.Message{ID: "m-1", Data: c.data}
}

func TestHandleUserRegisteredSendsWelcome(t *testing.T) {
	mailer := &fakeMailer{}
	w := New(nil, "events", mailer, logger.Nop())

	msg := encode(t, events.UserRegistered, events.UserPayload{UserID: "u-1", Name: "Ada", Email: "ada@example.com", Role: "learner"})
	require.NoError(t, w.Handle(context.Background(), msg))

	assert.Equal(t, []welcome{{"Ada", "ada@example.com", "learner"}}, mailer.sent)
}

func TestHandleReturnsDeliveryFailure(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("sendgrid down")}
	w := New(nil, "events", mailer, logger.Nop())

	msg := encode(t, events.UserRegistered, events.UserPayload{UserID: "u-1", Email: "ada@example.com"})
	assert.Error(t, w.Handle(context.Background(), msg))
}

func TestHandleIgnoresOtherEventsAndGarbage(t *testing.T) {
	mailer := &fakeMailer{}
	w := New(nil, "events", mailer, logger.Nop())

	require.NoError(t, w.Handle(context.Background(), encode(t, events.CourseCreated, events.CoursePayload{CourseID: "c-1"})))
	require.NoError(t, w.Handle(context.Background(), mq.Message{ID: "bad", Data: []byte("{")}))

	bad, err := json.Marshal(events.Event{ID: "e-1", Type: events.UserRegistered, Payload: json.RawMessage(`"nope"`)})
	require.NoError(t, err)
	require.NoError(t, w.Handle(context.Background(), mq.Message{ID: "m-2", Data: bad}))

	assert.Empty(t, mailer.sent)
}

func TestHandleWithoutMailer(t *testing.T) {
	w := New(nil, "events", nil, logger.Nop())
	msg := encode(t, events.UserRegistered, events.UserPayload{UserID: "u-1"})
	assert.NoError(t, w.Handle(context.Background(), msg))
}

func TestRunStopsOnCancel(t *testing.T) {
	m := mq.New(mq.NewMemoryBackend())
	w := New(m, "events", nil, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, w.Run(ctx))
}
