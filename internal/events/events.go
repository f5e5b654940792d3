// Package events publishes domain events as JSON envelopes on the message queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/learnhub/apiserver/internal/mq"
)

// Event types.
const (
	UserRegistered = "user.registered"
	CourseCreated  = "course.created"
	CourseUpdated  = "course.updated"
	CourseDeleted  = "course.deleted"
)

// Event is the envelope written to the events channel.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// UserPayload accompanies user.registered.
type UserPayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// CoursePayload accompanies the course.* events.
type CoursePayload struct {
	CourseID     string `json:"courseId"`
	InstructorID string `json:"instructorId"`
	Title        string `json:"title,omitempty"`
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// Broker is the part of mq.MQ the publisher needs.
type Broker interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// MQPublisher writes events to a single channel.
type MQPublisher struct {
	broker  Broker
	channel string
	now     func() time.Time
}

func NewPublisher(broker Broker, channel string) *MQPublisher {
	return &MQPublisher{broker: broker, channel: channel, now: func() time.Time { return time.Now().UTC() }}
}

func (p *MQPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	data, err := json.Marshal(Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: p.now(),
		Payload:    raw,
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	attrs := map[string]string{
		"type":             eventType,
		mq.ContentTypeAttr: "application/json",
	}
	if _, err := p.broker.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// Decode parses an envelope received from the broker.
func Decode(msg mq.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return Event{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	return event, nil
}
