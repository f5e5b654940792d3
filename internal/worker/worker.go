// Package worker consumes domain events and performs their side effects.
package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/learnhub/apiserver/internal/events"
	"github.com/learnhub/apiserver/internal/logger"
	"github.com/learnhub/apiserver/internal/mq"
)

type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

type WelcomeSender interface {
	SendWelcome(ctx context.Context, name, email, role string) error
}

type Worker struct {
	sub     Subscriber
	channel string
	mailer  WelcomeSender
	log     *logger.Logger
}

// New builds a worker. A nil mailer turns welcome email into a logged no-op.
func New(sub Subscriber, channel string, mailer WelcomeSender, log *logger.Logger) *Worker {
	return &Worker{sub: sub, channel: channel, mailer: mailer, log: log.With("component", "worker")}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker subscribed", "channel", w.channel)
	err := w.sub.Subscribe(ctx, w.channel, w.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle processes one message. Malformed messages are dropped; a failed
// delivery is returned so the broker can redeliver.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	event, err := events.Decode(msg)
	if err != nil {
		w.log.Warn("dropping malformed event", "message_id", msg.ID, "error", err)
		return nil
	}

	switch event.Type {
	case events.UserRegistered:
		var payload events.UserPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			w.log.Warn("dropping malformed payload", "event_id", event.ID, "type", event.Type, "error", err)
			return nil
		}
		if w.mailer == nil {
			w.log.Debug("mailer disabled, skipping welcome email", "user_id", payload.UserID)
			return nil
		}
		if err := w.mailer.SendWelcome(ctx, payload.Name, payload.Email, payload.Role); err != nil {
			w.log.Error("welcome email failed", "user_id", payload.UserID, "error", err)
			return err
		}
		w.log.Info("welcome email sent", "user_id", payload.UserID)
	default:
		w.log.Debug("event ignored", "event_id", event.ID, "type", event.Type)
	}
	return nil
}
