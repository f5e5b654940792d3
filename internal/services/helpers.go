package services

import (
	"context"

	"github.com/learnhub/apiserver/internal/events"
	"github.com/learnhub/apiserver/internal/logger"
	"github.com/learnhub/apiserver/internal/storage"
	"github.com/learnhub/apiserver/types"
)

// ObjectStore uploads media and removes it again.
type ObjectStore interface {
	Upload(ctx context.Context, prefix string, file types.FileUpload) (storage.Object, error)
	Delete(ctx context.Context, key string) error
}

// discardUpload removes an object whose record could not be written.
// Failures are only logged; the upload is then orphaned.
func discardUpload(ctx context.Context, objects ObjectStore, log *logger.Logger, obj *storage.Object) {
	if obj == nil {
		return
	}
	if err := objects.Delete(context.WithoutCancel(ctx), obj.Key); err != nil {
		log.Warn("failed to remove orphaned upload", "key", obj.Key, "error", err)
		return
	}
	log.Info("removed orphaned upload", "key", obj.Key)
}

// publish emits an event. Broker failures never fail the request.
func publish(ctx context.Context, log *logger.Logger, p events.Publisher, eventType string, payload any) {
	if err := p.Publish(ctx, eventType, payload); err != nil {
		log.Warn("failed to publish event", "type", eventType, "error", err)
	}
}
