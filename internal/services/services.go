package services

import (
	"context"

	"chat-sync/internal/apperr"
	"chat-sync/internal/changefeed"
	"chat-sync/pkg/logger"

	"github.com/google/uuid"
)

// notifier publishes change events after a successful write. A failed publish
// is logged and never fails the write; clients still converge on the next event or poll.
type notifier struct {
	publisher changefeed.Publisher
	log       *logger.Logger
}

func newNotifier(p changefeed.Publisher, log *logger.Logger) notifier {
	if p == nil {
		p = changefeed.Discard{}
	}
	return notifier{publisher: p, log: log}
}

func (n notifier) notify(ctx context.Context, table changefeed.Table) {
	if err := n.publisher.Publish(context.WithoutCancel(ctx), table); err != nil {
		n.log.Warn("Failed to publish change", "table", table, "error", err)
	}
}

// validateID rejects identifiers that are not UUIDs.
func validateID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation("%s must be a UUID, got %q", field, id)
	}
	return nil
}
