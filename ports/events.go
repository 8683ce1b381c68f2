package ports

import (
	"context"

	"github.com/layer-3/dripper/core"
)

// EventPublisher publishes claim pipeline events for other consumers
type EventPublisher interface {
	PublishTrigger(ctx context.Context, trigger core.Trigger) error
	PublishOutcome(ctx context.Context, result core.SubmissionResult) error
	PublishSummary(ctx context.Context, summary core.Summary) error
}
