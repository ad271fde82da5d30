package ports

import (
	"context"

	"github.com/layer-3/gamebridge/core"
)

// EventPublisher publishes conversion lifecycle events to other services
type EventPublisher interface {
	PublishConversion(ctx context.Context, conversion *core.Conversion) error
}
