package ports

import (
	"context"

	"github.com/layer-3/gamebridge/core"
)

// ConversionStore persists conversion intent records
type ConversionStore interface {
	// Create inserts a new record, core.ErrDuplicateConversion when the
	// signature was already recorded
	Create(ctx context.Context, c *core.Conversion) error

	// Update stores the mutable fields of c if the stored record is still at
	// c.Revision and advances c.Revision. core.ErrConversionConflict means
	// the record changed or disappeared since c was read.
	Update(ctx context.Context, c *core.Conversion) error

	// Get returns core.ErrConversionNotFound for unknown ids
	Get(ctx context.Context, id string) (*core.Conversion, error)

	// ListByState returns records in any of states, oldest first
	ListByState(ctx context.Context, states ...core.ConversionState) ([]*core.Conversion, error)
}
