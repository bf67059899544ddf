package storage

import (
	"context"
	"errors"

	"zapkit/internal/model"
)

// Journal is a sink for zap and stake transitions.
type Journal interface {
	Record(ctx context.Context, record model.ZapRecord) error
}

// Multi writes every record to all journals and joins their errors.
type Multi []Journal

func (m Multi) Record(ctx context.Context, record model.ZapRecord) error {
	var errs []error
	for _, journal := range m {
		if journal == nil {
			continue
		}
		if err := journal.Record(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
