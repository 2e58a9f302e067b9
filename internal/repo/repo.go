package repo

import (
	"context"
	"time"

	"github.com/milad/meteretl/internal/domain"
)

// ReadingRepository provides access to meter readings.
type ReadingRepository interface {
	// List returns readings in ascending time order, optionally filtered by [start, end).
	// The returned slice must be treated as read-only by callers.
	List(ctx context.Context, startInclusive *time.Time, endExclusive *time.Time) ([]domain.Reading, error)
}

// ReferenceRepository provides the agreement, product and meterpoint tables.
// Tables are returned whole; no validation or deduplication is applied.
type ReferenceRepository interface {
	Agreements(ctx context.Context) ([]domain.Agreement, error)
	Products(ctx context.Context) ([]domain.Product, error)
	Meterpoints(ctx context.Context) ([]domain.Meterpoint, error)
	// AgreementsForMeterpoint returns one meterpoint's agreement history ordered by ValidFrom.
	AgreementsForMeterpoint(ctx context.Context, meterpointID string) ([]domain.Agreement, error)
}
