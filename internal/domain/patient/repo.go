package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	ListActive(ctx context.Context) ([]*Patient, error)
	// UpdateRiskCache writes the denormalized current-state columns. Callers
	// run it in the same transaction as the snapshot insert, after the insert.
	UpdateRiskCache(ctx context.Context, id uuid.UUID, tier string, score float64, snapshotID uuid.UUID) error
}

type ProfileRepository interface {
	Get(ctx context.Context, patientID uuid.UUID) (*ClinicalProfile, error)
	Upsert(ctx context.Context, cp *ClinicalProfile) error
}
