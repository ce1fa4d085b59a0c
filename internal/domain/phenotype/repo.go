package phenotype

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Assessment) error
	// Latest returns the newest assessment, or nil when none exists.
	Latest(ctx context.Context, patientID uuid.UUID) (*Assessment, error)
	History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error)
}
