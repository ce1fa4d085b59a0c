package observation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, o *Observation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Observation, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Observation, int, error)
	// ListByPatientType returns observations of one type since the given
	// time, ordered oldest first for trend analysis.
	ListByPatientType(ctx context.Context, patientID uuid.UUID, obsType string, since time.Time) ([]Observation, error)
	LatestByPatientType(ctx context.Context, patientID uuid.UUID, obsType string) (*Observation, error)
}
