package adherence

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AssessmentRepository interface {
	Create(ctx context.Context, a *Assessment) error
	Latest(ctx context.Context, patientID uuid.UUID) (*Assessment, error)
	History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error)
}

type RefillRepository interface {
	Create(ctx context.Context, r *Refill) error
	ListByPatientSince(ctx context.Context, patientID uuid.UUID, since time.Time) ([]Refill, error)
}

type SelfReportRepository interface {
	Create(ctx context.Context, r *SelfReport) error
	LatestByPatient(ctx context.Context, patientID uuid.UUID) (*SelfReport, error)
}
