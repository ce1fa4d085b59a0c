package risk

import (
	"context"

	"github.com/google/uuid"
)

type SnapshotRepository interface {
	Create(ctx context.Context, s *Snapshot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	Latest(ctx context.Context, patientID uuid.UUID) (*Snapshot, error)
	History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Snapshot, int, error)
}
