package observation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/renalert/renalert/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const obsCols = `id, patient_id, type, value_num, unit, observed_at, created_at`

func (r *repoPG) scanObs(row pgx.Row) (*Observation, error) {
	var o Observation
	err := row.Scan(&o.ID, &o.PatientID, &o.Type, &o.Value, &o.Unit, &o.ObservedAt, &o.CreatedAt)
	return &o, err
}

func (r *repoPG) Create(ctx context.Context, o *Observation) error {
	o.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO observation (id, patient_id, type, value_num, unit, observed_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		o.ID, o.PatientID, o.Type, o.Value, o.Unit, o.ObservedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Observation, error) {
	return r.scanObs(r.conn(ctx).QueryRow(ctx, `SELECT `+obsCols+` FROM observation WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Observation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM observation WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+obsCols+` FROM observation WHERE patient_id = $1 ORDER BY observed_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Observation
	for rows.Next() {
		o, err := r.scanObs(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, nil
}

func (r *repoPG) ListByPatientType(ctx context.Context, patientID uuid.UUID, obsType string, since time.Time) ([]Observation, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+obsCols+` FROM observation
		 WHERE patient_id = $1 AND type = $2 AND observed_at >= $3
		 ORDER BY observed_at ASC`,
		patientID, obsType, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Observation
	for rows.Next() {
		o, err := r.scanObs(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *o)
	}
	return items, nil
}

func (r *repoPG) LatestByPatientType(ctx context.Context, patientID uuid.UUID, obsType string) (*Observation, error) {
	o, err := r.scanObs(r.conn(ctx).QueryRow(ctx,
		`SELECT `+obsCols+` FROM observation
		 WHERE patient_id = $1 AND type = $2
		 ORDER BY observed_at DESC LIMIT 1`,
		patientID, obsType))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return o, err
}
