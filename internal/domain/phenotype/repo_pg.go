package phenotype

import (
	"context"
	"errors"

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

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const assessmentCols = `id, patient_id, eligible, ineligible_reason,
	renal_risk_pct, renal_category, cv_risk_pct, cv_category,
	mortality_risk_pct, mortality_category, phenotype, benefit_ratio,
	interpretation, fields_present, fields_required, confidence, assessed_at`

func (r *repoPG) scanAssessment(row pgx.Row) (*Assessment, error) {
	var a Assessment
	err := row.Scan(&a.ID, &a.PatientID, &a.Eligible, &a.IneligibleReason,
		&a.RenalRiskPct, &a.RenalCategory, &a.CVRiskPct, &a.CVCategory,
		&a.MortalityRiskPct, &a.MortalityCategory, &a.Phenotype, &a.BenefitRatio,
		&a.Interpretation, &a.FieldsPresent, &a.FieldsRequired, &a.Confidence, &a.AssessedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Assessment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO phenotype_assessment (id, patient_id, eligible, ineligible_reason,
			renal_risk_pct, renal_category, cv_risk_pct, cv_category,
			mortality_risk_pct, mortality_category, phenotype, benefit_ratio,
			interpretation, fields_present, fields_required, confidence, assessed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		a.ID, a.PatientID, a.Eligible, a.IneligibleReason,
		a.RenalRiskPct, a.RenalCategory, a.CVRiskPct, a.CVCategory,
		a.MortalityRiskPct, a.MortalityCategory, a.Phenotype, a.BenefitRatio,
		a.Interpretation, a.FieldsPresent, a.FieldsRequired, a.Confidence, a.AssessedAt)
	return err
}

func (r *repoPG) Latest(ctx context.Context, patientID uuid.UUID) (*Assessment, error) {
	a, err := r.scanAssessment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assessmentCols+` FROM phenotype_assessment
		 WHERE patient_id = $1
		 ORDER BY assessed_at DESC, id DESC LIMIT 1`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM phenotype_assessment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+assessmentCols+` FROM phenotype_assessment
		 WHERE patient_id = $1
		 ORDER BY assessed_at DESC, id DESC
		 LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Assessment
	for rows.Next() {
		a, err := r.scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}
