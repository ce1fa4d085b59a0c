package adherence

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

// =========== Assessment Repository ===========

type assessmentRepoPG struct{ pool *pgxpool.Pool }

func NewAssessmentRepoPG(pool *pgxpool.Pool) AssessmentRepository {
	return &assessmentRepoPG{pool: pool}
}

func (r *assessmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const assessmentCols = `id, patient_id, treatment,
	pharmacy_score, pharmacy_available, pharmacy_weight,
	lab_score, lab_available, lab_weight,
	self_report_score, self_report_available, self_report_weight,
	composite_score, category, scoring_method, mpr, pdc, assessed_at`

func (r *assessmentRepoPG) scanAssessment(row pgx.Row) (*Assessment, error) {
	var a Assessment
	err := row.Scan(&a.ID, &a.PatientID, &a.Treatment,
		&a.Pharmacy.Score, &a.Pharmacy.Available, &a.Pharmacy.Weight,
		&a.Lab.Score, &a.Lab.Available, &a.Lab.Weight,
		&a.SelfReport.Score, &a.SelfReport.Available, &a.SelfReport.Weight,
		&a.Composite, &a.Category, &a.Method, &a.MPR, &a.PDC, &a.AssessedAt)
	return &a, err
}

func (r *assessmentRepoPG) Create(ctx context.Context, a *Assessment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO adherence_assessment (id, patient_id, treatment,
			pharmacy_score, pharmacy_available, pharmacy_weight,
			lab_score, lab_available, lab_weight,
			self_report_score, self_report_available, self_report_weight,
			composite_score, category, scoring_method, mpr, pdc, assessed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		a.ID, a.PatientID, a.Treatment,
		a.Pharmacy.Score, a.Pharmacy.Available, a.Pharmacy.Weight,
		a.Lab.Score, a.Lab.Available, a.Lab.Weight,
		a.SelfReport.Score, a.SelfReport.Available, a.SelfReport.Weight,
		a.Composite, a.Category, a.Method, a.MPR, a.PDC, a.AssessedAt)
	return err
}

func (r *assessmentRepoPG) Latest(ctx context.Context, patientID uuid.UUID) (*Assessment, error) {
	a, err := r.scanAssessment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assessmentCols+` FROM adherence_assessment
		 WHERE patient_id = $1 ORDER BY assessed_at DESC LIMIT 1`, patientID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *assessmentRepoPG) History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM adherence_assessment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+assessmentCols+` FROM adherence_assessment
		 WHERE patient_id = $1 ORDER BY assessed_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Assessment
	for rows.Next() {
		a, err := r.scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

// =========== Refill Repository ===========

type refillRepoPG struct{ pool *pgxpool.Pool }

func NewRefillRepoPG(pool *pgxpool.Pool) RefillRepository { return &refillRepoPG{pool: pool} }

func (r *refillRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *refillRepoPG) Create(ctx context.Context, refill *Refill) error {
	refill.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO pharmacy_refill (id, patient_id, treatment, refill_date, days_supply)
		VALUES ($1,$2,$3,$4,$5)`,
		refill.ID, refill.PatientID, refill.Treatment, refill.RefillDate, refill.DaysSupply)
	return err
}

func (r *refillRepoPG) ListByPatientSince(ctx context.Context, patientID uuid.UUID, since time.Time) ([]Refill, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, treatment, refill_date, days_supply, created_at
		FROM pharmacy_refill
		WHERE patient_id = $1 AND refill_date >= $2
		ORDER BY refill_date ASC`, patientID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Refill
	for rows.Next() {
		var f Refill
		if err := rows.Scan(&f.ID, &f.PatientID, &f.Treatment, &f.RefillDate, &f.DaysSupply, &f.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, nil
}

// =========== Self Report Repository ===========

type selfReportRepoPG struct{ pool *pgxpool.Pool }

func NewSelfReportRepoPG(pool *pgxpool.Pool) SelfReportRepository {
	return &selfReportRepoPG{pool: pool}
}

func (r *selfReportRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *selfReportRepoPG) Create(ctx context.Context, sr *SelfReport) error {
	sr.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO self_report (id, patient_id, period_days, days_taken, forgot,
			stopped_feeling_worse, stopped_feeling_better, reported_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		sr.ID, sr.PatientID, sr.PeriodDays, sr.DaysTaken, sr.Forgot,
		sr.StoppedFeelingWorse, sr.StoppedFeelingBetter, sr.ReportedAt)
	return err
}

func (r *selfReportRepoPG) LatestByPatient(ctx context.Context, patientID uuid.UUID) (*SelfReport, error) {
	var sr SelfReport
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, period_days, days_taken, forgot,
			stopped_feeling_worse, stopped_feeling_better, reported_at
		FROM self_report WHERE patient_id = $1
		ORDER BY reported_at DESC LIMIT 1`, patientID).
		Scan(&sr.ID, &sr.PatientID, &sr.PeriodDays, &sr.DaysTaken, &sr.Forgot,
			&sr.StoppedFeelingWorse, &sr.StoppedFeelingBetter, &sr.ReportedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sr, nil
}
