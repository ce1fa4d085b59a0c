package patient

import (
	"context"

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

// =========== Patient Repository ===========

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

const patientCols = `id, name, mrn, date_of_birth, gender, ethnicity, recipient, facility,
	doctor_name, monitoring_status, current_risk_tier, current_risk_score, current_snapshot_id,
	created_at, updated_at`

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.MRN, &p.DateOfBirth, &p.Gender, &p.Ethnicity, &p.Recipient,
		&p.Facility, &p.DoctorName, &p.MonitoringStatus, &p.CurrentRiskTier, &p.CurrentRiskScore,
		&p.CurrentSnapshotID, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, name, mrn, date_of_birth, gender, ethnicity, recipient,
			facility, doctor_name, monitoring_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.Name, p.MRN, p.DateOfBirth, p.Gender, p.Ethnicity, p.Recipient,
		p.Facility, p.DoctorName, p.MonitoringStatus)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET name=$2, mrn=$3, date_of_birth=$4, gender=$5, ethnicity=$6,
			recipient=$7, facility=$8, doctor_name=$9, monitoring_status=$10, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.MRN, p.DateOfBirth, p.Gender, p.Ethnicity,
		p.Recipient, p.Facility, p.DoctorName, p.MonitoringStatus)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *repoPG) ListActive(ctx context.Context) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patient WHERE monitoring_status = $1 ORDER BY created_at`, MonitoringActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, nil
}

func (r *repoPG) UpdateRiskCache(ctx context.Context, id uuid.UUID, tier string, score float64, snapshotID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET current_risk_tier=$2, current_risk_score=$3, current_snapshot_id=$4, updated_at=NOW()
		WHERE id = $1`,
		id, tier, score, snapshotID)
	return err
}

// =========== Clinical Profile Repository ===========

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository { return &profileRepoPG{pool: pool} }

func (r *profileRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const profileCols = `patient_id, diabetes, diabetes_controlled, hypertension, hypertension_controlled,
	cardiovascular_disease, prior_aki, smoking_status, bmi, on_ras_inhibitor, on_sglt2_inhibitor,
	nephrotoxic_med_count, renoprotective_med_count, sees_nephrologist, updated_at`

func (r *profileRepoPG) Get(ctx context.Context, patientID uuid.UUID) (*ClinicalProfile, error) {
	var cp ClinicalProfile
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+profileCols+` FROM clinical_profile WHERE patient_id = $1`, patientID).
		Scan(&cp.PatientID, &cp.Diabetes, &cp.DiabetesControlled, &cp.Hypertension, &cp.HypertensionControlled,
			&cp.CardiovascularDisease, &cp.PriorAKI, &cp.SmokingStatus, &cp.BMI, &cp.OnRASInhibitor,
			&cp.OnSGLT2Inhibitor, &cp.NephrotoxicMedCount, &cp.RenoprotectiveMedCount, &cp.SeesNephrologist,
			&cp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *profileRepoPG) Upsert(ctx context.Context, cp *ClinicalProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_profile (patient_id, diabetes, diabetes_controlled, hypertension,
			hypertension_controlled, cardiovascular_disease, prior_aki, smoking_status, bmi,
			on_ras_inhibitor, on_sglt2_inhibitor, nephrotoxic_med_count, renoprotective_med_count,
			sees_nephrologist)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (patient_id) DO UPDATE SET
			diabetes=EXCLUDED.diabetes, diabetes_controlled=EXCLUDED.diabetes_controlled,
			hypertension=EXCLUDED.hypertension, hypertension_controlled=EXCLUDED.hypertension_controlled,
			cardiovascular_disease=EXCLUDED.cardiovascular_disease, prior_aki=EXCLUDED.prior_aki,
			smoking_status=EXCLUDED.smoking_status, bmi=EXCLUDED.bmi,
			on_ras_inhibitor=EXCLUDED.on_ras_inhibitor, on_sglt2_inhibitor=EXCLUDED.on_sglt2_inhibitor,
			nephrotoxic_med_count=EXCLUDED.nephrotoxic_med_count,
			renoprotective_med_count=EXCLUDED.renoprotective_med_count,
			sees_nephrologist=EXCLUDED.sees_nephrologist,
			updated_at=NOW()`,
		cp.PatientID, cp.Diabetes, cp.DiabetesControlled, cp.Hypertension, cp.HypertensionControlled,
		cp.CardiovascularDisease, cp.PriorAKI, cp.SmokingStatus, cp.BMI, cp.OnRASInhibitor,
		cp.OnSGLT2Inhibitor, cp.NephrotoxicMedCount, cp.RenoprotectiveMedCount, cp.SeesNephrologist)
	return err
}
