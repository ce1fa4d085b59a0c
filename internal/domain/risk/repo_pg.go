package risk

import (
	"context"
	"encoding/json"
	"fmt"

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

type snapshotRepoPG struct{ pool *pgxpool.Pool }

func NewSnapshotRepoPG(pool *pgxpool.Pool) SnapshotRepository {
	return &snapshotRepoPG{pool: pool}
}

func (r *snapshotRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const snapshotCols = `id, patient_id, score, tier, previous_tier,
	lab_score, comorbidity_score, demographic_score, lifestyle_score, medication_score,
	egfr_trend, egfr_change_pct, priority_changed, escalated, improved,
	alert_reasons, alert_score, trigger_source, assessed_at`

func (r *snapshotRepoPG) scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var s Snapshot
	var reasons []byte
	err := row.Scan(&s.ID, &s.PatientID, &s.Score, &s.Tier, &s.PreviousTier,
		&s.LabScore, &s.ComorbidityScore, &s.DemographicScore, &s.LifestyleScore, &s.MedicationScore,
		&s.EGFRTrend, &s.EGFRChangePct, &s.PriorityChanged, &s.Escalated, &s.Improved,
		&reasons, &s.AlertScore, &s.TriggerSource, &s.AssessedAt)
	if err != nil {
		return nil, err
	}
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &s.AlertReasons); err != nil {
			return nil, fmt.Errorf("decode alert reasons: %w", err)
		}
	}
	return &s, nil
}

func (r *snapshotRepoPG) Create(ctx context.Context, s *Snapshot) error {
	s.ID = uuid.New()
	reasons, err := json.Marshal(s.AlertReasons)
	if err != nil {
		return fmt.Errorf("encode alert reasons: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO risk_snapshot (id, patient_id, score, tier, previous_tier,
			lab_score, comorbidity_score, demographic_score, lifestyle_score, medication_score,
			egfr_trend, egfr_change_pct, priority_changed, escalated, improved,
			alert_reasons, alert_score, trigger_source, assessed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		s.ID, s.PatientID, s.Score, s.Tier, s.PreviousTier,
		s.LabScore, s.ComorbidityScore, s.DemographicScore, s.LifestyleScore, s.MedicationScore,
		s.EGFRTrend, s.EGFRChangePct, s.PriorityChanged, s.Escalated, s.Improved,
		reasons, s.AlertScore, s.TriggerSource, s.AssessedAt)
	return err
}

func (r *snapshotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	return r.scanSnapshot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+snapshotCols+` FROM risk_snapshot WHERE id = $1`, id))
}

func (r *snapshotRepoPG) Latest(ctx context.Context, patientID uuid.UUID) (*Snapshot, error) {
	s, err := r.scanSnapshot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+snapshotCols+` FROM risk_snapshot
		 WHERE patient_id = $1 ORDER BY assessed_at DESC, id DESC LIMIT 1`, patientID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *snapshotRepoPG) History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Snapshot, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM risk_snapshot WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+snapshotCols+` FROM risk_snapshot
		 WHERE patient_id = $1 ORDER BY assessed_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Snapshot
	for rows.Next() {
		s, err := r.scanSnapshot(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, nil
}
