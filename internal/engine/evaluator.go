package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/renalert/renalert/internal/domain/adherence"
	"github.com/renalert/renalert/internal/domain/patient"
	"github.com/renalert/renalert/internal/domain/phenotype"
	"github.com/renalert/renalert/internal/domain/risk"
)

// ErrStaleEvent marks an ingress event older than the patient's latest
// snapshot. The event is discarded, not reprocessed.
var ErrStaleEvent = errors.New("stale ingress event")

type RiskService interface {
	Evaluate(ctx context.Context, patientID uuid.UUID, trigger string) (*risk.Snapshot, error)
	LatestSnapshot(ctx context.Context, patientID uuid.UUID) (*risk.Snapshot, error)
}

type AdherenceService interface {
	Assess(ctx context.Context, patientID uuid.UUID, treatment *string) (*adherence.Assessment, error)
}

type PhenotypeService interface {
	Assess(ctx context.Context, patientID uuid.UUID) (*phenotype.Assessment, error)
}

type PatientLister interface {
	ListActive(ctx context.Context) ([]*patient.Patient, error)
}

// Source tables whose writes change the adherence evidence. Other sources
// skip the adherence pass and go straight to risk scoring.
var adherenceSources = map[string]bool{
	"pharmacy_refill": true,
	"self_report":     true,
	"observation":     true,
}

// Evaluator runs the full assessment pipeline (adherence, risk, phenotype)
// behind the per-patient lock. All entry points, ingress events, manual
// triggers and the population scan, funnel through the same critical
// section.
type Evaluator struct {
	locks      *Locks
	riskSvc    RiskService
	adherence  AdherenceService
	phenotypes PhenotypeService
	patients   PatientLister
	workers    int
	log        zerolog.Logger
}

func NewEvaluator(
	riskSvc RiskService,
	adherenceSvc AdherenceService,
	phenotypeSvc PhenotypeService,
	patients PatientLister,
	workers int,
	log zerolog.Logger,
) *Evaluator {
	if workers < 1 {
		workers = 1
	}
	return &Evaluator{
		locks:      NewLocks(),
		riskSvc:    riskSvc,
		adherence:  adherenceSvc,
		phenotypes: phenotypeSvc,
		patients:   patients,
		workers:    workers,
		log:        log.With().Str("component", "engine").Logger(),
	}
}

// HandleChange processes one ingress event. Events for the same patient are
// serialized by the lock; an event older than the latest snapshot is
// discarded with ErrStaleEvent.
func (e *Evaluator) HandleChange(ctx context.Context, patientID uuid.UUID, sourceTable string, occurredAt time.Time) error {
	e.locks.Lock(patientID)
	defer e.locks.Unlock(patientID)

	latest, err := e.riskSvc.LatestSnapshot(ctx, patientID)
	if err != nil {
		return fmt.Errorf("load latest snapshot: %w", err)
	}
	if latest != nil && occurredAt.Before(latest.AssessedAt) {
		e.log.Warn().
			Str("patient_id", patientID.String()).
			Str("source_table", sourceTable).
			Time("occurred_at", occurredAt).
			Time("latest_assessed_at", latest.AssessedAt).
			Msg("stale ingress event discarded")
		return ErrStaleEvent
	}

	return e.evaluateLocked(ctx, patientID, risk.TriggerDataUpdate, sourceTable)
}

// Evaluate runs the pipeline for a manual or scan trigger.
func (e *Evaluator) Evaluate(ctx context.Context, patientID uuid.UUID, trigger string) (*risk.Snapshot, error) {
	e.locks.Lock(patientID)
	defer e.locks.Unlock(patientID)

	if err := e.evaluateLocked(ctx, patientID, trigger, ""); err != nil {
		return nil, err
	}
	return e.riskSvc.LatestSnapshot(ctx, patientID)
}

// evaluateLocked is the critical section. Callers hold the patient lock.
// An empty sourceTable means "everything may have changed" and runs the
// adherence pass too.
func (e *Evaluator) evaluateLocked(ctx context.Context, patientID uuid.UUID, trigger, sourceTable string) error {
	if sourceTable == "" || adherenceSources[sourceTable] {
		if _, err := e.adherence.Assess(ctx, patientID, nil); err != nil {
			return fmt.Errorf("adherence assessment: %w", err)
		}
	}

	if _, err := e.riskSvc.Evaluate(ctx, patientID, trigger); err != nil {
		return fmt.Errorf("risk evaluation: %w", err)
	}

	if _, err := e.phenotypes.Assess(ctx, patientID); err != nil {
		return fmt.Errorf("phenotype assessment: %w", err)
	}
	return nil
}

// ScanAll evaluates every actively monitored patient on the worker pool.
// Per-patient failures are logged and counted, not fatal to the scan.
func (e *Evaluator) ScanAll(ctx context.Context) (evaluated, failed int, err error) {
	active, err := e.patients.ListActive(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list active patients: %w", err)
	}

	var ok, bad atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, p := range active {
		p := p
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if _, err := e.Evaluate(gctx, p.ID, risk.TriggerScan); err != nil {
				bad.Add(1)
				e.log.Error().Err(err).
					Str("patient_id", p.ID.String()).
					Msg("scan evaluation failed")
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(ok.Load()), int(bad.Load()), err
	}

	e.log.Info().
		Int("patients", len(active)).
		Int64("evaluated", ok.Load()).
		Int64("failed", bad.Load()).
		Msg("population scan complete")
	return int(ok.Load()), int(bad.Load()), nil
}
