package ingress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalert/renalert/internal/platform/stream"
)

// Publisher queues ingress events on the Redis stream. Write paths call it
// synchronously: the write is not complete until XADD succeeds, so a queued
// event is durable before the caller returns.
type Publisher struct {
	client *stream.Client
	stream string
	log    zerolog.Logger
}

func NewPublisher(client *stream.Client, streamName string, log zerolog.Logger) *Publisher {
	return &Publisher{
		client: client,
		stream: streamName,
		log:    log.With().Str("component", "ingress_publisher").Logger(),
	}
}

// PublishChange satisfies the ChangePublisher dependency of the patient and
// observation services.
func (p *Publisher) PublishChange(ctx context.Context, patientID uuid.UUID, sourceTable string, changedFields []string, occurredAt time.Time) error {
	evt := Event{
		PatientID:     patientID,
		SourceTable:   sourceTable,
		ChangedFields: changedFields,
		OccurredAt:    occurredAt,
	}
	id, err := p.client.PublishJSON(ctx, p.stream, evt)
	if err != nil {
		return fmt.Errorf("queue ingress event: %w", err)
	}
	p.log.Debug().
		Str("patient_id", patientID.String()).
		Str("source_table", sourceTable).
		Strs("changed_fields", changedFields).
		Str("stream_id", id).
		Msg("ingress event queued")
	return nil
}
