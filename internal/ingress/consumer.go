package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/renalert/renalert/internal/engine"
	"github.com/renalert/renalert/internal/platform/stream"
)

const (
	readBatch = 10
	readBlock = 5 * time.Second
)

// ChangeHandler evaluates one ingress event. Satisfied by engine.Evaluator.
type ChangeHandler interface {
	HandleChange(ctx context.Context, patientID uuid.UUID, sourceTable string, occurredAt time.Time) error
}

// Consumer drains the ingress stream through a consumer-group worker pool.
// Per-patient ordering is the engine's job (keyed lock); the pool only
// provides cross-patient parallelism.
type Consumer struct {
	client   *stream.Client
	stream   string
	group    string
	consumer string
	workers  int
	handler  ChangeHandler
	log      zerolog.Logger
}

func NewConsumer(client *stream.Client, streamName, group, consumer string, workers int, handler ChangeHandler, log zerolog.Logger) *Consumer {
	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		client:   client,
		stream:   streamName,
		group:    group,
		consumer: consumer,
		workers:  workers,
		handler:  handler,
		log:      log.With().Str("component", "ingress_consumer").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.client.EnsureGroup(ctx, c.stream, c.group); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		worker := i
		g.Go(func() error {
			return c.work(gctx, worker)
		})
	}
	return g.Wait()
}

func (c *Consumer) work(ctx context.Context, worker int) error {
	name := c.consumer
	if c.workers > 1 {
		name = c.consumer + "-" + uuid.NewString()[:8]
	}
	log := c.log.With().Int("worker", worker).Logger()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := c.client.ReadGroup(ctx, c.stream, c.group, name, readBatch, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("ingress read failed")
			time.Sleep(time.Second)
			continue
		}
		for _, m := range msgs {
			c.handle(ctx, log, m)
		}
	}
}

// handle processes one stream entry and always acks it: stale events are
// discarded on purpose, malformed ones cannot be repaired by redelivery,
// and a failed evaluation is retried wholesale on the patient's next event.
func (c *Consumer) handle(ctx context.Context, log zerolog.Logger, m stream.Message) {
	defer func() {
		if err := c.client.Ack(ctx, c.stream, c.group, m.ID); err != nil {
			log.Error().Err(err).Str("stream_id", m.ID).Msg("ingress ack failed")
		}
	}()

	var evt Event
	if err := json.Unmarshal(m.Payload, &evt); err != nil {
		log.Error().Err(err).Str("stream_id", m.ID).Msg("malformed ingress event dropped")
		return
	}

	err := c.handler.HandleChange(ctx, evt.PatientID, evt.SourceTable, evt.OccurredAt)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrStaleEvent):
		// Already warned inside the engine.
	default:
		log.Error().Err(err).
			Str("patient_id", evt.PatientID.String()).
			Str("source_table", evt.SourceTable).
			Msg("ingress evaluation failed")
	}
}
