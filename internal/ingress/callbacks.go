package ingress

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/renalert/renalert/internal/domain/notification"
	"github.com/renalert/renalert/internal/platform/stream"
)

// CallbackApplier advances a notification's delivery lifecycle. Satisfied by
// the notification service.
type CallbackApplier interface {
	ApplyCallback(ctx context.Context, cb notification.DeliveryCallback) error
}

// CallbackConsumer drains delivery callbacks from the delivery subsystem.
// A single consumer suffices: callbacks are idempotent first-write-wins
// updates, so ordering across notifications does not matter.
type CallbackConsumer struct {
	client   *stream.Client
	stream   string
	group    string
	consumer string
	applier  CallbackApplier
	log      zerolog.Logger
}

func NewCallbackConsumer(client *stream.Client, streamName, group, consumer string, applier CallbackApplier, log zerolog.Logger) *CallbackConsumer {
	return &CallbackConsumer{
		client:   client,
		stream:   streamName,
		group:    group,
		consumer: consumer,
		applier:  applier,
		log:      log.With().Str("component", "callback_consumer").Logger(),
	}
}

func (c *CallbackConsumer) Run(ctx context.Context) error {
	if err := c.client.EnsureGroup(ctx, c.stream, c.group); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := c.client.ReadGroup(ctx, c.stream, c.group, c.consumer, readBatch, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Msg("callback read failed")
			time.Sleep(time.Second)
			continue
		}
		for _, m := range msgs {
			c.handle(ctx, m)
		}
	}
}

func (c *CallbackConsumer) handle(ctx context.Context, m stream.Message) {
	defer func() {
		if err := c.client.Ack(ctx, c.stream, c.group, m.ID); err != nil {
			c.log.Error().Err(err).Str("stream_id", m.ID).Msg("callback ack failed")
		}
	}()

	var cb notification.DeliveryCallback
	if err := json.Unmarshal(m.Payload, &cb); err != nil {
		c.log.Error().Err(err).Str("stream_id", m.ID).Msg("malformed delivery callback dropped")
		return
	}

	if err := c.applier.ApplyCallback(ctx, cb); err != nil {
		// Invariant violations (negative durations) land here: surfaced to
		// operators via the log, never silently corrected.
		c.log.Error().Err(err).
			Str("notification_id", cb.NotificationID.String()).
			Str("new_status", cb.NewStatus).
			Msg("delivery callback rejected")
	}
}
