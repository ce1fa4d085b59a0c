package ingress

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/renalert/renalert/internal/domain/notification"
	"github.com/renalert/renalert/internal/platform/stream"
)

// DispatchPublisher pushes outbound delivery requests onto the dispatch
// stream for the email/SMS subsystem. Satisfies
// notification.DispatchPublisher.
type DispatchPublisher struct {
	client *stream.Client
	stream string
	log    zerolog.Logger
}

func NewDispatchPublisher(client *stream.Client, streamName string, log zerolog.Logger) *DispatchPublisher {
	return &DispatchPublisher{
		client: client,
		stream: streamName,
		log:    log.With().Str("component", "dispatch_publisher").Logger(),
	}
}

func (p *DispatchPublisher) PublishDelivery(ctx context.Context, req notification.DeliveryRequest) error {
	id, err := p.client.PublishJSON(ctx, p.stream, req)
	if err != nil {
		return fmt.Errorf("queue delivery request: %w", err)
	}
	p.log.Debug().
		Str("notification_id", req.NotificationID.String()).
		Str("priority", req.Priority).
		Str("stream_id", id).
		Msg("delivery request queued")
	return nil
}
