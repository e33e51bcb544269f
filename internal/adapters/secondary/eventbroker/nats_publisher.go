package eventbroker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/wire"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
)

// DefaultSubject : le canal unique du feed. Core NATS (pas JetStream) :
// live-only, aucun replay pour les abonnés tardifs.
const DefaultSubject = "feed.posts"

type NatsPublisher struct {
	nc      *nats.Conn
	subject string
}

func NewNatsPublisher(nc *nats.Conn, subject string) *NatsPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NatsPublisher{nc: nc, subject: subject}
}

// Publish ne bloque pas au-delà du buffer client NATS. Les messages d'une même
// connexion arrivent dans l'ordre de publication.
func (p *NatsPublisher) Publish(ctx context.Context, event domain.FeedEvent) error {
	data, err := wire.EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	// Le trace ID de la requête HTTP voyage dans les headers NATS
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	slog.Debug("Publishing feed event", "subject", msg.Subject, "action", event.Action, "post_id", event.PostID)

	return p.nc.PublishMsg(msg)
}
