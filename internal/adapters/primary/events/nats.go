package events

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/wire"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/ports"
)

// Relay relaie le sujet NATS du feed vers le hub local (et donc les websockets
// de cette instance). Les callbacks d'une même subscription NATS sont
// séquentiels : l'ordre du sujet est conservé.
type Relay struct {
	local ports.EventPublisher
}

func NewRelay(local ports.EventPublisher) *Relay {
	return &Relay{local: local}
}

// Subscribe branche le relay sur subject.
func (h *Relay) Subscribe(nc *nats.Conn, subject string) (*nats.Subscription, error) {
	return nc.Subscribe(subject, h.HandleFeedEvent)
}

func (h *Relay) HandleFeedEvent(msg *nats.Msg) {
	// Contexte de trace du publisher (headers NATS)
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))

	tracer := otel.Tracer("post-feed")
	ctx, span := tracer.Start(ctx, "relay_feed_event", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	event, err := wire.DecodeEvent(msg.Data)
	if err != nil {
		span.RecordError(err)
		slog.Error("Invalid feed event format", "subject", msg.Subject, "error", err)
		return
	}

	if err := h.local.Publish(ctx, event); err != nil {
		span.RecordError(err)
		slog.Error("Failed to relay feed event", "action", event.Action, "post_id", event.PostID, "error", err)
	}
}
