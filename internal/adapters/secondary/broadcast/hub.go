package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
)

const DefaultBufferSize = 64

// Hub diffuse chaque FeedEvent à tous les abonnés connectés à l'instant T.
// Pas de log, pas de replay : un abonné arrivé après un Publish ne le voit pas.
type Hub struct {
	// subscribers : id -> canal bufferisé. Un abonné dont le buffer est plein est
	// déconnecté (canal fermé) plutôt que de bloquer le publisher ou de sauter
	// un événement en silence.
	subscribers map[string]chan domain.FeedEvent
	bufferSize  int
	seq         uint64

	// Publish prend le lock en écriture : tous les abonnés voient le même ordre.
	mu sync.Mutex
}

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subscribers: make(map[string]chan domain.FeedEvent),
		bufferSize:  bufferSize,
	}
}

// Subscribe enregistre un abonné jusqu'à la fin de ctx.
func (h *Hub) Subscribe(ctx context.Context) (<-chan domain.FeedEvent, string) {
	id := "feed_subscriber_" + uuid.NewString()
	ch := make(chan domain.FeedEvent, h.bufferSize)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.unsubscribe(id)
	}()

	return ch, id
}

// Publish attribue le numéro de séquence et distribue sans jamais bloquer.
func (h *Hub) Publish(_ context.Context, event domain.FeedEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	event.Seq = h.seq

	for id, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			delete(h.subscribers, id)
			close(ch)
			slog.Warn("Dropping slow feed subscriber", "subscriber_id", id, "seq", event.Seq)
		}
	}
	return nil
}

func (h *Hub) ActiveSubscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}
