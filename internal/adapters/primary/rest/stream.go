package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/wire"
)

const writeWait = 10 * time.Second

// stream pousse chaque FeedEvent au client websocket, dans l'ordre du hub.
// Le client ne reçoit que ce qui est publié après sa connexion.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, subID := s.feed.Subscribe(ctx)
	slog.Debug("Feed subscriber connected", "subscriber_id", subID)

	// Lecture en fond : seul moyen de détecter la déconnexion du client.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.pingEvery)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Feed subscriber disconnected", "subscriber_id", subID)
			return

		case event, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Le hub nous a lâché (buffer plein) : le client doit se reconnecter.
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"))
				return
			}
			msg, err := wire.NewFeedEvent(event)
			if err != nil {
				slog.Error("Invalid feed event", "action", event.Action, "error", err)
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				slog.Debug("Feed write failed", "subscriber_id", subID, "error", err)
				return
			}

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
