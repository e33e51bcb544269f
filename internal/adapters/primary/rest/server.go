package rest

import (
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/ports"
)

type Server struct {
	service   ports.FeedService
	feed      ports.FeedSubscriber
	uploadDir string
	upgrader  websocket.Upgrader
	pingEvery time.Duration
}

type Option func(*Server)

// WithUploadDir : dossier des fichiers temporaires (défaut : os.TempDir()).
func WithUploadDir(dir string) Option {
	return func(s *Server) {
		if dir != "" {
			s.uploadDir = dir
		}
	}
}

// NewCORS : la politique CORS de l'API, partagée avec le handshake websocket.
func NewCORS(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
}

// WithCORS applique la politique CORS au stream : une origine refusée par
// l'API l'est aussi par le websocket. Sans header Origin (client non
// navigateur), le handshake est accepté.
func WithCORS(c *cors.Cors) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			if r.Header.Get("Origin") == "" {
				return true
			}
			return c.OriginAllowed(r)
		}
	}
}

func NewServer(service ports.FeedService, feed ports.FeedSubscriber, opts ...Option) *Server {
	s := &Server{
		service:   service,
		feed:      feed,
		uploadDir: os.TempDir(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingEvery: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register branche les routes sur le mux (patterns méthode + chemin).
func (s *Server) Register(mux *http.ServeMux) {
	// --- QUERIES (Read) ---
	mux.HandleFunc("GET /feed/posts", s.listPosts)
	mux.HandleFunc("GET /feed/post/{postId}", s.getPost)
	mux.HandleFunc("GET /feed/users/{userId}/posts", s.listUserPosts)

	// --- COMMANDS (Write) ---
	mux.HandleFunc("POST /feed/post", s.createPost)
	mux.HandleFunc("PUT /feed/post/{postId}", s.updatePost)
	mux.HandleFunc("DELETE /feed/post/{postId}", s.deletePost)
	mux.HandleFunc("PUT /post-image", s.uploadImage)

	// --- LIVE ---
	mux.HandleFunc("GET /feed/stream", s.stream)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

// Handler retourne un mux prêt à l'emploi.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}
