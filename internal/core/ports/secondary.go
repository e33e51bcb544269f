package ports

import (
	"context"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
)

// PostRepository : le document store (find/save/delete par id).
// L'ID et les timestamps sont attribués par le store.
type PostRepository interface {
	Create(ctx context.Context, post *domain.NewPost) (*domain.Post, error)
	FindByID(ctx context.Context, postID string) (*domain.Post, error)
	// Update renvoie ErrConflict si l'image attendue n'est plus celle du post.
	Update(ctx context.Context, update domain.PostUpdate) (*domain.Post, error)
	Delete(ctx context.Context, postID string) error

	// Pagination offset (page 1-based côté service). Count est une lecture séparée.
	List(ctx context.Context, offset, limit int) ([]*domain.Post, error)
	Count(ctx context.Context) (int, error)

	// Vrai si un post vivant référence cet asset.
	ExistsByImagePublicID(ctx context.Context, publicID string) (bool, error)
}

type UserRepository interface {
	FindByID(ctx context.Context, userID string) (*domain.User, error)
}

// PostIndex : l'index secondaire user -> posts créés.
type PostIndex interface {
	Add(ctx context.Context, userID string, post *domain.Post) error
	Remove(ctx context.Context, userID, postID string) error
	List(ctx context.Context, userID string) ([]string, error)
}

// MediaGateway enveloppe l'object storage.
type MediaGateway interface {
	// Upload supprime toujours le fichier local, quel que soit le résultat.
	Upload(ctx context.Context, file domain.LocalFile) (domain.Image, error)
	// DeleteAsset est best-effort : les erreurs sont loguées, jamais remontées.
	DeleteAsset(ctx context.Context, publicID string)
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.FeedEvent) error
}
