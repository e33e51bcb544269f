package ports

import (
	"context"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
)

// CreatePostCmd : Image est obligatoire (fichier temporaire local).
type CreatePostCmd struct {
	Title   string
	Content string
	Image   *domain.LocalFile
}

type CreatePostResult struct {
	Post    *domain.Post
	Creator domain.Creator
}

type UploadAssetCmd struct {
	File        *domain.LocalFile
	OldPublicID string
}

// FeedService est l'orchestrateur exposé à l'adapter HTTP.
// userID est l'identité vérifiée de l'appelant ("" = anonyme).
type FeedService interface {
	ListPosts(ctx context.Context, page int) (*domain.Page, error)
	GetPost(ctx context.Context, postID string) (*domain.Post, error)
	ListUserPosts(ctx context.Context, userID string) ([]*domain.Post, error)
	CreatePost(ctx context.Context, userID string, cmd CreatePostCmd) (*CreatePostResult, error)
	UpdatePost(ctx context.Context, userID, postID string, changes domain.PostChanges) (*domain.Post, error)
	DeletePost(ctx context.Context, userID, postID string) error

	UploadAsset(ctx context.Context, userID string, cmd UploadAssetCmd) (domain.Image, error)
}

// FeedSubscriber est le côté lecture du notifier (transport live).
type FeedSubscriber interface {
	Subscribe(ctx context.Context) (<-chan domain.FeedEvent, string)
}

// TokenVerifier valide un token et retourne l'ID utilisateur vérifié.
type TokenVerifier interface {
	Validate(token string) (string, error)
}
