package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/ports"
)

// PageSize est fixe : 2 posts par page.
const PageSize = 2

const defaultMutationTimeout = 30 * time.Second

// FeedService orchestre Media Gateway -> Post Store -> Notifier.
// Chaque mutation est un pipeline explicite d'étapes faillibles ; la politique
// de rollback de chaque étape est écrite à côté de l'étape.
type FeedService struct {
	store     *PostStore
	users     ports.UserRepository
	media     ports.MediaGateway
	publisher ports.EventPublisher
	timeout   time.Duration
}

type Option func(*FeedService)

// WithMutationTimeout borne la durée d'une mutation détachée du client.
func WithMutationTimeout(d time.Duration) Option {
	return func(s *FeedService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewFeedService(
	store *PostStore,
	users ports.UserRepository,
	media ports.MediaGateway,
	pub ports.EventPublisher,
	opts ...Option,
) *FeedService {
	s := &FeedService{
		store:     store,
		users:     users,
		media:     media,
		publisher: pub,
		timeout:   defaultMutationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.FeedService = (*FeedService)(nil)

// --- QUERIES ---

func (s *FeedService) ListPosts(ctx context.Context, page int) (*domain.Page, error) {
	return s.store.ListPage(ctx, page, PageSize)
}

func (s *FeedService) GetPost(ctx context.Context, postID string) (*domain.Post, error) {
	return s.store.Get(ctx, postID)
}

func (s *FeedService) ListUserPosts(ctx context.Context, userID string) ([]*domain.Post, error) {
	if userID == "" {
		return nil, domain.ErrNotFound
	}
	return s.store.ListByCreator(ctx, userID)
}

// --- COMMANDS ---

func (s *FeedService) CreatePost(ctx context.Context, userID string, cmd ports.CreatePostCmd) (*ports.CreatePostResult, error) {
	// 1. Gates : identité puis validation, avant tout effet de bord
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if err := domain.ValidatePostFields(cmd.Title, cmd.Content); err != nil {
		return nil, err
	}
	if cmd.Image == nil {
		return nil, domain.Invalid("No image provided")
	}

	ctx, cancel := s.detach(ctx)
	defer cancel()

	// 2. Résolution du créateur (un token valide pour un user inconnu = anonyme)
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}

	// 3. Upload
	image, err := s.media.Upload(ctx, *cmd.Image)
	if err != nil {
		return nil, err
	}

	// 4. Persistance (rollback : l'asset uploadé n'est référencé par personne)
	post, err := s.store.Create(ctx, &domain.NewPost{
		Title:     cmd.Title,
		Content:   cmd.Content,
		CreatorID: user.ID,
		Image:     image,
	})
	if err != nil {
		s.media.DeleteAsset(ctx, image.PublicID)
		return nil, err
	}

	// 5. Annonce
	creator := domain.Creator{ID: user.ID, Name: user.Name}
	s.publish(ctx, domain.CreatedEvent(post, &creator))

	return &ports.CreatePostResult{Post: post, Creator: creator}, nil
}

func (s *FeedService) UpdatePost(ctx context.Context, userID, postID string, changes domain.PostChanges) (*domain.Post, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if err := domain.ValidatePostFields(changes.Title, changes.Content); err != nil {
		return nil, err
	}
	if changes.NewImage == nil && changes.ImageURL == "" {
		return nil, domain.Invalid("No file picked")
	}

	ctx, cancel := s.detach(ctx)
	defer cancel()

	// 1. Existence + propriété, avant tout upload
	post, err := s.store.Authorize(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	// Sans nouveau fichier, l'URL fournie doit être l'image courante :
	// une URL seule ne fabrique jamais de nouvelle paire d'identifiants.
	if changes.NewImage == nil && changes.ImageURL != post.Image.URL {
		return nil, domain.Invalid("Image url does not match the post's current image")
	}

	// 2. Upload éventuel
	previous := post.Image
	update := domain.PostUpdate{
		ID:      post.ID,
		Title:   changes.Title,
		Content: changes.Content,
	}
	if changes.NewImage != nil {
		image, err := s.media.Upload(ctx, *changes.NewImage)
		if err != nil {
			return nil, err
		}
		update.Image = &image
		update.PreviousPublicID = previous.PublicID
	}

	// 3. Persistance. Le swap n'est écrit que si le post référence encore
	// previous ; en cas d'échec le nouvel asset est récupéré, l'ancien reste.
	updated, err := s.store.Update(ctx, update)
	if err != nil {
		if update.Image != nil {
			s.media.DeleteAsset(ctx, update.Image.PublicID)
		}
		return nil, err
	}

	// 4. Reclamation de l'ancienne image, seulement une fois le swap committé
	if update.Image != nil && update.Image.PublicID != previous.PublicID {
		s.media.DeleteAsset(ctx, previous.PublicID)
	}

	s.publish(ctx, domain.UpdatedEvent(updated))
	return updated, nil
}

func (s *FeedService) DeletePost(ctx context.Context, userID, postID string) error {
	if userID == "" {
		return domain.ErrUnauthenticated
	}

	ctx, cancel := s.detach(ctx)
	defer cancel()

	post, err := s.store.Authorize(ctx, postID, userID)
	if err != nil {
		return err
	}

	// Record d'abord : aucun post vivant ne pointe vers un asset supprimé.
	if err := s.store.Remove(ctx, post); err != nil {
		return err
	}
	s.media.DeleteAsset(ctx, post.Image.PublicID)

	s.publish(ctx, domain.DeletedEvent(post.ID))
	return nil
}

// UploadAsset : upload seul, avec reclamation optionnelle d'un ancien asset.
func (s *FeedService) UploadAsset(ctx context.Context, userID string, cmd ports.UploadAssetCmd) (domain.Image, error) {
	if userID == "" {
		return domain.Image{}, domain.ErrUnauthenticated
	}
	if cmd.File == nil {
		return domain.Image{}, domain.Invalid("No file provided")
	}

	ctx, cancel := s.detach(ctx)
	defer cancel()

	image, err := s.media.Upload(ctx, *cmd.File)
	if err != nil {
		return domain.Image{}, err
	}

	if cmd.OldPublicID != "" && cmd.OldPublicID != image.PublicID {
		s.reclaimUnreferenced(ctx, cmd.OldPublicID)
	}
	return image, nil
}

// --- HELPERS ---

// detach : le client peut partir, la mutation va jusqu'au bout (bornée par timeout).
func (s *FeedService) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

// reclaimUnreferenced ne supprime jamais l'image d'un post vivant.
func (s *FeedService) reclaimUnreferenced(ctx context.Context, publicID string) {
	referenced, err := s.store.IsImageReferenced(ctx, publicID)
	if err != nil {
		slog.Warn("Skipping asset reclamation, reference check failed", "public_id", publicID, "error", err)
		return
	}
	if referenced {
		slog.Warn("Skipping asset reclamation, asset still used by a post", "public_id", publicID)
		return
	}
	s.media.DeleteAsset(ctx, publicID)
}

// publish : la mutation est déjà committée, un échec ne remonte jamais.
func (s *FeedService) publish(ctx context.Context, event domain.FeedEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.Error("Failed to publish feed event",
			"action", event.Action, "post_id", event.PostID, "error", err)
	}
}
