package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/ports"
)

const defaultIndexTries = 4

// PostStore possède la représentation canonique des posts et l'index par user.
// Post + index = deux écritures séquentielles, sans transaction multi-documents :
// le post d'abord, l'index ensuite. Un post persisté mais non indexé reste valide.
type PostStore struct {
	repo       ports.PostRepository
	index      ports.PostIndex
	newBackOff func() backoff.BackOff
	indexTries uint
}

type StoreOption func(*PostStore)

// WithIndexRetry remplace la politique de retry des écritures d'index.
func WithIndexRetry(tries uint, newBackOff func() backoff.BackOff) StoreOption {
	return func(s *PostStore) {
		s.indexTries = tries
		s.newBackOff = newBackOff
	}
}

func NewPostStore(repo ports.PostRepository, index ports.PostIndex, opts ...StoreOption) *PostStore {
	s := &PostStore{
		repo:       repo,
		index:      index,
		indexTries: defaultIndexTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListPage : tri created_at DESC, page 1-based.
// Le total et la tranche sont deux lectures indépendantes (quasi-cohérentes).
func (s *PostStore) ListPage(ctx context.Context, page, size int) (*domain.Page, error) {
	if page < 1 || size < 1 {
		return nil, domain.Invalid("page must be a positive integer")
	}

	// Au-delà, l'offset déborde : la page est forcément vide.
	if page > math.MaxInt/size {
		total, err := s.repo.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("list posts: %w", err)
		}
		return &domain.Page{Posts: []*domain.Post{}, TotalItems: total}, nil
	}

	var (
		total int
		posts []*domain.Post
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.repo.Count(gctx)
		total = n
		return err
	})
	g.Go(func() error {
		p, err := s.repo.List(gctx, (page-1)*size, size)
		posts = p
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if posts == nil {
		posts = []*domain.Post{}
	}
	return &domain.Page{Posts: posts, TotalItems: total}, nil
}

func (s *PostStore) Get(ctx context.Context, postID string) (*domain.Post, error) {
	if postID == "" {
		return nil, domain.ErrNotFound
	}
	return s.repo.FindByID(ctx, postID)
}

// Create persiste le post puis l'ajoute à l'index du créateur.
func (s *PostStore) Create(ctx context.Context, np *domain.NewPost) (*domain.Post, error) {
	if err := domain.ValidatePostFields(np.Title, np.Content); err != nil {
		return nil, err
	}
	if np.Image.URL == "" || np.Image.PublicID == "" {
		return nil, domain.Invalid("No image provided")
	}

	post, err := s.repo.Create(ctx, np)
	if err != nil {
		return nil, fmt.Errorf("save post: %w", err)
	}

	err = s.retryIndex(ctx, func() error {
		return s.index.Add(ctx, post.CreatorID, post)
	})
	if err != nil {
		// Le post existe mais n'est pas indexé : on le signale, on ne l'annule pas.
		slog.Error("Post saved but missing from creator index",
			"post_id", post.ID, "creator_id", post.CreatorID, "error", err)
	}
	return post, nil
}

// Authorize charge le post et vérifie que requesterID en est le créateur.
func (s *PostStore) Authorize(ctx context.Context, postID, requesterID string) (*domain.Post, error) {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.CreatorID != requesterID {
		return nil, domain.ErrForbidden
	}
	return post, nil
}

func (s *PostStore) Update(ctx context.Context, u domain.PostUpdate) (*domain.Post, error) {
	if err := domain.ValidatePostFields(u.Title, u.Content); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	return updated, nil
}

// Remove supprime le record, puis seulement ensuite l'entrée d'index.
func (s *PostStore) Remove(ctx context.Context, post *domain.Post) error {
	if err := s.repo.Delete(ctx, post.ID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	err := s.retryIndex(ctx, func() error {
		return s.index.Remove(ctx, post.CreatorID, post.ID)
	})
	if err != nil {
		slog.Error("Post deleted but still present in creator index",
			"post_id", post.ID, "creator_id", post.CreatorID, "error", err)
	}
	return nil
}

// ListByCreator résout l'index du user, du plus récent au plus ancien.
// Une entrée d'index sans post (suppression en cours) est ignorée.
func (s *PostStore) ListByCreator(ctx context.Context, userID string) ([]*domain.Post, error) {
	ids, err := s.index.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read creator index: %w", err)
	}

	posts := make([]*domain.Post, 0, len(ids))
	for _, id := range ids {
		post, err := s.repo.FindByID(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (s *PostStore) IsImageReferenced(ctx context.Context, publicID string) (bool, error) {
	return s.repo.ExistsByImagePublicID(ctx, publicID)
}

func (s *PostStore) retryIndex(ctx context.Context, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, backoff.WithBackOff(s.newBackOff()), backoff.WithMaxTries(s.indexTries))
	return err
}
