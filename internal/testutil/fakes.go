// Package testutil fournit des implémentations en mémoire des ports secondaires.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/ports"
)

var (
	_ ports.PostRepository = (*MemoryPosts)(nil)
	_ ports.UserRepository = (*MemoryUsers)(nil)
	_ ports.PostIndex      = (*MemoryIndex)(nil)
	_ ports.MediaGateway   = (*FakeMedia)(nil)
	_ ports.EventPublisher = (*RecordingPublisher)(nil)
)

// --- PostRepository ---

// MemoryPosts attribue des created_at strictement croissants.
type MemoryPosts struct {
	mu    sync.Mutex
	posts map[string]*domain.Post
	clock time.Time

	CreateErr error
	UpdateErr error
	DeleteErr error
	Updates   int
}

func NewMemoryPosts() *MemoryPosts {
	return &MemoryPosts{
		posts: make(map[string]*domain.Post),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *MemoryPosts) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *MemoryPosts) Create(_ context.Context, np *domain.NewPost) (*domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	for _, p := range m.posts {
		if p.Image.PublicID == np.Image.PublicID {
			return nil, domain.Invalid("Image is already used by another post")
		}
	}
	now := m.tick()
	post := &domain.Post{
		ID:        uuid.NewString(),
		Title:     np.Title,
		Content:   np.Content,
		CreatorID: np.CreatorID,
		Image:     np.Image,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.posts[post.ID] = post
	cp := *post
	return &cp, nil
}

func (m *MemoryPosts) FindByID(_ context.Context, postID string) (*domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryPosts) Update(_ context.Context, u domain.PostUpdate) (*domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	existing, ok := m.posts[u.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if u.Image != nil {
		if existing.Image.PublicID != u.PreviousPublicID {
			return nil, domain.ErrConflict
		}
		existing.Image = *u.Image
	}
	existing.Title = u.Title
	existing.Content = u.Content
	existing.UpdatedAt = m.tick()
	m.Updates++
	cp := *existing
	return &cp, nil
}

func (m *MemoryPosts) Delete(_ context.Context, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	if _, ok := m.posts[postID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.posts, postID)
	return nil
}

func (m *MemoryPosts) List(_ context.Context, offset, limit int) ([]*domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*domain.Post, 0, len(m.posts))
	for _, p := range m.posts {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []*domain.Post{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *MemoryPosts) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts), nil
}

func (m *MemoryPosts) ExistsByImagePublicID(_ context.Context, publicID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if p.Image.PublicID == publicID {
			return true, nil
		}
	}
	return false, nil
}

// --- UserRepository ---

type MemoryUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func NewMemoryUsers(users ...domain.User) *MemoryUsers {
	m := &MemoryUsers{users: make(map[string]*domain.User)}
	for _, u := range users {
		u := u
		m.users[u.ID] = &u
	}
	return m
}

func (m *MemoryUsers) FindByID(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// --- PostIndex ---

// MemoryIndex garde le plus récent en tête, comme le sorted set Redis.
// Les FailAdds premiers Add échouent (idem FailRemoves pour Remove).
type MemoryIndex struct {
	mu      sync.Mutex
	entries map[string][]string

	FailAdds    int
	FailRemoves int
	AddCalls    int
	RemoveCalls int
}

var ErrIndexDown = errors.New("index unavailable")

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string][]string)}
}

func (m *MemoryIndex) Add(_ context.Context, userID string, post *domain.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddCalls++
	if m.FailAdds > 0 {
		m.FailAdds--
		return ErrIndexDown
	}
	for _, id := range m.entries[userID] {
		if id == post.ID {
			return nil
		}
	}
	m.entries[userID] = append([]string{post.ID}, m.entries[userID]...)
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, userID, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCalls++
	if m.FailRemoves > 0 {
		m.FailRemoves--
		return ErrIndexDown
	}
	ids := m.entries[userID]
	for i, id := range ids {
		if id == postID {
			m.entries[userID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryIndex) List(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.entries[userID]...), nil
}

// --- MediaGateway ---

// FakeMedia simule l'object storage.
// Les fichiers dont le nom ne finit pas par .png/.jpg/.jpeg sont refusés.
type FakeMedia struct {
	mu      sync.Mutex
	stored  map[string]domain.Image
	deleted []string
	uploads int

	UploadErr error
}

func NewFakeMedia() *FakeMedia {
	return &FakeMedia{stored: make(map[string]domain.Image)}
}

func (f *FakeMedia) Upload(_ context.Context, file domain.LocalFile) (domain.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := strings.ToLower(file.Name)
	if !strings.HasSuffix(name, ".png") && !strings.HasSuffix(name, ".jpg") && !strings.HasSuffix(name, ".jpeg") {
		return domain.Image{}, domain.Invalid("Only png, jpg and jpeg images are allowed")
	}
	if f.UploadErr != nil {
		return domain.Image{}, fmt.Errorf("%w: %v", domain.ErrUploadFailed, f.UploadErr)
	}
	f.uploads++
	assetID := uuid.NewString()
	publicID := fmt.Sprintf("feed/%d-%s", f.uploads, file.Name)
	img := domain.Image{
		URL:      "https://cdn.test/" + publicID,
		AssetID:  assetID,
		PublicID: publicID,
	}
	f.stored[publicID] = img
	return img, nil
}

func (f *FakeMedia) DeleteAsset(_ context.Context, publicID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, publicID)
	delete(f.stored, publicID)
}

func (f *FakeMedia) Has(publicID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.stored[publicID]
	return ok
}

// Deleted retourne les public IDs reçus par DeleteAsset, dans l'ordre.
func (f *FakeMedia) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *FakeMedia) Uploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

// --- EventPublisher ---

type RecordingPublisher struct {
	mu     sync.Mutex
	events []domain.FeedEvent

	Err error
}

func (r *RecordingPublisher) Publish(_ context.Context, event domain.FeedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *RecordingPublisher) Events() []domain.FeedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.FeedEvent(nil), r.events...)
}

// ImageFile construit un LocalFile fictif (FakeMedia ne lit pas le disque).
func ImageFile(name string) *domain.LocalFile {
	return &domain.LocalFile{Path: "/nonexistent/" + name, Name: name, ContentType: "image/png", Size: 128}
}
