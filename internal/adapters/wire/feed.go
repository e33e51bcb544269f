// Package wire : les formats JSON partagés par l'API HTTP, le stream websocket
// et le sujet NATS du feed. Le domaine reste sans tags JSON.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
)

type Creator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Post struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	ImageURL      string    `json:"imageUrl"`
	ImageAssetID  string    `json:"imageAssetId"`
	ImagePublicID string    `json:"imagePublicId"`
	CreatorID     string    `json:"creatorId"`
	Creator       *Creator  `json:"creator,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// FeedEvent : Post contient le post complet pour create/update,
// et une simple chaîne JSON (l'ID) pour delete.
type FeedEvent struct {
	Seq    uint64          `json:"seq,omitempty"`
	Action domain.Action   `json:"action"`
	Post   json.RawMessage `json:"post"`
}

func NewPost(p *domain.Post) Post {
	return Post{
		ID:            p.ID,
		Title:         p.Title,
		Content:       p.Content,
		ImageURL:      p.Image.URL,
		ImageAssetID:  p.Image.AssetID,
		ImagePublicID: p.Image.PublicID,
		CreatorID:     p.CreatorID,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func NewPosts(posts []*domain.Post) []Post {
	out := make([]Post, len(posts))
	for i, p := range posts {
		out[i] = NewPost(p)
	}
	return out
}

func (p Post) ToDomain() *domain.Post {
	return &domain.Post{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		CreatorID: p.CreatorID,
		Image: domain.Image{
			URL:      p.ImageURL,
			AssetID:  p.ImageAssetID,
			PublicID: p.ImagePublicID,
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func NewFeedEvent(e domain.FeedEvent) (FeedEvent, error) {
	var payload any
	switch e.Action {
	case domain.ActionDelete:
		payload = e.PostID
	case domain.ActionCreate, domain.ActionUpdate:
		if e.Post == nil {
			return FeedEvent{}, fmt.Errorf("%s event without post", e.Action)
		}
		p := NewPost(e.Post)
		if e.Creator != nil {
			p.Creator = &Creator{ID: e.Creator.ID, Name: e.Creator.Name}
		}
		payload = p
	default:
		return FeedEvent{}, fmt.Errorf("unknown feed action %q", e.Action)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return FeedEvent{}, err
	}
	return FeedEvent{Seq: e.Seq, Action: e.Action, Post: raw}, nil
}

func EncodeEvent(e domain.FeedEvent) ([]byte, error) {
	msg, err := NewFeedEvent(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func DecodeEvent(data []byte) (domain.FeedEvent, error) {
	var msg FeedEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.FeedEvent{}, err
	}

	event := domain.FeedEvent{Seq: msg.Seq, Action: msg.Action}
	switch msg.Action {
	case domain.ActionDelete:
		if err := json.Unmarshal(msg.Post, &event.PostID); err != nil {
			return domain.FeedEvent{}, fmt.Errorf("delete payload: %w", err)
		}
	case domain.ActionCreate, domain.ActionUpdate:
		var p Post
		if err := json.Unmarshal(msg.Post, &p); err != nil {
			return domain.FeedEvent{}, fmt.Errorf("%s payload: %w", msg.Action, err)
		}
		event.Post = p.ToDomain()
		event.PostID = p.ID
		if p.Creator != nil {
			event.Creator = &domain.Creator{ID: p.Creator.ID, Name: p.Creator.Name}
		}
	default:
		return domain.FeedEvent{}, fmt.Errorf("unknown feed action %q", msg.Action)
	}
	return event, nil
}
