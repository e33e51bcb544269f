package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
)

func TestDeleteEventCarriesOnlyTheID(t *testing.T) {
	data, err := EncodeEvent(domain.FeedEvent{Seq: 7, Action: domain.ActionDelete, PostID: "p-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":7,"action":"delete","post":"p-1"}`, string(data))

	event, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, "p-1", event.PostID)
	assert.Nil(t, event.Post)
}

func TestCreateEventEmbedsCreator(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	post := &domain.Post{
		ID: "p-1", Title: "A", Content: "B", CreatorID: "u-1",
		Image:     domain.Image{URL: "https://cdn.test/feed/a.png", AssetID: "as-1", PublicID: "feed/a.png"},
		CreatedAt: now, UpdatedAt: now,
	}
	data, err := EncodeEvent(domain.CreatedEvent(post, &domain.Creator{ID: "u-1", Name: "Alice"}))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	payload := raw["post"].(map[string]any)
	assert.Equal(t, "https://cdn.test/feed/a.png", payload["imageUrl"])
	assert.Equal(t, "Alice", payload["creator"].(map[string]any)["name"])

	event, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCreate, event.Action)
	assert.Equal(t, post, event.Post)
	assert.Equal(t, "p-1", event.PostID)
	require.NotNil(t, event.Creator)
	assert.Equal(t, "Alice", event.Creator.Name)
}

func TestEncodeRejectsIncompleteEvents(t *testing.T) {
	_, err := EncodeEvent(domain.FeedEvent{Action: domain.ActionUpdate})
	assert.Error(t, err)

	_, err = EncodeEvent(domain.FeedEvent{Action: "archive"})
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`{"action":"archive","post":"x"}`))
	assert.Error(t, err)
}
