package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
)

func receive(t *testing.T, ch <-chan domain.FeedEvent) domain.FeedEvent {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return domain.FeedEvent{}
}

func TestHub_AllSubscribersSeeSameOrder(t *testing.T) {
	hub := NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := hub.Subscribe(ctx)
	b, _ := hub.Subscribe(ctx)

	ids := []string{"p1", "p2", "p3"}
	for _, id := range ids {
		require.NoError(t, hub.Publish(ctx, domain.DeletedEvent(id)))
	}

	for _, ch := range []<-chan domain.FeedEvent{a, b} {
		for i, id := range ids {
			e := receive(t, ch)
			assert.Equal(t, id, e.PostID)
			assert.Equal(t, uint64(i+1), e.Seq)
		}
	}
}

func TestHub_NoReplayForLateSubscriber(t *testing.T) {
	hub := NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, hub.Publish(ctx, domain.DeletedEvent("before")))

	ch, _ := hub.Subscribe(ctx)
	require.NoError(t, hub.Publish(ctx, domain.DeletedEvent("after")))

	e := receive(t, ch)
	assert.Equal(t, "after", e.PostID)
	assert.Equal(t, uint64(2), e.Seq)
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(1)
	assert.NoError(t, hub.Publish(context.Background(), domain.DeletedEvent("x")))
	assert.Zero(t, hub.ActiveSubscribers())
}

func TestHub_SlowSubscriberIsDisconnected(t *testing.T) {
	hub := NewHub(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow, _ := hub.Subscribe(ctx)
	fast, _ := hub.Subscribe(ctx)

	require.NoError(t, hub.Publish(ctx, domain.DeletedEvent("1")))
	assert.Equal(t, "1", receive(t, fast).PostID)

	// buffer de slow plein : le second Publish le déconnecte
	require.NoError(t, hub.Publish(ctx, domain.DeletedEvent("2")))
	assert.Equal(t, "2", receive(t, fast).PostID)
	assert.Equal(t, 1, hub.ActiveSubscribers())

	e, ok := <-slow
	require.True(t, ok)
	assert.Equal(t, "1", e.PostID, "buffered events are still delivered")
	_, ok = <-slow
	assert.False(t, ok, "no gap: the channel is closed instead")
}

func TestHub_UnsubscribeOnContextDone(t *testing.T) {
	hub := NewHub(4)
	ctx, cancel := context.WithCancel(context.Background())

	ch, _ := hub.Subscribe(ctx)
	assert.Equal(t, 1, hub.ActiveSubscribers())

	cancel()
	assert.Eventually(t, func() bool { return hub.ActiveSubscribers() == 0 }, time.Second, 10*time.Millisecond)

	_, ok := <-ch
	assert.False(t, ok)
}
