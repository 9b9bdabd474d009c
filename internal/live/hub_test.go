package live

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/plainhr/plain/internal/models"
)

func TestCommentAdded(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := hub.Subscribe(ctx, models.PostTypeStory, "post1")
	second := hub.Subscribe(ctx, models.PostTypeStory, "post1")
	other := hub.Subscribe(ctx, models.PostTypeLounge, "post1")

	comment := &models.Comment{ID: "comment1", PostType: models.PostTypeStory, PostID: "post1", Content: "Тестовый комментарий"}
	hub.Publish(comment)

	for _, ch := range []<-chan *models.Comment{first, second} {
		select {
		case received := <-ch:
			assert.Equal(t, comment.ID, received.ID)
		case <-time.After(time.Second):
			t.Fatal("Таймаут ожидания подписки")
		}
	}

	select {
	case <-other:
		t.Fatal("Комментарий не должен попадать в чужую ленту")
	default:
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-first
		return !open
	}, time.Second, 10*time.Millisecond, "Канал должен быть закрыт")
	assert.Eventually(t, func() bool {
		return hub.Subscribers(models.PostTypeStory, "post1") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := hub.Subscribe(ctx, models.PostTypeLounge, "post1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			hub.Publish(&models.Comment{ID: "c", PostType: models.PostTypeLounge, PostID: "post1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish не должен блокироваться")
	}
	assert.Len(t, ch, subscriberBuffer)
}
