package live

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/metrics"
	"github.com/plainhr/plain/internal/models"
)

const subscriberBuffer = 16

type topic struct {
	postType models.PostType
	postID   string
}

// Hub рассылает новые комментарии подписчикам поста. У каждого подписчика
// свой канал; медленный подписчик теряет сообщения, а не блокирует Publish.
type Hub struct {
	mu     sync.RWMutex
	subs   map[topic]map[chan *models.Comment]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[topic]map[chan *models.Comment]struct{}),
		logger: logger.Named("LiveHub"),
	}
}

// Subscribe возвращает канал комментариев поста. Канал закрывается
// после отмены ctx.
func (h *Hub) Subscribe(ctx context.Context, postType models.PostType, postID string) <-chan *models.Comment {
	ch := make(chan *models.Comment, subscriberBuffer)
	key := topic{postType, postID}

	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[chan *models.Comment]struct{})
	}
	h.subs[key][ch] = struct{}{}
	h.mu.Unlock()
	metrics.LiveSubscribers.Inc()

	// Очистка канала после завершения подписки
	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[key], ch)
		if len(h.subs[key]) == 0 {
			delete(h.subs, key)
		}
		close(ch)
		h.mu.Unlock()
		metrics.LiveSubscribers.Dec()
	}()

	return ch
}

func (h *Hub) Publish(comment *models.Comment) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[topic{comment.PostType, comment.PostID}] {
		select {
		case ch <- comment:
		default:
			h.logger.Debug("Dropping comment for slow subscriber",
				zap.String("postID", comment.PostID),
				zap.String("commentID", comment.ID),
			)
		}
	}
}

func (h *Hub) Subscribers(postType models.PostType, postID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic{postType, postID}])
}
