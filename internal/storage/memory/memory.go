package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/plainhr/plain/internal/models"
	"github.com/plainhr/plain/internal/storage"
)

const defaultLimit = 20

var _ storage.Storage = (*MemoryStorage)(nil)

// MemoryStorage хранит все таблицы в памяти процесса. Используется в тестах
// и для локального запуска с -storage=memory.
type MemoryStorage struct {
	users         map[string]*models.User
	stories       map[string]*models.Story
	lounge        map[string]*models.LoungePost
	comments      map[string]*models.Comment
	likes         map[reactionKey]*models.Like
	scraps        map[reactionKey]*models.Scrap
	levels        map[string]*models.UserLevel
	notifications map[string]*models.Notification
	promotions    map[string]*models.PromotionRequest
	keywords      map[string]*models.SearchKeyword
	mu            sync.RWMutex
}

type reactionKey struct {
	userID   string
	postType models.PostType
	postID   string
}

func New() *MemoryStorage {
	s := &MemoryStorage{}
	s.reset()
	return s
}

func (s *MemoryStorage) reset() {
	s.users = make(map[string]*models.User)
	s.stories = make(map[string]*models.Story)
	s.lounge = make(map[string]*models.LoungePost)
	s.comments = make(map[string]*models.Comment)
	s.likes = make(map[reactionKey]*models.Like)
	s.scraps = make(map[reactionKey]*models.Scrap)
	s.levels = make(map[string]*models.UserLevel)
	s.notifications = make(map[string]*models.Notification)
	s.promotions = make(map[string]*models.PromotionRequest)
	s.keywords = make(map[string]*models.SearchKeyword)
}

func (s *MemoryStorage) Stats(ctx context.Context) (*models.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.DashboardStats{
		Users:       len(s.users),
		Stories:     len(s.stories),
		LoungePosts: len(s.lounge),
		Likes:       len(s.likes),
		Scraps:      len(s.scraps),
	}
	for _, c := range s.comments {
		if !c.IsDeleted {
			stats.Comments++
		}
	}
	for _, p := range s.promotions {
		if p.Status == models.PromotionPending {
			stats.PendingPromotions++
		}
	}
	return stats, nil
}

// Close очищает хранилище.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// paginate сортирует элементы от новых к старым и вырезает страницу после курсора.
func paginate[T any](items []T, key func(T) (time.Time, string), limit int, cursor *string) (*models.Page[T], error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		return models.Before(tj, idj, ti, idi)
	})

	totalCount := len(items)

	// Применение курсора
	startIdx := 0
	if cursor != nil && *cursor != "" {
		curT, curID, err := models.DecodeCursor(*cursor)
		if err != nil {
			return nil, err
		}
		startIdx = len(items)
		for i, item := range items {
			t, id := key(item)
			if models.Before(t, id, curT, curID) {
				startIdx = i
				break
			}
		}
	}

	endIdx := startIdx + limit
	if endIdx > len(items) {
		endIdx = len(items)
	}

	result := make([]T, endIdx-startIdx)
	copy(result, items[startIdx:endIdx])

	var nextCursor *string
	if endIdx < len(items) {
		t, id := key(items[endIdx-1])
		c := models.EncodeCursor(t, id)
		nextCursor = &c
	}

	return &models.Page[T]{
		Items:      result,
		TotalCount: totalCount,
		NextCursor: nextCursor,
	}, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneStory(s *models.Story) *models.Story {
	c := *s
	c.Tags = cloneStrings(s.Tags)
	return &c
}

func cloneLounge(p *models.LoungePost) *models.LoungePost {
	c := *p
	c.Tags = cloneStrings(p.Tags)
	return &c
}

func cloneComment(c *models.Comment) *models.Comment {
	cp := *c
	return &cp
}

func cloneLevel(l *models.UserLevel) *models.UserLevel {
	c := *l
	c.Achievements = cloneStrings(l.Achievements)
	return &c
}
