package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/plainhr/plain/internal/models"
)

type postCounters struct {
	likes    *int
	scraps   *int
	comments *int
}

// countersLocked возвращает указатели на счётчики поста. Вызывается под s.mu.
func (s *MemoryStorage) countersLocked(postType models.PostType, postID string) (postCounters, bool) {
	switch postType {
	case models.PostTypeStory:
		if st, ok := s.stories[postID]; ok {
			return postCounters{&st.LikeCount, &st.ScrapCount, &st.CommentCount}, true
		}
	case models.PostTypeLounge:
		if p, ok := s.lounge[postID]; ok {
			return postCounters{&p.LikeCount, &p.ScrapCount, &p.CommentCount}, true
		}
	}
	return postCounters{}, false
}

func decrement(v *int) {
	if *v > 0 {
		*v--
	}
}

func (s *MemoryStorage) CreateComment(ctx context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters, ok := s.countersLocked(comment.PostType, comment.PostID)
	if !ok {
		return models.ErrNotFound
	}
	s.comments[comment.ID] = cloneComment(comment)
	*counters.comments++
	return nil
}

func (s *MemoryStorage) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.comments[id]
	if !exists {
		return nil, models.ErrNotFound
	}
	return cloneComment(c), nil
}

func (s *MemoryStorage) ListComments(ctx context.Context, postType models.PostType, postID string, parentID *string, limit int, cursor *string) (*models.PaginatedComments, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Фильтрация по parentID
	var filtered []*models.Comment
	for _, c := range s.comments {
		if c.PostType != postType || c.PostID != postID {
			continue
		}
		if parentID == nil && c.ParentID == nil {
			filtered = append(filtered, cloneComment(c))
		} else if parentID != nil && c.ParentID != nil && *c.ParentID == *parentID {
			filtered = append(filtered, cloneComment(c))
		}
	}

	return paginate(filtered, func(c *models.Comment) (time.Time, string) { return c.CreatedAt, c.ID }, limit, cursor)
}

func (s *MemoryStorage) SoftDeleteComment(ctx context.Context, id string, placeholder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.comments[id]
	if !exists {
		return models.ErrNotFound
	}
	if c.IsDeleted {
		return nil
	}
	c.IsDeleted = true
	c.Content = placeholder
	c.UpdatedAt = time.Now()
	if counters, ok := s.countersLocked(c.PostType, c.PostID); ok {
		decrement(counters.comments)
	}
	return nil
}

func (s *MemoryStorage) AddLike(ctx context.Context, like *models.Like) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters, ok := s.countersLocked(like.PostType, like.PostID)
	if !ok {
		return 0, models.ErrNotFound
	}
	key := reactionKey{like.UserID, like.PostType, like.PostID}
	if _, exists := s.likes[key]; exists {
		return *counters.likes, models.ErrConflict
	}
	c := *like
	s.likes[key] = &c
	*counters.likes++
	return *counters.likes, nil
}

func (s *MemoryStorage) RemoveLike(ctx context.Context, userID string, postType models.PostType, postID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters, ok := s.countersLocked(postType, postID)
	if !ok {
		return 0, models.ErrNotFound
	}
	key := reactionKey{userID, postType, postID}
	if _, exists := s.likes[key]; !exists {
		return *counters.likes, models.ErrNotFound
	}
	delete(s.likes, key)
	decrement(counters.likes)
	return *counters.likes, nil
}

func (s *MemoryStorage) HasLike(ctx context.Context, userID string, postType models.PostType, postID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.likes[reactionKey{userID, postType, postID}]
	return exists, nil
}

func (s *MemoryStorage) AddScrap(ctx context.Context, scrap *models.Scrap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters, ok := s.countersLocked(scrap.PostType, scrap.PostID)
	if !ok {
		return models.ErrNotFound
	}
	key := reactionKey{scrap.UserID, scrap.PostType, scrap.PostID}
	if _, exists := s.scraps[key]; exists {
		return models.ErrConflict
	}
	c := *scrap
	s.scraps[key] = &c
	*counters.scraps++
	return nil
}

func (s *MemoryStorage) RemoveScrap(ctx context.Context, userID string, postType models.PostType, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reactionKey{userID, postType, postID}
	if _, exists := s.scraps[key]; !exists {
		return models.ErrNotFound
	}
	delete(s.scraps, key)
	if counters, ok := s.countersLocked(postType, postID); ok {
		decrement(counters.scraps)
	}
	return nil
}

func (s *MemoryStorage) HasScrap(ctx context.Context, userID string, postType models.PostType, postID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.scraps[reactionKey{userID, postType, postID}]
	return exists, nil
}

func (s *MemoryStorage) ListScraps(ctx context.Context, userID string, limit int, cursor *string) (*models.Page[*models.Scrap], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scraps []*models.Scrap
	for k, sc := range s.scraps {
		if k.userID == userID {
			c := *sc
			scraps = append(scraps, &c)
		}
	}
	return paginate(scraps, func(sc *models.Scrap) (time.Time, string) { return sc.CreatedAt, sc.ID }, limit, cursor)
}

func (s *MemoryStorage) GetUserLevel(ctx context.Context, userID string) (*models.UserLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.levels[userID]
	if !exists {
		return nil, models.ErrNotFound
	}
	return cloneLevel(l), nil
}

func (s *MemoryStorage) GetUserLevelsByIDs(ctx context.Context, userIDs []string) ([]*models.UserLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.UserLevel, 0, len(userIDs))
	for _, id := range userIDs {
		if l, ok := s.levels[id]; ok {
			result = append(result, cloneLevel(l))
		}
	}
	return result, nil
}

func (s *MemoryStorage) UpsertUserLevel(ctx context.Context, level *models.UserLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.levels[level.UserID] = cloneLevel(level)
	return nil
}

func (s *MemoryStorage) ListTopLevels(ctx context.Context, limit int) ([]*models.UserLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	levels := make([]*models.UserLevel, 0, len(s.levels))
	for _, l := range s.levels {
		levels = append(levels, cloneLevel(l))
	}
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Experience != levels[j].Experience {
			return levels[i].Experience > levels[j].Experience
		}
		return levels[i].UserID < levels[j].UserID
	})
	if limit > 0 && len(levels) > limit {
		levels = levels[:limit]
	}
	return levels, nil
}

func (s *MemoryStorage) GetActivityCounts(ctx context.Context, userID string) (*models.ActivityCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := &models.ActivityCounts{}
	for _, st := range s.stories {
		if st.AuthorID == userID {
			counts.Stories++
			counts.LikesReceived += st.LikeCount
			counts.ScrapsReceived += st.ScrapCount
		}
	}
	for _, p := range s.lounge {
		if p.AuthorID == userID {
			counts.LoungePosts++
			counts.LikesReceived += p.LikeCount
			counts.ScrapsReceived += p.ScrapCount
			if p.IsExcellent {
				counts.ExcellentPosts++
			}
		}
	}
	for _, c := range s.comments {
		if c.AuthorID == userID && !c.IsDeleted {
			counts.Comments++
		}
	}
	return counts, nil
}

func (s *MemoryStorage) CreateNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *n
	s.notifications[n.ID] = &c
	return nil
}

func (s *MemoryStorage) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int, cursor *string) (*models.Page[*models.Notification], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*models.Notification
	for _, n := range s.notifications {
		if n.RecipientID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		c := *n
		list = append(list, &c)
	}
	return paginate(list, func(n *models.Notification) (time.Time, string) { return n.CreatedAt, n.ID }, limit, cursor)
}

func (s *MemoryStorage) MarkNotificationRead(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.notifications[id]
	if !exists || n.RecipientID != userID {
		return models.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (s *MemoryStorage) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for _, n := range s.notifications {
		if n.RecipientID == userID && !n.IsRead {
			n.IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStorage) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if n.RecipientID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) CreatePromotionRequest(ctx context.Context, req *models.PromotionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.lounge[req.LoungePostID]
	if !ok {
		return models.ErrNotFound
	}
	if s.hasPendingLocked(req.LoungePostID) {
		return models.ErrConflict
	}
	c := *req
	s.promotions[req.ID] = &c
	post.PromotionStatus = models.PromotionPending
	return nil
}

func (s *MemoryStorage) hasPendingLocked(loungePostID string) bool {
	for _, p := range s.promotions {
		if p.LoungePostID == loungePostID && p.Status == models.PromotionPending {
			return true
		}
	}
	return false
}

func (s *MemoryStorage) GetPromotionRequest(ctx context.Context, id string) (*models.PromotionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.promotions[id]
	if !exists {
		return nil, models.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *MemoryStorage) ListPromotionRequests(ctx context.Context, status models.PromotionStatus, limit int, cursor *string) (*models.Page[*models.PromotionRequest], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*models.PromotionRequest
	for _, p := range s.promotions {
		if status != "" && p.Status != status {
			continue
		}
		c := *p
		list = append(list, &c)
	}
	return paginate(list, func(p *models.PromotionRequest) (time.Time, string) { return p.CreatedAt, p.ID }, limit, cursor)
}

func (s *MemoryStorage) UpdatePromotionRequest(ctx context.Context, req *models.PromotionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.promotions[req.ID]; !exists {
		return models.ErrNotFound
	}
	c := *req
	s.promotions[req.ID] = &c
	return nil
}

func (s *MemoryStorage) ResolvePromotionRequest(ctx context.Context, req *models.PromotionRequest, story *models.Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.promotions[req.ID]
	if !exists {
		return models.ErrNotFound
	}
	if current.Status != models.PromotionPending {
		return fmt.Errorf("%w: promotion request already %s", models.ErrConflict, current.Status)
	}
	if story != nil {
		if _, exists := s.stories[story.ID]; exists {
			return models.ErrConflict
		}
		s.stories[story.ID] = cloneStory(story)
	}

	current.Status = req.Status
	current.ReviewerID = req.ReviewerID
	current.ReviewNote = req.ReviewNote
	current.StoryID = req.StoryID
	current.ReviewedAt = req.ReviewedAt
	if post, ok := s.lounge[current.LoungePostID]; ok {
		post.PromotionStatus = req.Status
		post.PromotionNote = req.ReviewNote
		if req.ReviewedAt != nil {
			post.UpdatedAt = *req.ReviewedAt
		}
	}
	return nil
}

func (s *MemoryStorage) RecordSearchKeyword(ctx context.Context, keyword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kw, exists := s.keywords[keyword]
	if !exists {
		kw = &models.SearchKeyword{Keyword: keyword}
		s.keywords[keyword] = kw
	}
	kw.Count++
	kw.LastSearchedAt = time.Now()
	return nil
}

func (s *MemoryStorage) ListPopularKeywords(ctx context.Context, limit int) ([]*models.SearchKeyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.SearchKeyword, 0, len(s.keywords))
	for _, kw := range s.keywords {
		c := *kw
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].LastSearchedAt.After(list[j].LastSearchedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}
