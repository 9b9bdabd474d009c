package memory

import (
	"context"
	"strings"
	"time"

	"github.com/plainhr/plain/internal/models"
)

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return models.ErrConflict
		}
	}
	c := *user
	s.users[user.ID] = &c
	return nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, models.ErrNotFound
	}
	c := *user
	return &c, nil
}

func (s *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryStorage) GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			c := *u
			result = append(result, &c)
		}
	}
	return result, nil
}

func (s *MemoryStorage) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; !exists {
		return models.ErrNotFound
	}
	c := *user
	s.users[user.ID] = &c
	return nil
}

func (s *MemoryStorage) CreateStory(ctx context.Context, story *models.Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stories[story.ID]; exists {
		return models.ErrConflict
	}
	s.stories[story.ID] = cloneStory(story)
	return nil
}

func (s *MemoryStorage) GetStory(ctx context.Context, id string) (*models.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	story, exists := s.stories[id]
	if !exists {
		return nil, models.ErrNotFound
	}
	return cloneStory(story), nil
}

func (s *MemoryStorage) GetStoriesByIDs(ctx context.Context, ids []string) ([]*models.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Story, 0, len(ids))
	for _, id := range ids {
		if story, ok := s.stories[id]; ok {
			result = append(result, cloneStory(story))
		}
	}
	return result, nil
}

func (s *MemoryStorage) ListStories(ctx context.Context, filter models.StoryFilter, limit int, cursor *string) (*models.PaginatedStories, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stories []*models.Story
	for _, story := range s.stories {
		if filter.AuthorID != "" && story.AuthorID != filter.AuthorID {
			continue
		}
		if filter.VerifiedOnly && !story.IsVerified {
			continue
		}
		if filter.Tag != "" && !hasTag(story.Tags, filter.Tag) {
			continue
		}
		if filter.Query != "" && !containsFold(story.Title, filter.Query) && !containsFold(story.Content, filter.Query) {
			continue
		}
		stories = append(stories, cloneStory(story))
	}

	return paginate(stories, func(st *models.Story) (time.Time, string) { return st.CreatedAt, st.ID }, limit, cursor)
}

func (s *MemoryStorage) UpdateStory(ctx context.Context, story *models.Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stories[story.ID]; !exists {
		return models.ErrNotFound
	}
	s.stories[story.ID] = cloneStory(story)
	return nil
}

func (s *MemoryStorage) DeleteStory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stories[id]; !exists {
		return models.ErrNotFound
	}
	delete(s.stories, id)
	s.deleteThreadLocked(models.PostTypeStory, id)
	return nil
}

func (s *MemoryStorage) IncrementStoryViews(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	story, exists := s.stories[id]
	if !exists {
		return 0, models.ErrNotFound
	}
	story.ViewCount++
	return story.ViewCount, nil
}

func (s *MemoryStorage) CreateLoungePost(ctx context.Context, post *models.LoungePost) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lounge[post.ID]; exists {
		return models.ErrConflict
	}
	s.lounge[post.ID] = cloneLounge(post)
	return nil
}

func (s *MemoryStorage) GetLoungePost(ctx context.Context, id string) (*models.LoungePost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, exists := s.lounge[id]
	if !exists {
		return nil, models.ErrNotFound
	}
	return cloneLounge(post), nil
}

func (s *MemoryStorage) GetLoungePostsByIDs(ctx context.Context, ids []string) ([]*models.LoungePost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.LoungePost, 0, len(ids))
	for _, id := range ids {
		if post, ok := s.lounge[id]; ok {
			result = append(result, cloneLounge(post))
		}
	}
	return result, nil
}

func (s *MemoryStorage) ListLoungePosts(ctx context.Context, filter models.LoungeFilter, limit int, cursor *string) (*models.PaginatedLoungePosts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var posts []*models.LoungePost
	for _, post := range s.lounge {
		if filter.AuthorID != "" && post.AuthorID != filter.AuthorID {
			continue
		}
		if filter.Type != "" && post.Type != filter.Type {
			continue
		}
		if filter.ExcellentOnly && !post.IsExcellent {
			continue
		}
		if filter.Query != "" && !containsFold(post.Title, filter.Query) && !containsFold(post.Content, filter.Query) {
			continue
		}
		posts = append(posts, cloneLounge(post))
	}

	return paginate(posts, func(p *models.LoungePost) (time.Time, string) { return p.CreatedAt, p.ID }, limit, cursor)
}

func (s *MemoryStorage) UpdateLoungePost(ctx context.Context, post *models.LoungePost) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.lounge[post.ID]
	if !exists {
		return models.ErrNotFound
	}
	current.Title = post.Title
	current.Content = post.Content
	current.Type = post.Type
	current.Tags = cloneStrings(post.Tags)
	current.UpdatedAt = post.UpdatedAt
	return nil
}

func (s *MemoryStorage) DeleteLoungePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lounge[id]; !exists {
		return models.ErrNotFound
	}
	delete(s.lounge, id)
	s.deleteThreadLocked(models.PostTypeLounge, id)
	return nil
}

func (s *MemoryStorage) IncrementLoungeViews(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, exists := s.lounge[id]
	if !exists {
		return 0, models.ErrNotFound
	}
	post.ViewCount++
	return post.ViewCount, nil
}

func (s *MemoryStorage) MarkLoungeExcellent(ctx context.Context, id string, req *models.PromotionRequest) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, exists := s.lounge[id]
	if !exists {
		return false, false, models.ErrNotFound
	}
	if post.IsExcellent {
		return false, false, nil
	}
	post.IsExcellent = true
	if post.PromotionStatus != models.PromotionNone || req == nil || s.hasPendingLocked(id) {
		return true, false, nil
	}
	c := *req
	c.LoungePostID = id
	s.promotions[c.ID] = &c
	post.PromotionStatus = models.PromotionPending
	return true, true, nil
}

// deleteThreadLocked удаляет комментарии, лайки, скрапы и заявки на продвижение
// поста. Вызывается под s.mu.
func (s *MemoryStorage) deleteThreadLocked(postType models.PostType, postID string) {
	for id, c := range s.comments {
		if c.PostType == postType && c.PostID == postID {
			delete(s.comments, id)
		}
	}
	for k := range s.likes {
		if k.postType == postType && k.postID == postID {
			delete(s.likes, k)
		}
	}
	for k := range s.scraps {
		if k.postType == postType && k.postID == postID {
			delete(s.scraps, k)
		}
	}
	if postType == models.PostTypeLounge {
		for id, p := range s.promotions {
			if p.LoungePostID == postID {
				delete(s.promotions, id)
			}
		}
	}
}
