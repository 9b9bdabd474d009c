package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/auth"
	"github.com/plainhr/plain/internal/cache"
	"github.com/plainhr/plain/internal/models"
)

const (
	maxStoryTitle   = 200
	maxStorySummary = 500
	maxTags         = 10
	wordsPerMinute  = 200
)

type StoryInput struct {
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	Content      string   `json:"content"`
	ThumbnailURL string   `json:"thumbnailUrl"`
	Tags         []string `json:"tags"`
	ReadTime     int      `json:"readTime"`
}

func (in *StoryInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Summary = strings.TrimSpace(in.Summary)
	if err := validateLength("title", in.Title, 1, maxStoryTitle); err != nil {
		return err
	}
	if strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("%w: content must not be empty", models.ErrValidation)
	}
	if utf8.RuneCountInString(in.Summary) > maxStorySummary {
		return fmt.Errorf("%w: summary must be at most %d characters", models.ErrValidation, maxStorySummary)
	}
	if in.ReadTime < 0 {
		return fmt.Errorf("%w: read time must not be negative", models.ErrValidation)
	}
	tags, err := normalizeTags(in.Tags, maxTags)
	if err != nil {
		return err
	}
	in.Tags = tags
	if in.ReadTime == 0 {
		in.ReadTime = estimateReadTime(in.Content)
	}
	return nil
}

// estimateReadTime - минуты чтения при 200 словах в минуту, не меньше одной.
func estimateReadTime(content string) int {
	words := len(strings.Fields(content))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}

func (s *Service) CreateStory(ctx context.Context, in StoryInput) (*models.Story, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	now := s.now()
	story := &models.Story{
		ID:           uuid.New().String(),
		Title:        in.Title,
		Summary:      in.Summary,
		Content:      in.Content,
		ThumbnailURL: in.ThumbnailURL,
		AuthorID:     actor.UserID,
		Tags:         in.Tags,
		ReadTime:     in.ReadTime,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateStory(ctx, story); err != nil {
		return nil, fmt.Errorf("failed to create story: %w", err)
	}

	s.invalidate(ctx, nil, keyStoryList)
	s.recalculate(ctx, actor.UserID)
	s.logger.Info("Story created", zap.String("storyID", story.ID), zap.String("authorID", actor.UserID))
	return story, nil
}

func (s *Service) UpdateStory(ctx context.Context, id string, in StoryInput) (*models.Story, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	story, err := s.store.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canModify(actor, story.AuthorID); err != nil {
		return nil, err
	}

	story.Title = in.Title
	story.Summary = in.Summary
	story.Content = in.Content
	story.ThumbnailURL = in.ThumbnailURL
	story.Tags = in.Tags
	story.ReadTime = in.ReadTime
	story.UpdatedAt = s.now()
	if err := s.store.UpdateStory(ctx, story); err != nil {
		return nil, fmt.Errorf("failed to update story: %w", err)
	}

	s.invalidatePost(ctx, models.PostTypeStory, id)
	return story, nil
}

func (s *Service) DeleteStory(ctx context.Context, id string) error {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	story, err := s.store.GetStory(ctx, id)
	if err != nil {
		return err
	}
	if err := canModify(actor, story.AuthorID); err != nil {
		return err
	}
	if err := s.store.DeleteStory(ctx, id); err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}

	s.invalidatePost(ctx, models.PostTypeStory, id)
	s.invalidate(ctx, nil, commentsPrefix(models.PostTypeStory, id))
	s.recalculate(ctx, story.AuthorID)
	s.logger.Info("Story deleted", zap.String("storyID", id), zap.String("by", actor.UserID))
	return nil
}

// GetStory отдаёт статью из кэша и засчитывает просмотр.
func (s *Service) GetStory(ctx context.Context, id string) (*StoryView, error) {
	story, err := cached(ctx, s, keyStory+id, func(ctx context.Context) (*models.Story, error) {
		return s.store.GetStory(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	// В кэше лежит статья без актуального числа просмотров.
	if views, err := s.store.IncrementStoryViews(ctx, id); err != nil {
		s.logger.Warn("Failed to increment story views", zap.String("storyID", id), zap.Error(err))
	} else {
		story.ViewCount = views
	}

	views, err := s.storyViews(ctx, []*models.Story{story})
	if err != nil {
		return nil, err
	}
	view := views[0]
	if view.Liked, view.Scrapped, err = s.reactionFlags(ctx, models.PostTypeStory, id); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Service) ListStories(ctx context.Context, filter models.StoryFilter, limit int, cursor *string) (*models.Page[*StoryView], error) {
	limit = clampLimit(limit)
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Tag = strings.TrimSpace(filter.Tag)

	key := cache.Key(keyStoryList, map[string]any{"filter": filter, "limit": limit, "cursor": cursor})
	page, err := cached(ctx, s, key, func(ctx context.Context) (*models.PaginatedStories, error) {
		return s.store.ListStories(ctx, filter, limit, cursor)
	})
	if err != nil {
		return nil, err
	}

	views, err := s.storyViews(ctx, page.Items)
	if err != nil {
		return nil, err
	}
	return mapPage(page, views), nil
}

// VerifyStory ставит знак проверки; пустой badge снимает его.
func (s *Service) VerifyStory(ctx context.Context, id, badge string) (*models.Story, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	story, err := s.store.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}

	badge = strings.TrimSpace(badge)
	story.IsVerified = badge != ""
	story.VerificationBadge = badge
	story.UpdatedAt = s.now()
	if err := s.store.UpdateStory(ctx, story); err != nil {
		return nil, fmt.Errorf("failed to verify story: %w", err)
	}

	s.invalidatePost(ctx, models.PostTypeStory, id)
	return story, nil
}
