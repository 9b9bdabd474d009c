package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/cache"
	"github.com/plainhr/plain/internal/models"
)

const (
	minQueryLength = 2
	maxQueryLength = 50
)

type SearchResult struct {
	Query       string        `json:"query"`
	Stories     []*StoryView  `json:"stories"`
	LoungePosts []*LoungeView `json:"loungePosts"`
}

// Search ищет по заголовку и тексту статей и постов лаунжа
// и учитывает запрос в популярных ключевых словах.
func (s *Service) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if err := validateLength("query", query, minQueryLength, maxQueryLength); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	if err := s.store.RecordSearchKeyword(ctx, strings.ToLower(query)); err != nil {
		s.logger.Warn("Failed to record search keyword", zap.String("query", query), zap.Error(err))
	}

	stories, err := s.ListStories(ctx, models.StoryFilter{Query: query}, limit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search stories: %w", err)
	}
	lounge, err := s.ListLoungePosts(ctx, models.LoungeFilter{Query: query}, limit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search lounge posts: %w", err)
	}

	return &SearchResult{
		Query:       query,
		Stories:     stories.Items,
		LoungePosts: lounge.Items,
	}, nil
}

func (s *Service) PopularKeywords(ctx context.Context, limit int) ([]*models.SearchKeyword, error) {
	limit = clampLimit(limit)
	return cached(ctx, s, cache.Key(keyPopular, limit), func(ctx context.Context) ([]*models.SearchKeyword, error) {
		return s.store.ListPopularKeywords(ctx, limit)
	})
}
