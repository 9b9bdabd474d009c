package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/auth"
	"github.com/plainhr/plain/internal/cache"
	"github.com/plainhr/plain/internal/level"
	"github.com/plainhr/plain/internal/live"
	"github.com/plainhr/plain/internal/messaging"
	"github.com/plainhr/plain/internal/models"
	"github.com/plainhr/plain/internal/retry"
	"github.com/plainhr/plain/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Префиксы ключей кэша.
const (
	keyStory       = "story:"
	keyStoryList   = "stories:list"
	keyLounge      = "lounge:"
	keyLoungeList  = "lounge_list"
	keyComments    = "comments:"
	keyPopular     = "search:popular"
	keyLeaderboard = "levels:top"
)

type Options struct {
	CacheTTL               time.Duration
	ExcellentLikeThreshold int
	Retry                  retry.Policy
}

func DefaultOptions() Options {
	return Options{
		CacheTTL:               5 * time.Minute,
		ExcellentLikeThreshold: 20,
		Retry:                  retry.DefaultPolicy(),
	}
}

// Service - прикладной слой: проверки, права доступа, кэш, уведомления
// и пересчёт уровней поверх хранилища.
type Service struct {
	store     storage.Storage
	cache     cache.Cache
	levels    *level.Engine
	hub       *live.Hub
	publisher messaging.NotificationPublisher
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

func New(
	store storage.Storage,
	c cache.Cache,
	levels *level.Engine,
	hub *live.Hub,
	publisher messaging.NotificationPublisher,
	opts Options,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if levels == nil {
		levels = level.NewEngine(store, level.DefaultWeights(), logger)
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultOptions().CacheTTL
	}
	if opts.ExcellentLikeThreshold <= 0 {
		opts.ExcellentLikeThreshold = DefaultOptions().ExcellentLikeThreshold
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = retry.DefaultPolicy()
	}
	return &Service{
		store:     store,
		cache:     c,
		levels:    levels,
		hub:       hub,
		publisher: publisher,
		opts:      opts,
		logger:    logger.Named("Service"),
		now:       time.Now,
	}
}

// cached читает через кэш; промах загружается с повторами при временных ошибках.
func cached[T any](ctx context.Context, s *Service, key string, load func(ctx context.Context) (T, error)) (T, error) {
	return cache.Fetch(ctx, s.cache, key, s.opts.CacheTTL, func(ctx context.Context) (T, error) {
		return retry.DoValue(ctx, s.opts.Retry, s.logger, load)
	})
}

func (s *Service) invalidate(ctx context.Context, keys []string, prefixes ...string) {
	if len(keys) > 0 {
		if err := s.cache.Delete(ctx, keys...); err != nil {
			s.logger.Warn("Failed to invalidate cache keys", zap.Strings("keys", keys), zap.Error(err))
		}
	}
	for _, p := range prefixes {
		if err := s.cache.DeletePrefix(ctx, p); err != nil {
			s.logger.Warn("Failed to invalidate cache prefix", zap.String("prefix", p), zap.Error(err))
		}
	}
}

func (s *Service) invalidatePost(ctx context.Context, postType models.PostType, postID string) {
	switch postType {
	case models.PostTypeStory:
		s.invalidate(ctx, []string{keyStory + postID}, keyStoryList)
	case models.PostTypeLounge:
		s.invalidate(ctx, []string{keyLounge + postID}, keyLoungeList)
	}
}

// refreshLevel пересчитывает уровень пользователя и уведомляет о повышении.
func (s *Service) refreshLevel(ctx context.Context, userID string) (*models.UserLevel, error) {
	lvl, up, err := s.levels.Recalculate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if up {
		s.notify(ctx, &models.Notification{
			RecipientID: userID,
			Type:        models.NotificationLevelUp,
			Message:     fmt.Sprintf("You reached level %d: %s", lvl.Level, level.Title(lvl.Level)),
		})
	}
	return lvl, nil
}

// recalculate - фоновый пересчёт после записи; ошибка не прерывает операцию.
func (s *Service) recalculate(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	if _, err := s.refreshLevel(ctx, userID); err != nil {
		s.logger.Warn("Failed to recalculate level", zap.String("userID", userID), zap.Error(err))
	}
}

func canModify(actor auth.Actor, authorID string) error {
	if actor.IsAdmin() || actor.UserID == authorID {
		return nil
	}
	return fmt.Errorf("%w: only the author or an admin can modify this", models.ErrForbidden)
}

func requireAdmin(ctx context.Context) (auth.Actor, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return actor, err
	}
	if !actor.IsAdmin() {
		return actor, fmt.Errorf("%w: admin privileges required", models.ErrForbidden)
	}
	return actor, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func validateLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min || (max > 0 && n > max) {
		if max > 0 {
			return fmt.Errorf("%w: %s must be %d-%d characters", models.ErrValidation, field, min, max)
		}
		return fmt.Errorf("%w: %s must not be empty", models.ErrValidation, field)
	}
	return nil
}

func normalizeTags(tags []string, max int) ([]string, error) {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	if len(out) > max {
		return nil, fmt.Errorf("%w: at most %d tags allowed", models.ErrValidation, max)
	}
	return out, nil
}

func strPtr(s string) *string {
	return &s
}
