package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/plainhr/plain/internal/auth"
	"github.com/plainhr/plain/internal/cache"
	"github.com/plainhr/plain/internal/level"
	"github.com/plainhr/plain/internal/models"
	"github.com/plainhr/plain/internal/retry"
)

const (
	maxNameLength = 30
	maxBioLength  = 500
	maxAvatarURL  = 500
)

type LevelView struct {
	Level        int      `json:"level"`
	Title        string   `json:"title"`
	Experience   int      `json:"experience"`
	CurrentExp   int      `json:"currentExp"`
	ToNextLevel  int      `json:"toNextLevel"`
	Achievements []string `json:"achievements"`
}

func newLevelView(l *models.UserLevel) *LevelView {
	current, toNext := level.Progress(l.Experience)
	achievements := l.Achievements
	if achievements == nil {
		achievements = []string{}
	}
	return &LevelView{
		Level:        l.Level,
		Title:        level.Title(l.Level),
		Experience:   l.Experience,
		CurrentExp:   current,
		ToNextLevel:  toNext,
		Achievements: achievements,
	}
}

// Profile - собственный профиль пользователя, вместе с email и ролью.
type Profile struct {
	*models.User
	Level *LevelView `json:"level"`
}

// PublicProfile - профиль, который видит любой посетитель.
type PublicProfile struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Bio       string     `json:"bio"`
	AvatarURL string     `json:"avatarUrl"`
	CreatedAt time.Time  `json:"createdAt"`
	Level     *LevelView `json:"level"`
}

type ProfileInput struct {
	Name      *string `json:"name"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatarUrl"`
}

type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	UserID     string `json:"userId"`
	Name       string `json:"name"`
	AvatarURL  string `json:"avatarUrl"`
	Level      int    `json:"level"`
	Title      string `json:"title"`
	Experience int    `json:"experience"`
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*PublicProfile, error) {
	p, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &PublicProfile{
		ID:        p.ID,
		Name:      p.Name,
		Bio:       p.Bio,
		AvatarURL: p.AvatarURL,
		CreatedAt: p.CreatedAt,
		Level:     p.Level,
	}, nil
}

// Me - профиль текущего пользователя.
func (s *Service) Me(ctx context.Context) (*Profile, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadProfile(ctx, actor.UserID)
}

func (s *Service) loadProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	lvl, err := s.store.GetUserLevel(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		lvl = &models.UserLevel{UserID: userID, Level: 1}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load user level: %w", err)
	}
	return &Profile{User: user, Level: newLevelView(lvl)}, nil
}

// UpdateProfile меняет только переданные поля.
func (s *Service) UpdateProfile(ctx context.Context, in ProfileInput) (*models.User, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validateLength("name", name, 1, maxNameLength); err != nil {
			return nil, err
		}
		in.Name = &name
	}
	if in.Bio != nil && utf8.RuneCountInString(*in.Bio) > maxBioLength {
		return nil, fmt.Errorf("%w: bio must be at most %d characters", models.ErrValidation, maxBioLength)
	}
	if in.AvatarURL != nil && utf8.RuneCountInString(*in.AvatarURL) > maxAvatarURL {
		return nil, fmt.Errorf("%w: avatar url is too long", models.ErrValidation)
	}

	user, err := s.store.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		user.Name = *in.Name
	}
	if in.Bio != nil {
		user.Bio = strings.TrimSpace(*in.Bio)
	}
	if in.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}
	user.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// GetMyLevel пересчитывает уровень текущего пользователя.
func (s *Service) GetMyLevel(ctx context.Context) (*LevelView, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	lvl, err := s.refreshLevel(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return newLevelView(lvl), nil
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error) {
	limit = clampLimit(limit)
	levels, err := cached(ctx, s, cache.Key(keyLeaderboard, limit), func(ctx context.Context) ([]*models.UserLevel, error) {
		return s.store.ListTopLevels(ctx, limit)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(levels))
	for i, l := range levels {
		ids[i] = l.UserID
	}
	authors, err := s.authors(ctx, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]*LeaderboardEntry, 0, len(levels))
	for _, l := range levels {
		entry := &LeaderboardEntry{
			Rank:       len(entries) + 1,
			UserID:     l.UserID,
			Level:      l.Level,
			Title:      level.Title(l.Level),
			Experience: l.Experience,
		}
		if a, ok := authors[l.UserID]; ok {
			entry.Name = a.Name
			entry.AvatarURL = a.AvatarURL
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return retry.DoValue(ctx, s.opts.Retry, s.logger, s.store.Stats)
}
