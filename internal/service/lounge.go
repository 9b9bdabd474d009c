package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/auth"
	"github.com/plainhr/plain/internal/cache"
	"github.com/plainhr/plain/internal/models"
)

const maxLoungeTitle = 100

type LoungeInput struct {
	Title   string            `json:"title"`
	Content string            `json:"content"`
	Type    models.LoungeType `json:"type"`
	Tags    []string          `json:"tags"`
}

func (in *LoungeInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown lounge type %q", models.ErrValidation, in.Type)
	}
	if err := validateLength("title", in.Title, 1, maxLoungeTitle); err != nil {
		return err
	}
	if strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("%w: content must not be empty", models.ErrValidation)
	}
	tags, err := normalizeTags(in.Tags, maxTags)
	if err != nil {
		return err
	}
	in.Tags = tags
	return nil
}

func (s *Service) CreateLoungePost(ctx context.Context, in LoungeInput) (*models.LoungePost, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	now := s.now()
	post := &models.LoungePost{
		ID:              uuid.New().String(),
		Title:           in.Title,
		Content:         in.Content,
		Type:            in.Type,
		AuthorID:        actor.UserID,
		Tags:            in.Tags,
		PromotionStatus: models.PromotionNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateLoungePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create lounge post: %w", err)
	}

	s.invalidate(ctx, nil, keyLoungeList)
	s.recalculate(ctx, actor.UserID)
	s.logger.Info("Lounge post created", zap.String("postID", post.ID), zap.String("type", string(post.Type)))
	return post, nil
}

func (s *Service) UpdateLoungePost(ctx context.Context, id string, in LoungeInput) (*models.LoungePost, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	post, err := s.store.GetLoungePost(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canModify(actor, post.AuthorID); err != nil {
		return nil, err
	}

	post.Title = in.Title
	post.Content = in.Content
	post.Type = in.Type
	post.Tags = in.Tags
	post.UpdatedAt = s.now()
	if err := s.store.UpdateLoungePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to update lounge post: %w", err)
	}

	s.invalidatePost(ctx, models.PostTypeLounge, id)
	return post, nil
}

func (s *Service) DeleteLoungePost(ctx context.Context, id string) error {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	post, err := s.store.GetLoungePost(ctx, id)
	if err != nil {
		return err
	}
	if err := canModify(actor, post.AuthorID); err != nil {
		return err
	}
	if err := s.store.DeleteLoungePost(ctx, id); err != nil {
		return fmt.Errorf("failed to delete lounge post: %w", err)
	}

	s.invalidatePost(ctx, models.PostTypeLounge, id)
	s.invalidate(ctx, nil, commentsPrefix(models.PostTypeLounge, id))
	s.recalculate(ctx, post.AuthorID)
	s.logger.Info("Lounge post deleted", zap.String("postID", id), zap.String("by", actor.UserID))
	return nil
}

func (s *Service) GetLoungePost(ctx context.Context, id string) (*LoungeView, error) {
	post, err := cached(ctx, s, keyLounge+id, func(ctx context.Context) (*models.LoungePost, error) {
		return s.store.GetLoungePost(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	if views, err := s.store.IncrementLoungeViews(ctx, id); err != nil {
		s.logger.Warn("Failed to increment lounge views", zap.String("postID", id), zap.Error(err))
	} else {
		post.ViewCount = views
	}

	views, err := s.loungeViews(ctx, []*models.LoungePost{post})
	if err != nil {
		return nil, err
	}
	view := views[0]
	if view.Liked, view.Scrapped, err = s.reactionFlags(ctx, models.PostTypeLounge, id); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Service) ListLoungePosts(ctx context.Context, filter models.LoungeFilter, limit int, cursor *string) (*models.Page[*LoungeView], error) {
	limit = clampLimit(limit)
	filter.Query = strings.TrimSpace(filter.Query)
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown lounge type %q", models.ErrValidation, filter.Type)
	}

	key := cache.Key(keyLoungeList, map[string]any{"filter": filter, "limit": limit, "cursor": cursor})
	page, err := cached(ctx, s, key, func(ctx context.Context) (*models.PaginatedLoungePosts, error) {
		return s.store.ListLoungePosts(ctx, filter, limit, cursor)
	})
	if err != nil {
		return nil, err
	}

	views, err := s.loungeViews(ctx, page.Items)
	if err != nil {
		return nil, err
	}
	return mapPage(page, views), nil
}
