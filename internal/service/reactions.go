package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/auth"
	"github.com/plainhr/plain/internal/batch"
	"github.com/plainhr/plain/internal/models"
)

const autoPromotionReason = "Reached the excellent post like threshold"

type LikeResult struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"likeCount"`
}

type ScrapResult struct {
	Scrapped bool `json:"scrapped"`
}

// ScrapItem - закладка вместе с постом; удалённый пост остаётся nil.
type ScrapItem struct {
	*models.Scrap
	Story  *models.Story      `json:"story,omitempty"`
	Lounge *models.LoungePost `json:"lounge,omitempty"`
}

func (s *Service) ToggleLike(ctx context.Context, postType models.PostType, postID string) (*LikeResult, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !postType.Valid() {
		return nil, fmt.Errorf("%w: unknown post type %q", models.ErrValidation, postType)
	}
	authorID, title, err := s.postAuthor(ctx, postType, postID)
	if err != nil {
		return nil, err
	}

	liked, err := s.store.HasLike(ctx, actor.UserID, postType, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to check like: %w", err)
	}

	result := &LikeResult{}
	if liked {
		count, err := s.store.RemoveLike(ctx, actor.UserID, postType, postID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to remove like: %w", err)
		}
		result.LikeCount = count
	} else {
		count, err := s.store.AddLike(ctx, &models.Like{
			UserID:    actor.UserID,
			PostType:  postType,
			PostID:    postID,
			CreatedAt: s.now(),
		})
		// параллельный запрос уже поставил лайк
		if err != nil && !errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("failed to add like: %w", err)
		}
		result.Liked = true
		result.LikeCount = count
		isNew := err == nil

		if isNew && postType == models.PostTypeLounge && count >= s.opts.ExcellentLikeThreshold {
			s.markExcellent(ctx, postID, count)
		}
		if isNew && authorID != actor.UserID {
			s.notify(ctx, &models.Notification{
				RecipientID: authorID,
				ActorID:     strPtr(actor.UserID),
				Type:        models.NotificationLike,
				Message:     fmt.Sprintf("Someone liked %q", title),
				PostType:    &postType,
				PostID:      strPtr(postID),
			})
		}
	}

	s.invalidatePost(ctx, postType, postID)
	s.recalculate(ctx, authorID)
	return result, nil
}

// markExcellent отмечает пост лаунжа отличным и открывает заявку на
// перевод в Story. Повторно заявка не создаётся.
func (s *Service) markExcellent(ctx context.Context, postID string, likes int) {
	marked, opened, err := s.store.MarkLoungeExcellent(ctx, postID, &models.PromotionRequest{
		ID:           uuid.New().String(),
		LoungePostID: postID,
		Status:       models.PromotionPending,
		Reason:       autoPromotionReason,
		CreatedAt:    s.now(),
	})
	if err != nil {
		s.logger.Warn("Failed to mark lounge post excellent", zap.String("postID", postID), zap.Error(err))
		return
	}
	if marked {
		s.logger.Info("Lounge post marked excellent",
			zap.String("postID", postID),
			zap.Int("likes", likes),
			zap.Bool("promotionOpened", opened),
		)
	}
}

func (s *Service) ToggleScrap(ctx context.Context, postType models.PostType, postID string) (*ScrapResult, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !postType.Valid() {
		return nil, fmt.Errorf("%w: unknown post type %q", models.ErrValidation, postType)
	}
	authorID, _, err := s.postAuthor(ctx, postType, postID)
	if err != nil {
		return nil, err
	}

	scrapped, err := s.store.HasScrap(ctx, actor.UserID, postType, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to check scrap: %w", err)
	}

	if scrapped {
		err = s.store.RemoveScrap(ctx, actor.UserID, postType, postID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to remove scrap: %w", err)
		}
	} else {
		err = s.store.AddScrap(ctx, &models.Scrap{
			ID:        uuid.New().String(),
			UserID:    actor.UserID,
			PostType:  postType,
			PostID:    postID,
			CreatedAt: s.now(),
		})
		if err != nil && !errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("failed to add scrap: %w", err)
		}
	}

	s.invalidatePost(ctx, postType, postID)
	s.recalculate(ctx, authorID)
	return &ScrapResult{Scrapped: !scrapped}, nil
}

// ListMyScraps возвращает закладки текущего пользователя вместе с постами.
func (s *Service) ListMyScraps(ctx context.Context, limit int, cursor *string) (*models.Page[*ScrapItem], error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	page, err := s.store.ListScraps(ctx, actor.UserID, clampLimit(limit), cursor)
	if err != nil {
		return nil, err
	}

	var storyIDs, loungeIDs []string
	for _, sc := range page.Items {
		if sc.PostType == models.PostTypeStory {
			storyIDs = append(storyIDs, sc.PostID)
		} else {
			loungeIDs = append(loungeIDs, sc.PostID)
		}
	}
	stories, lounge, err := s.loadPosts(ctx, uniq(storyIDs), uniq(loungeIDs))
	if err != nil {
		return nil, err
	}

	items := make([]*ScrapItem, len(page.Items))
	for i, sc := range page.Items {
		items[i] = &ScrapItem{Scrap: sc}
		if sc.PostType == models.PostTypeStory {
			items[i].Story = stories[sc.PostID]
		} else {
			items[i].Lounge = lounge[sc.PostID]
		}
	}
	return mapPage(page, items), nil
}

func (s *Service) loadPosts(ctx context.Context, storyIDs, loungeIDs []string) (map[string]*models.Story, map[string]*models.LoungePost, error) {
	if loaders, ok := batch.FromContext(ctx); ok {
		stories, err := batch.LoadAll(ctx, loaders.Stories, storyIDs)
		if err != nil {
			return nil, nil, err
		}
		lounge, err := batch.LoadAll(ctx, loaders.Lounge, loungeIDs)
		if err != nil {
			return nil, nil, err
		}
		return stories, lounge, nil
	}

	stories := make(map[string]*models.Story, len(storyIDs))
	if len(storyIDs) > 0 {
		list, err := s.store.GetStoriesByIDs(ctx, storyIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load stories: %w", err)
		}
		for _, st := range list {
			stories[st.ID] = st
		}
	}
	lounge := make(map[string]*models.LoungePost, len(loungeIDs))
	if len(loungeIDs) > 0 {
		list, err := s.store.GetLoungePostsByIDs(ctx, loungeIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load lounge posts: %w", err)
		}
		for _, p := range list {
			lounge[p.ID] = p
		}
	}
	return stories, lounge, nil
}
