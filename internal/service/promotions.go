package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/auth"
	"github.com/plainhr/plain/internal/models"
)

const (
	maxPromotionText = 500
	summaryLength    = 200
)

// RequestPromotion - автор вручную просит перевести пост лаунжа в Story.
func (s *Service) RequestPromotion(ctx context.Context, loungePostID, reason string) (*models.PromotionRequest, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxPromotionText {
		return nil, fmt.Errorf("%w: reason must be at most %d characters", models.ErrValidation, maxPromotionText)
	}

	post, err := s.store.GetLoungePost(ctx, loungePostID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != actor.UserID {
		return nil, fmt.Errorf("%w: only the author can request promotion", models.ErrForbidden)
	}
	switch post.PromotionStatus {
	case models.PromotionPending:
		return nil, fmt.Errorf("%w: promotion already requested", models.ErrConflict)
	case models.PromotionApproved:
		return nil, fmt.Errorf("%w: post already promoted", models.ErrConflict)
	}

	req := &models.PromotionRequest{
		ID:           uuid.New().String(),
		LoungePostID: post.ID,
		RequesterID:  strPtr(actor.UserID),
		Status:       models.PromotionPending,
		Reason:       reason,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreatePromotionRequest(ctx, req); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("%w: promotion already requested", models.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create promotion request: %w", err)
	}
	s.invalidatePost(ctx, models.PostTypeLounge, post.ID)
	return req, nil
}

func (s *Service) ListPromotionRequests(ctx context.Context, status models.PromotionStatus, limit int, cursor *string) (*models.Page[*models.PromotionRequest], error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	switch status {
	case "", models.PromotionPending, models.PromotionApproved, models.PromotionRejected:
	default:
		return nil, fmt.Errorf("%w: unknown promotion status %q", models.ErrValidation, status)
	}
	return s.store.ListPromotionRequests(ctx, status, clampLimit(limit), cursor)
}

// ApprovePromotion создаёт Story из поста лаунжа от имени его автора.
func (s *Service) ApprovePromotion(ctx context.Context, id, note string) (*models.PromotionRequest, *models.Story, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return nil, nil, err
	}
	req, post, err := s.pendingPromotion(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	note = strings.TrimSpace(note)

	now := s.now()
	story := &models.Story{
		ID:             uuid.New().String(),
		Title:          truncate(post.Title, maxStoryTitle),
		Summary:        truncate(strings.Join(strings.Fields(post.Content), " "), summaryLength),
		Content:        post.Content,
		AuthorID:       post.AuthorID,
		Tags:           post.Tags,
		ReadTime:       estimateReadTime(post.Content),
		SourceLoungeID: strPtr(post.ID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	req.Status = models.PromotionApproved
	req.ReviewerID = strPtr(actor.UserID)
	req.ReviewNote = note
	req.StoryID = strPtr(story.ID)
	req.ReviewedAt = &now
	if err := s.store.ResolvePromotionRequest(ctx, req, story); err != nil {
		if models.IsClientError(err) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to approve promotion request: %w", err)
	}

	s.invalidatePost(ctx, models.PostTypeLounge, post.ID)
	s.invalidate(ctx, nil, keyStoryList)

	storyType := models.PostTypeStory
	s.notify(ctx, &models.Notification{
		RecipientID: post.AuthorID,
		ActorID:     strPtr(actor.UserID),
		Type:        models.NotificationPromotion,
		Message:     fmt.Sprintf("Your post %q was promoted to a story", post.Title),
		PostType:    &storyType,
		PostID:      strPtr(story.ID),
	})
	s.recalculate(ctx, post.AuthorID)

	s.logger.Info("Promotion approved",
		zap.String("requestID", req.ID),
		zap.String("loungePostID", post.ID),
		zap.String("storyID", story.ID),
	)
	return req, story, nil
}

func (s *Service) RejectPromotion(ctx context.Context, id, note string) (*models.PromotionRequest, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	req, post, err := s.pendingPromotion(ctx, id)
	if err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)

	now := s.now()
	req.Status = models.PromotionRejected
	req.ReviewerID = strPtr(actor.UserID)
	req.ReviewNote = note
	req.ReviewedAt = &now
	if err := s.store.ResolvePromotionRequest(ctx, req, nil); err != nil {
		if models.IsClientError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to reject promotion request: %w", err)
	}
	s.invalidatePost(ctx, models.PostTypeLounge, post.ID)

	loungeType := models.PostTypeLounge
	message := fmt.Sprintf("Your post %q was not promoted", post.Title)
	if note != "" {
		message += ": " + note
	}
	s.notify(ctx, &models.Notification{
		RecipientID: post.AuthorID,
		ActorID:     strPtr(actor.UserID),
		Type:        models.NotificationPromotion,
		Message:     message,
		PostType:    &loungeType,
		PostID:      strPtr(post.ID),
	})

	s.logger.Info("Promotion rejected", zap.String("requestID", req.ID), zap.String("loungePostID", post.ID))
	return req, nil
}

func (s *Service) pendingPromotion(ctx context.Context, id string) (*models.PromotionRequest, *models.LoungePost, error) {
	req, err := s.store.GetPromotionRequest(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if req.Status != models.PromotionPending {
		return nil, nil, fmt.Errorf("%w: promotion request already %s", models.ErrConflict, req.Status)
	}
	post, err := s.store.GetLoungePost(ctx, req.LoungePostID)
	if err != nil {
		return nil, nil, err
	}
	return req, post, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
