package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/auth"
	"github.com/plainhr/plain/internal/models"
)

// notify сохраняет уведомление и отправляет событие в брокер.
// Сбой доставки не влияет на операцию, вызвавшую уведомление.
func (s *Service) notify(ctx context.Context, n *models.Notification) {
	if n.RecipientID == "" {
		return
	}
	n.ID = uuid.New().String()
	n.CreatedAt = s.now()
	if err := s.store.CreateNotification(ctx, n); err != nil {
		s.logger.Warn("Failed to store notification",
			zap.String("recipientID", n.RecipientID),
			zap.String("type", string(n.Type)),
			zap.Error(err),
		)
		return
	}
	if err := s.publisher.PublishNotification(ctx, n); err != nil {
		s.logger.Warn("Failed to publish notification", zap.String("notificationID", n.ID), zap.Error(err))
	}
}

func (s *Service) ListNotifications(ctx context.Context, unreadOnly bool, limit int, cursor *string) (*models.Page[*models.Notification], error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListNotifications(ctx, actor.UserID, unreadOnly, clampLimit(limit), cursor)
}

func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return 0, err
	}
	return s.store.CountUnreadNotifications(ctx, actor.UserID)
}

// MarkRead отмечает прочитанным уведомление текущего пользователя.
// Чужое уведомление неотличимо от отсутствующего.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.store.MarkNotificationRead(ctx, id, actor.UserID); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context) (int, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return 0, err
	}
	n, err := s.store.MarkAllNotificationsRead(ctx, actor.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}
