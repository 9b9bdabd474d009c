package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/auth"
	"github.com/plainhr/plain/internal/cache"
	"github.com/plainhr/plain/internal/models"
)

const (
	maxCommentLength   = 1000
	deletedPlaceholder = "This comment has been deleted."
)

func commentsPrefix(postType models.PostType, postID string) string {
	return keyComments + string(postType) + ":" + postID
}

// postAuthor проверяет существование поста и возвращает его автора и заголовок.
func (s *Service) postAuthor(ctx context.Context, postType models.PostType, postID string) (authorID, title string, err error) {
	switch postType {
	case models.PostTypeStory:
		st, err := s.store.GetStory(ctx, postID)
		if err != nil {
			return "", "", err
		}
		return st.AuthorID, st.Title, nil
	case models.PostTypeLounge:
		p, err := s.store.GetLoungePost(ctx, postID)
		if err != nil {
			return "", "", err
		}
		return p.AuthorID, p.Title, nil
	default:
		return "", "", fmt.Errorf("%w: unknown post type %q", models.ErrValidation, postType)
	}
}

func (s *Service) CreateComment(ctx context.Context, postType models.PostType, postID string, parentID *string, content string) (*CommentView, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !postType.Valid() {
		return nil, fmt.Errorf("%w: unknown post type %q", models.ErrValidation, postType)
	}
	content = strings.TrimSpace(content)
	if err := validateLength("content", content, 1, maxCommentLength); err != nil {
		return nil, err
	}
	if parentID != nil && strings.TrimSpace(*parentID) == "" {
		parentID = nil
	}

	postAuthorID, title, err := s.postAuthor(ctx, postType, postID)
	if err != nil {
		return nil, err
	}

	var parent *models.Comment
	if parentID != nil {
		parent, err = s.store.GetComment(ctx, *parentID)
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: parent comment not found", models.ErrValidation)
		}
		if err != nil {
			return nil, err
		}
		if parent.PostType != postType || parent.PostID != postID {
			return nil, fmt.Errorf("%w: parent comment belongs to another post", models.ErrValidation)
		}
		if parent.ParentID != nil {
			return nil, fmt.Errorf("%w: replies cannot be nested", models.ErrValidation)
		}
	}

	now := s.now()
	comment := &models.Comment{
		ID:        uuid.New().String(),
		PostType:  postType,
		PostID:    postID,
		ParentID:  parentID,
		AuthorID:  actor.UserID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	s.invalidatePost(ctx, postType, postID)
	s.invalidate(ctx, nil, commentsPrefix(postType, postID))
	if s.hub != nil {
		s.hub.Publish(comment)
	}

	n := &models.Notification{
		RecipientID: postAuthorID,
		ActorID:     strPtr(actor.UserID),
		Type:        models.NotificationComment,
		Message:     fmt.Sprintf("New comment on %q", title),
		PostType:    &postType,
		PostID:      strPtr(postID),
	}
	if parent != nil {
		n.RecipientID = parent.AuthorID
		n.Type = models.NotificationReply
		n.Message = fmt.Sprintf("New reply to your comment on %q", title)
	}
	if n.RecipientID != actor.UserID {
		s.notify(ctx, n)
	}
	s.recalculate(ctx, actor.UserID)

	s.logger.Debug("Comment created",
		zap.String("commentID", comment.ID),
		zap.String("postType", string(postType)),
		zap.String("postID", postID),
	)

	views, err := s.commentViews(ctx, []*models.Comment{comment})
	if err != nil {
		return &CommentView{Comment: comment}, nil
	}
	return views[0], nil
}

// ListComments возвращает комментарии верхнего уровня или ответы на parentID.
func (s *Service) ListComments(ctx context.Context, postType models.PostType, postID string, parentID *string, limit int, cursor *string) (*models.Page[*CommentView], error) {
	if !postType.Valid() {
		return nil, fmt.Errorf("%w: unknown post type %q", models.ErrValidation, postType)
	}
	limit = clampLimit(limit)

	key := cache.Key(commentsPrefix(postType, postID), map[string]any{"parent": parentID, "limit": limit, "cursor": cursor})
	page, err := cached(ctx, s, key, func(ctx context.Context) (*models.PaginatedComments, error) {
		if _, _, err := s.postAuthor(ctx, postType, postID); err != nil {
			return nil, err
		}
		return s.store.ListComments(ctx, postType, postID, parentID, limit, cursor)
	})
	if err != nil {
		return nil, err
	}

	views, err := s.commentViews(ctx, page.Items)
	if err != nil {
		return nil, err
	}
	return mapPage(page, views), nil
}

// DeleteComment мягко удаляет комментарий: ветка ответов сохраняется.
func (s *Service) DeleteComment(ctx context.Context, id string) error {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	comment, err := s.store.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if err := canModify(actor, comment.AuthorID); err != nil {
		return err
	}
	if err := s.store.SoftDeleteComment(ctx, id, deletedPlaceholder); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	s.invalidatePost(ctx, comment.PostType, comment.PostID)
	s.invalidate(ctx, nil, commentsPrefix(comment.PostType, comment.PostID))
	s.recalculate(ctx, comment.AuthorID)
	return nil
}

func (s *Service) commentViews(ctx context.Context, comments []*models.Comment) ([]*CommentView, error) {
	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		if !c.IsDeleted {
			ids = append(ids, c.AuthorID)
		}
	}
	authors, err := s.authors(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]*CommentView, len(comments))
	for i, c := range comments {
		views[i] = &CommentView{Comment: c}
		if !c.IsDeleted {
			views[i].Author = authors[c.AuthorID]
		}
	}
	return views, nil
}
