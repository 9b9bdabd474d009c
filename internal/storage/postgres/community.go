package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/plainhr/plain/internal/models"
)

const (
	commentColumns      = `id, post_type, post_id, parent_id, author_id, content, is_deleted, created_at, updated_at`
	scrapColumns        = `id, user_id, post_type, post_id, created_at`
	levelColumns        = `user_id, level, experience, achievements, updated_at`
	notificationColumns = `id, recipient_id, actor_id, type, message, post_type, post_id, is_read, created_at`
	promotionColumns    = `id, lounge_post_id, requester_id, status, reason, reviewer_id, review_note, story_id, created_at, reviewed_at`
)

// adjustCounter меняет счётчик поста на delta, не опуская его ниже нуля,
// и возвращает новое значение. ErrNotFound, если поста нет.
func adjustCounter(ctx context.Context, tx pgx.Tx, postType models.PostType, postID, column string, delta int) (int, error) {
	table, err := postTable(postType)
	if err != nil {
		return 0, err
	}
	var value int
	err = tx.QueryRow(ctx,
		`UPDATE `+table+` SET `+column+` = GREATEST(`+column+` + $2, 0) WHERE id=$1 RETURNING `+column,
		postID, delta).Scan(&value)
	if notFound(err) {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", column, err)
	}
	return value, nil
}

func (s *PostgresStorage) CreateComment(ctx context.Context, c *models.Comment) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := adjustCounter(ctx, tx, c.PostType, c.PostID, "comment_count", 1); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO comments (`+commentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID, c.PostType, c.PostID, c.ParentID, c.AuthorID, c.Content, c.IsDeleted, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create comment: %w", err)
		}
		return nil
	})
}

func (s *PostgresStorage) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var c models.Comment
	err := pgxscan.Get(ctx, s.pool, &c, `SELECT `+commentColumns+` FROM comments WHERE id=$1`, id)
	if notFound(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return &c, nil
}

func (s *PostgresStorage) ListComments(ctx context.Context, postType models.PostType, postID string, parentID *string, limit int, cursor *string) (*models.PaginatedComments, error) {
	w := &where{}
	w.add("post_type = " + w.arg(postType))
	w.add("post_id = " + w.arg(postID))
	if parentID == nil {
		w.add("parent_id IS NULL")
	} else {
		w.add("parent_id = " + w.arg(*parentID))
	}
	return selectPage(ctx, s.pool, commentColumns, "comments", w, limit, cursor,
		func(c *models.Comment) (time.Time, string) { return c.CreatedAt, c.ID })
}

func (s *PostgresStorage) SoftDeleteComment(ctx context.Context, id string, placeholder string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var c models.Comment
		err := pgxscan.Get(ctx, tx, &c, `SELECT `+commentColumns+` FROM comments WHERE id=$1 FOR UPDATE`, id)
		if notFound(err) {
			return models.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get comment: %w", err)
		}
		if c.IsDeleted {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE comments SET is_deleted = TRUE, content = $2, updated_at = $3 WHERE id=$1`,
			id, placeholder, time.Now()); err != nil {
			return fmt.Errorf("failed to delete comment: %w", err)
		}
		if _, err := adjustCounter(ctx, tx, c.PostType, c.PostID, "comment_count", -1); err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		return nil
	})
}

func (s *PostgresStorage) AddLike(ctx context.Context, like *models.Like) (int, error) {
	var count int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO likes (user_id, post_type, post_id, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING`,
			like.UserID, like.PostType, like.PostID, like.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to add like: %w", err)
		}
		if tag.RowsAffected() == 0 {
			count, err = currentCount(ctx, tx, like.PostType, like.PostID, "like_count")
			if err != nil {
				return err
			}
			return models.ErrConflict
		}
		count, err = adjustCounter(ctx, tx, like.PostType, like.PostID, "like_count", 1)
		return err
	})
	return count, err
}

func (s *PostgresStorage) RemoveLike(ctx context.Context, userID string, postType models.PostType, postID string) (int, error) {
	var count int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM likes WHERE user_id=$1 AND post_type=$2 AND post_id=$3`, userID, postType, postID)
		if err != nil {
			return fmt.Errorf("failed to remove like: %w", err)
		}
		if tag.RowsAffected() == 0 {
			count, err = currentCount(ctx, tx, postType, postID, "like_count")
			if err != nil {
				return err
			}
			return models.ErrNotFound
		}
		count, err = adjustCounter(ctx, tx, postType, postID, "like_count", -1)
		return err
	})
	return count, err
}

func currentCount(ctx context.Context, tx pgx.Tx, postType models.PostType, postID, column string) (int, error) {
	table, err := postTable(postType)
	if err != nil {
		return 0, err
	}
	var value int
	err = tx.QueryRow(ctx, `SELECT `+column+` FROM `+table+` WHERE id=$1`, postID).Scan(&value)
	if notFound(err) {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", column, err)
	}
	return value, nil
}

func (s *PostgresStorage) HasLike(ctx context.Context, userID string, postType models.PostType, postID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM likes WHERE user_id=$1 AND post_type=$2 AND post_id=$3)`,
		userID, postType, postID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check like: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) AddScrap(ctx context.Context, scrap *models.Scrap) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := currentCount(ctx, tx, scrap.PostType, scrap.PostID, "scrap_count"); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO scraps (`+scrapColumns+`)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, post_type, post_id) DO NOTHING`,
			scrap.ID, scrap.UserID, scrap.PostType, scrap.PostID, scrap.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to add scrap: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return models.ErrConflict
		}
		_, err = adjustCounter(ctx, tx, scrap.PostType, scrap.PostID, "scrap_count", 1)
		return err
	})
}

func (s *PostgresStorage) RemoveScrap(ctx context.Context, userID string, postType models.PostType, postID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM scraps WHERE user_id=$1 AND post_type=$2 AND post_id=$3`, userID, postType, postID)
		if err != nil {
			return fmt.Errorf("failed to remove scrap: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		if _, err := adjustCounter(ctx, tx, postType, postID, "scrap_count", -1); err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		return nil
	})
}

func (s *PostgresStorage) HasScrap(ctx context.Context, userID string, postType models.PostType, postID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM scraps WHERE user_id=$1 AND post_type=$2 AND post_id=$3)`,
		userID, postType, postID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check scrap: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) ListScraps(ctx context.Context, userID string, limit int, cursor *string) (*models.Page[*models.Scrap], error) {
	w := &where{}
	w.add("user_id = " + w.arg(userID))
	return selectPage(ctx, s.pool, scrapColumns, "scraps", w, limit, cursor,
		func(sc *models.Scrap) (time.Time, string) { return sc.CreatedAt, sc.ID })
}

func (s *PostgresStorage) GetUserLevel(ctx context.Context, userID string) (*models.UserLevel, error) {
	var l models.UserLevel
	err := pgxscan.Get(ctx, s.pool, &l, `SELECT `+levelColumns+` FROM user_levels WHERE user_id=$1`, userID)
	if notFound(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user level: %w", err)
	}
	return &l, nil
}

func (s *PostgresStorage) GetUserLevelsByIDs(ctx context.Context, userIDs []string) ([]*models.UserLevel, error) {
	var levels []*models.UserLevel
	if err := pgxscan.Select(ctx, s.pool, &levels, `SELECT `+levelColumns+` FROM user_levels WHERE user_id = ANY($1)`, userIDs); err != nil {
		return nil, fmt.Errorf("failed to get user levels: %w", err)
	}
	return levels, nil
}

func (s *PostgresStorage) UpsertUserLevel(ctx context.Context, l *models.UserLevel) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_levels (`+levelColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET level = EXCLUDED.level, experience = EXCLUDED.experience,
			achievements = EXCLUDED.achievements, updated_at = EXCLUDED.updated_at`,
		l.UserID, l.Level, l.Experience, nonNil(l.Achievements), l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user level: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListTopLevels(ctx context.Context, limit int) ([]*models.UserLevel, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	var levels []*models.UserLevel
	err := pgxscan.Select(ctx, s.pool, &levels,
		`SELECT `+levelColumns+` FROM user_levels ORDER BY experience DESC, user_id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top levels: %w", err)
	}
	return levels, nil
}

func (s *PostgresStorage) GetActivityCounts(ctx context.Context, userID string) (*models.ActivityCounts, error) {
	var c models.ActivityCounts
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM stories WHERE author_id = $1),
			(SELECT COUNT(*) FROM lounge_posts WHERE author_id = $1),
			(SELECT COUNT(*) FROM comments WHERE author_id = $1 AND NOT is_deleted),
			(SELECT COALESCE(SUM(like_count), 0) FROM stories WHERE author_id = $1) +
				(SELECT COALESCE(SUM(like_count), 0) FROM lounge_posts WHERE author_id = $1),
			(SELECT COALESCE(SUM(scrap_count), 0) FROM stories WHERE author_id = $1) +
				(SELECT COALESCE(SUM(scrap_count), 0) FROM lounge_posts WHERE author_id = $1),
			(SELECT COUNT(*) FROM lounge_posts WHERE author_id = $1 AND is_excellent)`,
		userID,
	).Scan(&c.Stories, &c.LoungePosts, &c.Comments, &c.LikesReceived, &c.ScrapsReceived, &c.ExcellentPosts)
	if err != nil {
		return nil, fmt.Errorf("failed to count activity: %w", err)
	}
	return &c, nil
}

func (s *PostgresStorage) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.RecipientID, n.ActorID, n.Type, n.Message, n.PostType, n.PostID, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int, cursor *string) (*models.Page[*models.Notification], error) {
	w := &where{}
	w.add("recipient_id = " + w.arg(userID))
	if unreadOnly {
		w.add("NOT is_read")
	}
	return selectPage(ctx, s.pool, notificationColumns, "notifications", w, limit, cursor,
		func(n *models.Notification) (time.Time, string) { return n.CreatedAt, n.ID })
}

func (s *PostgresStorage) MarkNotificationRead(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id=$1 AND recipient_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE recipient_id=$1 AND NOT is_read`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStorage) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND NOT is_read`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

func (s *PostgresStorage) CreatePromotionRequest(ctx context.Context, req *models.PromotionRequest) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO promotion_requests (`+promotionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			req.ID, req.LoungePostID, req.RequesterID, req.Status, req.Reason, req.ReviewerID, req.ReviewNote,
			req.StoryID, req.CreatedAt, req.ReviewedAt)
		if isUniqueViolation(err) {
			return models.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return models.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to create promotion request: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE lounge_posts SET promotion_status=$2 WHERE id=$1`,
			req.LoungePostID, models.PromotionPending); err != nil {
			return fmt.Errorf("failed to update promotion status: %w", err)
		}
		return nil
	})
}

func (s *PostgresStorage) GetPromotionRequest(ctx context.Context, id string) (*models.PromotionRequest, error) {
	var req models.PromotionRequest
	err := pgxscan.Get(ctx, s.pool, &req, `SELECT `+promotionColumns+` FROM promotion_requests WHERE id=$1`, id)
	if notFound(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get promotion request: %w", err)
	}
	return &req, nil
}

func (s *PostgresStorage) ListPromotionRequests(ctx context.Context, status models.PromotionStatus, limit int, cursor *string) (*models.Page[*models.PromotionRequest], error) {
	w := &where{}
	if status != "" {
		w.add("status = " + w.arg(status))
	}
	return selectPage(ctx, s.pool, promotionColumns, "promotion_requests", w, limit, cursor,
		func(p *models.PromotionRequest) (time.Time, string) { return p.CreatedAt, p.ID })
}

func (s *PostgresStorage) UpdatePromotionRequest(ctx context.Context, req *models.PromotionRequest) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE promotion_requests
		SET status=$2, reviewer_id=$3, review_note=$4, story_id=$5, reviewed_at=$6
		WHERE id=$1`,
		req.ID, req.Status, req.ReviewerID, req.ReviewNote, req.StoryID, req.ReviewedAt)
	if err != nil {
		return fmt.Errorf("failed to update promotion request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ResolvePromotionRequest захватывает заявку условием status='pending', поэтому
// из нескольких одновременных решений проходит только одно.
func (s *PostgresStorage) ResolvePromotionRequest(ctx context.Context, req *models.PromotionRequest, story *models.Story) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var loungePostID string
		err := tx.QueryRow(ctx, `
			UPDATE promotion_requests
			SET status=$2, reviewer_id=$3, review_note=$4, story_id=$5, reviewed_at=$6
			WHERE id=$1 AND status=$7
			RETURNING lounge_post_id`,
			req.ID, req.Status, req.ReviewerID, req.ReviewNote, req.StoryID, req.ReviewedAt, models.PromotionPending).
			Scan(&loungePostID)
		if notFound(err) {
			var status models.PromotionStatus
			err := tx.QueryRow(ctx, `SELECT status FROM promotion_requests WHERE id=$1`, req.ID).Scan(&status)
			if notFound(err) {
				return models.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to get promotion request: %w", err)
			}
			return fmt.Errorf("%w: promotion request already %s", models.ErrConflict, status)
		}
		if err != nil {
			return fmt.Errorf("failed to resolve promotion request: %w", err)
		}

		if story != nil {
			if err := insertStory(ctx, tx, story); err != nil {
				return fmt.Errorf("failed to create story from lounge post: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE lounge_posts SET promotion_status=$2, promotion_note=$3, updated_at=COALESCE($4, updated_at)
			WHERE id=$1`,
			loungePostID, req.Status, req.ReviewNote, req.ReviewedAt); err != nil {
			return fmt.Errorf("failed to update promotion status: %w", err)
		}
		return nil
	})
}

func (s *PostgresStorage) RecordSearchKeyword(ctx context.Context, keyword string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO search_keywords (keyword, count, last_searched_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (keyword) DO UPDATE
		SET count = search_keywords.count + 1, last_searched_at = EXCLUDED.last_searched_at`,
		keyword, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record keyword: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListPopularKeywords(ctx context.Context, limit int) ([]*models.SearchKeyword, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	var keywords []*models.SearchKeyword
	err := pgxscan.Select(ctx, s.pool, &keywords, `
		SELECT keyword, count, last_searched_at FROM search_keywords
		ORDER BY count DESC, last_searched_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	return keywords, nil
}
