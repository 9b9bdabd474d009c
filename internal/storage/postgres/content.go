package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/plainhr/plain/internal/models"
)

const (
	userColumns = `id, email, name, password_hash, role, bio, avatar_url, created_at, updated_at`

	storyColumns = `id, title, summary, content, thumbnail_url, author_id, tags, read_time, is_verified,
		verification_badge, source_lounge_id, view_count, like_count, scrap_count, comment_count, created_at, updated_at`

	loungeColumns = `id, title, content, type, author_id, tags, is_excellent, promotion_status, promotion_note,
		view_count, like_count, scrap_count, comment_count, created_at, updated_at`
)

func (s *PostgresStorage) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.Bio, u.AvatarURL, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrConflict
	}
	return err
}

func (s *PostgresStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := pgxscan.Get(ctx, s.pool, &u, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	if notFound(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := pgxscan.Get(ctx, s.pool, &u, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email)
	if notFound(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &u, nil
}

func (s *PostgresStorage) GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	var users []*models.User
	if err := pgxscan.Select(ctx, s.pool, &users, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids); err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return users, nil
}

func (s *PostgresStorage) UpdateUser(ctx context.Context, u *models.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET name=$2, bio=$3, avatar_url=$4, role=$5, password_hash=$6, updated_at=$7
		WHERE id=$1`,
		u.ID, u.Name, u.Bio, u.AvatarURL, u.Role, u.PasswordHash, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// execer - общий метод pgxpool.Pool и pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStorage) CreateStory(ctx context.Context, st *models.Story) error {
	return insertStory(ctx, s.pool, st)
}

func insertStory(ctx context.Context, db execer, st *models.Story) error {
	_, err := db.Exec(ctx, `
		INSERT INTO stories (`+storyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		st.ID, st.Title, st.Summary, st.Content, st.ThumbnailURL, st.AuthorID, nonNil(st.Tags), st.ReadTime, st.IsVerified,
		st.VerificationBadge, st.SourceLoungeID, st.ViewCount, st.LikeCount, st.ScrapCount, st.CommentCount, st.CreatedAt, st.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrConflict
	}
	return err
}

func (s *PostgresStorage) GetStory(ctx context.Context, id string) (*models.Story, error) {
	var st models.Story
	err := pgxscan.Get(ctx, s.pool, &st, `SELECT `+storyColumns+` FROM stories WHERE id=$1`, id)
	if notFound(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	return &st, nil
}

func (s *PostgresStorage) GetStoriesByIDs(ctx context.Context, ids []string) ([]*models.Story, error) {
	var stories []*models.Story
	if err := pgxscan.Select(ctx, s.pool, &stories, `SELECT `+storyColumns+` FROM stories WHERE id = ANY($1)`, ids); err != nil {
		return nil, fmt.Errorf("failed to get stories: %w", err)
	}
	return stories, nil
}

func (s *PostgresStorage) ListStories(ctx context.Context, filter models.StoryFilter, limit int, cursor *string) (*models.PaginatedStories, error) {
	w := &where{}
	if filter.AuthorID != "" {
		w.add("author_id = " + w.arg(filter.AuthorID))
	}
	if filter.VerifiedOnly {
		w.add("is_verified")
	}
	if filter.Tag != "" {
		w.add(fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(tags) t WHERE LOWER(t) = LOWER(%s))", w.arg(filter.Tag)))
	}
	if filter.Query != "" {
		p := w.arg(escapeLike(filter.Query))
		w.add(fmt.Sprintf("(title ILIKE %s OR content ILIKE %s)", p, p))
	}
	return selectPage(ctx, s.pool, storyColumns, "stories", w, limit, cursor,
		func(st *models.Story) (time.Time, string) { return st.CreatedAt, st.ID })
}

func (s *PostgresStorage) UpdateStory(ctx context.Context, st *models.Story) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE stories SET title=$2, summary=$3, content=$4, thumbnail_url=$5, tags=$6, read_time=$7,
			is_verified=$8, verification_badge=$9, updated_at=$10
		WHERE id=$1`,
		st.ID, st.Title, st.Summary, st.Content, st.ThumbnailURL, nonNil(st.Tags), st.ReadTime,
		st.IsVerified, st.VerificationBadge, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update story: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) DeleteStory(ctx context.Context, id string) error {
	return s.deletePost(ctx, models.PostTypeStory, id)
}

func (s *PostgresStorage) IncrementStoryViews(ctx context.Context, id string) (int, error) {
	return s.incrementViews(ctx, "stories", id)
}

func (s *PostgresStorage) CreateLoungePost(ctx context.Context, p *models.LoungePost) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lounge_posts (`+loungeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.Title, p.Content, p.Type, p.AuthorID, nonNil(p.Tags), p.IsExcellent, p.PromotionStatus, p.PromotionNote,
		p.ViewCount, p.LikeCount, p.ScrapCount, p.CommentCount, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrConflict
	}
	return err
}

func (s *PostgresStorage) GetLoungePost(ctx context.Context, id string) (*models.LoungePost, error) {
	var p models.LoungePost
	err := pgxscan.Get(ctx, s.pool, &p, `SELECT `+loungeColumns+` FROM lounge_posts WHERE id=$1`, id)
	if notFound(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lounge post: %w", err)
	}
	return &p, nil
}

func (s *PostgresStorage) GetLoungePostsByIDs(ctx context.Context, ids []string) ([]*models.LoungePost, error) {
	var posts []*models.LoungePost
	if err := pgxscan.Select(ctx, s.pool, &posts, `SELECT `+loungeColumns+` FROM lounge_posts WHERE id = ANY($1)`, ids); err != nil {
		return nil, fmt.Errorf("failed to get lounge posts: %w", err)
	}
	return posts, nil
}

func (s *PostgresStorage) ListLoungePosts(ctx context.Context, filter models.LoungeFilter, limit int, cursor *string) (*models.PaginatedLoungePosts, error) {
	w := &where{}
	if filter.AuthorID != "" {
		w.add("author_id = " + w.arg(filter.AuthorID))
	}
	if filter.Type != "" {
		w.add("type = " + w.arg(filter.Type))
	}
	if filter.ExcellentOnly {
		w.add("is_excellent")
	}
	if filter.Query != "" {
		p := w.arg(escapeLike(filter.Query))
		w.add(fmt.Sprintf("(title ILIKE %s OR content ILIKE %s)", p, p))
	}
	return selectPage(ctx, s.pool, loungeColumns, "lounge_posts", w, limit, cursor,
		func(p *models.LoungePost) (time.Time, string) { return p.CreatedAt, p.ID })
}

func (s *PostgresStorage) UpdateLoungePost(ctx context.Context, p *models.LoungePost) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE lounge_posts SET title=$2, content=$3, type=$4, tags=$5, updated_at=$6
		WHERE id=$1`,
		p.ID, p.Title, p.Content, p.Type, nonNil(p.Tags), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update lounge post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) DeleteLoungePost(ctx context.Context, id string) error {
	return s.deletePost(ctx, models.PostTypeLounge, id)
}

func (s *PostgresStorage) IncrementLoungeViews(ctx context.Context, id string) (int, error) {
	return s.incrementViews(ctx, "lounge_posts", id)
}

func (s *PostgresStorage) incrementViews(ctx context.Context, table, id string) (int, error) {
	var views int
	err := s.pool.QueryRow(ctx, `UPDATE `+table+` SET view_count = view_count + 1 WHERE id=$1 RETURNING view_count`, id).Scan(&views)
	if notFound(err) {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment views: %w", err)
	}
	return views, nil
}

// MarkLoungeExcellent выставляет is_excellent и, если пост ещё не продвигался,
// открывает заявку в той же транзакции.
func (s *PostgresStorage) MarkLoungeExcellent(ctx context.Context, id string, req *models.PromotionRequest) (marked, opened bool, err error) {
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var status models.PromotionStatus
		err := tx.QueryRow(ctx, `
			UPDATE lounge_posts SET is_excellent = TRUE
			WHERE id=$1 AND NOT is_excellent
			RETURNING promotion_status`, id).Scan(&status)
		if notFound(err) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM lounge_posts WHERE id=$1)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check lounge post: %w", err)
			}
			if !exists {
				return models.ErrNotFound
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to mark lounge post excellent: %w", err)
		}
		marked = true
		if status != models.PromotionNone || req == nil {
			return nil
		}

		c := *req
		c.LoungePostID = id
		tag, err := tx.Exec(ctx, `
			INSERT INTO promotion_requests (`+promotionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT DO NOTHING`,
			c.ID, c.LoungePostID, c.RequesterID, c.Status, c.Reason, c.ReviewerID, c.ReviewNote,
			c.StoryID, c.CreatedAt, c.ReviewedAt)
		if err != nil {
			return fmt.Errorf("failed to open promotion request: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE lounge_posts SET promotion_status=$2 WHERE id=$1`, id, models.PromotionPending); err != nil {
			return fmt.Errorf("failed to update promotion status: %w", err)
		}
		opened = true
		return nil
	})
	if err != nil {
		return false, false, err
	}
	return marked, opened, nil
}

// deletePost удаляет пост вместе с комментариями, лайками и скрапами в одной транзакции.
func (s *PostgresStorage) deletePost(ctx context.Context, postType models.PostType, id string) error {
	table, err := postTable(postType)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE id=$1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		for _, q := range []string{
			`DELETE FROM comments WHERE post_type=$1 AND post_id=$2`,
			`DELETE FROM likes WHERE post_type=$1 AND post_id=$2`,
			`DELETE FROM scraps WHERE post_type=$1 AND post_id=$2`,
		} {
			if _, err := tx.Exec(ctx, q, postType, id); err != nil {
				return fmt.Errorf("failed to delete post thread: %w", err)
			}
		}
		return nil
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
