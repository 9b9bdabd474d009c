package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/models"
	"github.com/plainhr/plain/internal/storage"
)

const defaultLimit = 20

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ storage.Storage = (*PostgresStorage)(nil)

type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New подключается к PostgreSQL и применяет миграции. Размер пула задаётся
// параметром pool_max_conns в DSN.
func New(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStorage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := applyMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Named("PostgresStorage").Info("postgres storage ready", zap.Int32("maxConns", cfg.MaxConns))
	return &PostgresStorage{pool: pool, logger: logger.Named("PostgresStorage")}, nil
}

func applyMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Stats(ctx context.Context) (*models.DashboardStats, error) {
	var stats models.DashboardStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM stories),
			(SELECT COUNT(*) FROM lounge_posts),
			(SELECT COUNT(*) FROM comments WHERE NOT is_deleted),
			(SELECT COUNT(*) FROM likes),
			(SELECT COUNT(*) FROM scraps),
			(SELECT COUNT(*) FROM promotion_requests WHERE status = 'pending')`,
	).Scan(&stats.Users, &stats.Stories, &stats.LoungePosts, &stats.Comments, &stats.Likes, &stats.Scraps, &stats.PendingPromotions)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return &stats, nil
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// where собирает условия WHERE с позиционными параметрами.
type where struct {
	clauses []string
	args    []any
}

func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) add(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *where) clone() *where {
	return &where{
		clauses: append([]string(nil), w.clauses...),
		args:    append([]any(nil), w.args...),
	}
}

// selectPage выполняет запрос страницы "сначала новые": COUNT по фильтру
// и выборку limit+1 строк после курсора.
func selectPage[T any](ctx context.Context, db pgxscan.Querier, columns, table string, w *where, limit int, cursor *string, key func(T) (time.Time, string)) (*models.Page[T], error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	// Подсчет общего количества
	var totalCount int
	if err := pgxscan.Get(ctx, db, &totalCount, "SELECT COUNT(*) FROM "+table+w.String(), w.args...); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", table, err)
	}

	q := w.clone()
	if cursor != nil && *cursor != "" {
		curT, curID, err := models.DecodeCursor(*cursor)
		if err != nil {
			return nil, err
		}
		q.add(fmt.Sprintf("(created_at, id) < (%s, %s)", q.arg(curT), q.arg(curID)))
	}
	query := "SELECT " + columns + " FROM " + table + q.String() +
		" ORDER BY created_at DESC, id DESC LIMIT " + q.arg(limit+1)

	var items []T
	if err := pgxscan.Select(ctx, db, &items, query, q.args...); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}

	var nextCursor *string
	if len(items) > limit {
		t, id := key(items[limit-1])
		c := models.EncodeCursor(t, id)
		nextCursor = &c
		items = items[:limit]
	}
	if items == nil {
		items = []T{}
	}

	return &models.Page[T]{
		Items:      items,
		TotalCount: totalCount,
		NextCursor: nextCursor,
	}, nil
}

func postTable(postType models.PostType) (string, error) {
	switch postType {
	case models.PostTypeStory:
		return "stories", nil
	case models.PostTypeLounge:
		return "lounge_posts", nil
	}
	return "", fmt.Errorf("%w: unknown post type %q", models.ErrValidation, postType)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func notFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || pgxscan.NotFound(err)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
