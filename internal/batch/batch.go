package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"github.com/plainhr/plain/internal/metrics"
	"github.com/plainhr/plain/internal/models"
)

// Source - пакетные чтения хранилища, которые группирует Loaders.
type Source interface {
	GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	GetUserLevelsByIDs(ctx context.Context, userIDs []string) ([]*models.UserLevel, error)
	GetStoriesByIDs(ctx context.Context, ids []string) ([]*models.Story, error)
	GetLoungePostsByIDs(ctx context.Context, ids []string) ([]*models.LoungePost, error)
}

type Options struct {
	Wait     time.Duration
	MaxBatch int
}

// Loaders собирает одиночные запросы по таблицам в пакеты. Живёт в пределах
// одного HTTP-запроса: повторные ключи обслуживаются из кэша загрузчика.
type Loaders struct {
	Users   *dataloader.Loader[string, *models.User]
	Levels  *dataloader.Loader[string, *models.UserLevel]
	Stories *dataloader.Loader[string, *models.Story]
	Lounge  *dataloader.Loader[string, *models.LoungePost]
}

func NewLoaders(src Source, opts Options) *Loaders {
	return &Loaders{
		Users: newLoader("users", src.GetUsersByIDs,
			func(u *models.User) string { return u.ID }, opts),
		Levels: newLoader("levels", src.GetUserLevelsByIDs,
			func(l *models.UserLevel) string { return l.UserID }, opts),
		Stories: newLoader("stories", src.GetStoriesByIDs,
			func(s *models.Story) string { return s.ID }, opts),
		Lounge: newLoader("lounge_posts", src.GetLoungePostsByIDs,
			func(p *models.LoungePost) string { return p.ID }, opts),
	}
}

func newLoader[V any](name string, fetch func(context.Context, []string) ([]V, error), id func(V) string, opts Options) *dataloader.Loader[string, V] {
	batchFn := func(ctx context.Context, keys []string) []*dataloader.Result[V] {
		metrics.BatchSize.WithLabelValues(name).Observe(float64(len(keys)))

		results := make([]*dataloader.Result[V], len(keys))
		rows, err := fetch(ctx, keys)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result[V]{Error: fmt.Errorf("failed to load %s: %w", name, err)}
			}
			return results
		}

		byID := make(map[string]V, len(rows))
		for _, row := range rows {
			byID[id(row)] = row
		}
		// каждый ключ разрешается независимо
		for i, key := range keys {
			if row, ok := byID[key]; ok {
				results[i] = &dataloader.Result[V]{Data: row}
			} else {
				results[i] = &dataloader.Result[V]{Error: fmt.Errorf("%w: %s %s", models.ErrNotFound, name, key)}
			}
		}
		return results
	}

	var options []dataloader.Option[string, V]
	if opts.Wait > 0 {
		options = append(options, dataloader.WithWait[string, V](opts.Wait))
	}
	if opts.MaxBatch > 0 {
		options = append(options, dataloader.WithBatchCapacity[string, V](opts.MaxBatch))
	}
	return dataloader.NewBatchedLoader(batchFn, options...)
}

// LoadAll загружает ключи одним пакетом. Отсутствующие ключи пропускаются,
// прочие ошибки возвращаются первой из них.
func LoadAll[V any](ctx context.Context, l *dataloader.Loader[string, V], keys []string) (map[string]V, error) {
	values, errs := l.LoadMany(ctx, keys)()
	result := make(map[string]V, len(keys))
	for i, key := range keys {
		if i < len(errs) && errs[i] != nil {
			if models.IsClientError(errs[i]) {
				continue
			}
			return nil, errs[i]
		}
		result[key] = values[i]
	}
	return result, nil
}

type ctxKey struct{}

func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func FromContext(ctx context.Context) (*Loaders, bool) {
	l, ok := ctx.Value(ctxKey{}).(*Loaders)
	return l, ok && l != nil
}
