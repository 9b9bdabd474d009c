package storage

import (
	"context"

	"github.com/plainhr/plain/internal/models"
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
}

type StoryStore interface {
	CreateStory(ctx context.Context, story *models.Story) error
	GetStory(ctx context.Context, id string) (*models.Story, error)
	GetStoriesByIDs(ctx context.Context, ids []string) ([]*models.Story, error)
	ListStories(ctx context.Context, filter models.StoryFilter, limit int, cursor *string) (*models.PaginatedStories, error)
	UpdateStory(ctx context.Context, story *models.Story) error
	DeleteStory(ctx context.Context, id string) error
	// IncrementStoryViews возвращает новое число просмотров.
	IncrementStoryViews(ctx context.Context, id string) (int, error)
}

type LoungeStore interface {
	CreateLoungePost(ctx context.Context, post *models.LoungePost) error
	GetLoungePost(ctx context.Context, id string) (*models.LoungePost, error)
	GetLoungePostsByIDs(ctx context.Context, ids []string) ([]*models.LoungePost, error)
	ListLoungePosts(ctx context.Context, filter models.LoungeFilter, limit int, cursor *string) (*models.PaginatedLoungePosts, error)
	// UpdateLoungePost меняет только поля, которые редактирует автор: заголовок,
	// текст, тип и теги. Счётчики и статус продвижения не затрагиваются.
	UpdateLoungePost(ctx context.Context, post *models.LoungePost) error
	DeleteLoungePost(ctx context.Context, id string) error
	IncrementLoungeViews(ctx context.Context, id string) (int, error)
	// MarkLoungeExcellent ставит посту признак отличного. Если пост ещё не
	// участвовал в продвижении, вместе с этим создаётся заявка req.
	// marked = false, если пост уже был отмечен.
	MarkLoungeExcellent(ctx context.Context, id string, req *models.PromotionRequest) (marked, opened bool, err error)
}

type CommentStore interface {
	// CreateComment также увеличивает счётчик комментариев поста.
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	ListComments(ctx context.Context, postType models.PostType, postID string, parentID *string, limit int, cursor *string) (*models.PaginatedComments, error)
	SoftDeleteComment(ctx context.Context, id string, placeholder string) error
}

type ReactionStore interface {
	// AddLike возвращает ErrConflict, если лайк уже стоит.
	AddLike(ctx context.Context, like *models.Like) (int, error)
	// RemoveLike возвращает ErrNotFound, если лайка нет.
	RemoveLike(ctx context.Context, userID string, postType models.PostType, postID string) (int, error)
	HasLike(ctx context.Context, userID string, postType models.PostType, postID string) (bool, error)

	AddScrap(ctx context.Context, scrap *models.Scrap) error
	RemoveScrap(ctx context.Context, userID string, postType models.PostType, postID string) error
	HasScrap(ctx context.Context, userID string, postType models.PostType, postID string) (bool, error)
	ListScraps(ctx context.Context, userID string, limit int, cursor *string) (*models.Page[*models.Scrap], error)
}

type LevelStore interface {
	GetUserLevel(ctx context.Context, userID string) (*models.UserLevel, error)
	GetUserLevelsByIDs(ctx context.Context, userIDs []string) ([]*models.UserLevel, error)
	UpsertUserLevel(ctx context.Context, level *models.UserLevel) error
	ListTopLevels(ctx context.Context, limit int) ([]*models.UserLevel, error)
	GetActivityCounts(ctx context.Context, userID string) (*models.ActivityCounts, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int, cursor *string) (*models.Page[*models.Notification], error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
}

type PromotionStore interface {
	// CreatePromotionRequest создаёт заявку и переводит пост в pending.
	// ErrConflict, если для поста уже есть заявка в ожидании.
	CreatePromotionRequest(ctx context.Context, req *models.PromotionRequest) error
	GetPromotionRequest(ctx context.Context, id string) (*models.PromotionRequest, error)
	ListPromotionRequests(ctx context.Context, status models.PromotionStatus, limit int, cursor *string) (*models.Page[*models.PromotionRequest], error)
	UpdatePromotionRequest(ctx context.Context, req *models.PromotionRequest) error
	// ResolvePromotionRequest переводит заявку из pending в req.Status одной
	// операцией: сохраняет story (если не nil) и статус поста. ErrConflict,
	// если заявка уже рассмотрена.
	ResolvePromotionRequest(ctx context.Context, req *models.PromotionRequest, story *models.Story) error
}

type SearchStore interface {
	RecordSearchKeyword(ctx context.Context, keyword string) error
	ListPopularKeywords(ctx context.Context, limit int) ([]*models.SearchKeyword, error)
}

type Storage interface {
	UserStore
	StoryStore
	LoungeStore
	CommentStore
	ReactionStore
	LevelStore
	NotificationStore
	PromotionStore
	SearchStore
	Stats(ctx context.Context) (*models.DashboardStats, error)
	Close() error
}
