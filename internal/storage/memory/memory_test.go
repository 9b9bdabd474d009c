package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/plainhr/plain/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStory(authorID string, createdAt time.Time) *models.Story {
	return &models.Story{
		ID:        uuid.New().String(),
		Title:     "Тестовая статья",
		Content:   "Содержимое",
		AuthorID:  authorID,
		Tags:      []string{"hr", "onboarding"},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func newLounge(authorID string, createdAt time.Time) *models.LoungePost {
	return &models.LoungePost{
		ID:              uuid.New().String(),
		Title:           "Вопрос",
		Content:         "Как проводить exit interview?",
		Type:            models.LoungeQuestion,
		AuthorID:        authorID,
		PromotionStatus: models.PromotionNone,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

func TestMemoryStorage(t *testing.T) {
	t.Run("CreateStory and GetStory", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		story := newStory("user1", time.Now())
		err := store.CreateStory(ctx, story)
		assert.NoError(t, err, "Ошибка при создании статьи")

		retrieved, err := store.GetStory(ctx, story.ID)
		assert.NoError(t, err, "Ошибка при получении статьи")
		assert.Equal(t, story, retrieved, "Полученная статья не совпадает с созданной")

		retrieved.Tags[0] = "changed"
		again, _ := store.GetStory(ctx, story.ID)
		assert.Equal(t, "hr", again.Tags[0], "Хранилище не должно отдавать внутренние срезы")
	})

	t.Run("GetStory Not Found", func(t *testing.T) {
		store := New()
		_, err := store.GetStory(context.Background(), "non-existent-id")
		assert.ErrorIs(t, err, models.ErrNotFound, "Неверная ошибка для несуществующей статьи")
	})

	t.Run("ListStories", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		story1 := newStory("user1", time.Now().Add(-2*time.Hour))
		story2 := newStory("user1", time.Now().Add(-1*time.Hour))
		require.NoError(t, store.CreateStory(ctx, story1))
		require.NoError(t, store.CreateStory(ctx, story2))

		// Тестируем пагинацию
		result, err := store.ListStories(ctx, models.StoryFilter{}, 1, nil)
		assert.NoError(t, err, "Ошибка при получении списка статей")
		assert.Len(t, result.Items, 1, "Ожидалась одна статья")
		assert.Equal(t, story2.ID, result.Items[0].ID, "Ожидалась более новая статья")
		assert.Equal(t, 2, result.TotalCount, "Неверное общее количество статей")
		assert.NotNil(t, result.NextCursor, "Ожидался ненулевой курсор")

		// Тестируем с курсором
		result, err = store.ListStories(ctx, models.StoryFilter{}, 1, result.NextCursor)
		assert.NoError(t, err, "Ошибка при получении статей с курсором")
		assert.Len(t, result.Items, 1, "Ожидалась одна статья")
		assert.Equal(t, story1.ID, result.Items[0].ID, "Ожидалась более старая статья")
		assert.Nil(t, result.NextCursor, "Последняя страница не должна иметь курсора")
	})

	t.Run("ListStories with filter", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		verified := newStory("user1", time.Now())
		verified.IsVerified = true
		verified.Title = "Performance review guide"
		other := newStory("user2", time.Now().Add(-time.Minute))
		other.Tags = []string{"payroll"}
		require.NoError(t, store.CreateStory(ctx, verified))
		require.NoError(t, store.CreateStory(ctx, other))

		result, err := store.ListStories(ctx, models.StoryFilter{VerifiedOnly: true}, 10, nil)
		require.NoError(t, err)
		assert.Len(t, result.Items, 1)

		result, err = store.ListStories(ctx, models.StoryFilter{Query: "REVIEW"}, 10, nil)
		require.NoError(t, err)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, verified.ID, result.Items[0].ID)

		result, err = store.ListStories(ctx, models.StoryFilter{Tag: "Payroll"}, 10, nil)
		require.NoError(t, err)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, other.ID, result.Items[0].ID)
	})

	t.Run("ListStories bad cursor", func(t *testing.T) {
		store := New()
		bad := "???"
		_, err := store.ListStories(context.Background(), models.StoryFilter{}, 10, &bad)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("CreateComment and ListComments", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		post := newLounge("user1", time.Now())
		require.NoError(t, store.CreateLoungePost(ctx, post))

		comment := &models.Comment{
			ID:        uuid.New().String(),
			PostType:  models.PostTypeLounge,
			PostID:    post.ID,
			AuthorID:  "user1",
			Content:   "Тестовый комментарий",
			CreatedAt: time.Now(),
		}
		err := store.CreateComment(ctx, comment)
		assert.NoError(t, err, "Ошибка при создании комментария")

		comments, err := store.ListComments(ctx, models.PostTypeLounge, post.ID, nil, 10, nil)
		assert.NoError(t, err, "Ошибка при получении комментариев")
		assert.Len(t, comments.Items, 1, "Ожидался один комментарий")
		assert.Equal(t, comment.ID, comments.Items[0].ID, "Полученный комментарий не совпадает")

		updated, _ := store.GetLoungePost(ctx, post.ID)
		assert.Equal(t, 1, updated.CommentCount, "Счётчик комментариев не увеличен")
	})

	t.Run("CreateComment on missing post", func(t *testing.T) {
		store := New()
		err := store.CreateComment(context.Background(), &models.Comment{ID: "c1", PostType: models.PostTypeStory, PostID: "nope"})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("ListComments with ParentID", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		post := newStory("user1", time.Now())
		require.NoError(t, store.CreateStory(ctx, post))

		parentComment := &models.Comment{
			ID:        uuid.New().String(),
			PostType:  models.PostTypeStory,
			PostID:    post.ID,
			AuthorID:  "user1",
			Content:   "Родительский комментарий",
			CreatedAt: time.Now(),
		}
		reply := &models.Comment{
			ID:        uuid.New().String(),
			PostType:  models.PostTypeStory,
			PostID:    post.ID,
			ParentID:  &parentComment.ID,
			AuthorID:  "user2",
			Content:   "Ответ",
			CreatedAt: time.Now().Add(1 * time.Hour),
		}

		require.NoError(t, store.CreateComment(ctx, parentComment))
		require.NoError(t, store.CreateComment(ctx, reply))

		comments, err := store.ListComments(ctx, models.PostTypeStory, post.ID, &parentComment.ID, 10, nil)
		assert.NoError(t, err, "Ошибка при получении ответов")
		assert.Len(t, comments.Items, 1, "Ожидался один ответ")
		assert.Equal(t, reply.ID, comments.Items[0].ID, "Полученный ответ не совпадает")

		top, err := store.ListComments(ctx, models.PostTypeStory, post.ID, nil, 10, nil)
		assert.NoError(t, err)
		assert.Len(t, top.Items, 1, "Ответы не должны попадать в список верхнего уровня")
	})

	t.Run("SoftDeleteComment", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		post := newStory("user1", time.Now())
		require.NoError(t, store.CreateStory(ctx, post))
		comment := &models.Comment{ID: "c1", PostType: models.PostTypeStory, PostID: post.ID, AuthorID: "user2", Content: "текст", CreatedAt: time.Now()}
		require.NoError(t, store.CreateComment(ctx, comment))

		require.NoError(t, store.SoftDeleteComment(ctx, "c1", "deleted"))
		require.NoError(t, store.SoftDeleteComment(ctx, "c1", "deleted"), "Повторное удаление должно быть идемпотентным")

		got, err := store.GetComment(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, got.IsDeleted)
		assert.Equal(t, "deleted", got.Content)

		updated, _ := store.GetStory(ctx, post.ID)
		assert.Equal(t, 0, updated.CommentCount, "Счётчик не должен уходить в минус")
	})

	t.Run("Likes", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		post := newLounge("author", time.Now())
		require.NoError(t, store.CreateLoungePost(ctx, post))

		count, err := store.AddLike(ctx, &models.Like{UserID: "u1", PostType: models.PostTypeLounge, PostID: post.ID, CreatedAt: time.Now()})
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		_, err = store.AddLike(ctx, &models.Like{UserID: "u1", PostType: models.PostTypeLounge, PostID: post.ID})
		assert.ErrorIs(t, err, models.ErrConflict, "Повторный лайк должен вернуть конфликт")

		liked, _ := store.HasLike(ctx, "u1", models.PostTypeLounge, post.ID)
		assert.True(t, liked)

		count, err = store.RemoveLike(ctx, "u1", models.PostTypeLounge, post.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		_, err = store.RemoveLike(ctx, "u1", models.PostTypeLounge, post.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("Scraps", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		story := newStory("author", time.Now())
		require.NoError(t, store.CreateStory(ctx, story))

		require.NoError(t, store.AddScrap(ctx, &models.Scrap{ID: "s1", UserID: "u1", PostType: models.PostTypeStory, PostID: story.ID, CreatedAt: time.Now()}))
		assert.ErrorIs(t, store.AddScrap(ctx, &models.Scrap{ID: "s2", UserID: "u1", PostType: models.PostTypeStory, PostID: story.ID}), models.ErrConflict)

		page, err := store.ListScraps(ctx, "u1", 10, nil)
		require.NoError(t, err)
		assert.Len(t, page.Items, 1)

		got, _ := store.GetStory(ctx, story.ID)
		assert.Equal(t, 1, got.ScrapCount)

		require.NoError(t, store.RemoveScrap(ctx, "u1", models.PostTypeStory, story.ID))
		got, _ = store.GetStory(ctx, story.ID)
		assert.Equal(t, 0, got.ScrapCount)
	})

	t.Run("DeleteStory removes thread", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		story := newStory("author", time.Now())
		require.NoError(t, store.CreateStory(ctx, story))
		require.NoError(t, store.CreateComment(ctx, &models.Comment{ID: "c1", PostType: models.PostTypeStory, PostID: story.ID, CreatedAt: time.Now()}))
		_, err := store.AddLike(ctx, &models.Like{UserID: "u1", PostType: models.PostTypeStory, PostID: story.ID})
		require.NoError(t, err)

		require.NoError(t, store.DeleteStory(ctx, story.ID))
		_, err = store.GetComment(ctx, "c1")
		assert.ErrorIs(t, err, models.ErrNotFound)
		liked, _ := store.HasLike(ctx, "u1", models.PostTypeStory, story.ID)
		assert.False(t, liked)
	})

	t.Run("ActivityCounts", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		story := newStory("author", time.Now())
		story.LikeCount = 3
		lounge := newLounge("author", time.Now())
		lounge.IsExcellent = true
		lounge.ScrapCount = 2
		require.NoError(t, store.CreateStory(ctx, story))
		require.NoError(t, store.CreateLoungePost(ctx, lounge))
		require.NoError(t, store.CreateComment(ctx, &models.Comment{ID: "c1", PostType: models.PostTypeStory, PostID: story.ID, AuthorID: "author", CreatedAt: time.Now()}))

		counts, err := store.GetActivityCounts(ctx, "author")
		require.NoError(t, err)
		assert.Equal(t, &models.ActivityCounts{
			Stories:        1,
			LoungePosts:    1,
			Comments:       1,
			LikesReceived:  3,
			ScrapsReceived: 2,
			ExcellentPosts: 1,
		}, counts)
	})

	t.Run("Levels", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		require.NoError(t, store.UpsertUserLevel(ctx, &models.UserLevel{UserID: "a", Level: 2, Experience: 60}))
		require.NoError(t, store.UpsertUserLevel(ctx, &models.UserLevel{UserID: "b", Level: 3, Experience: 200}))
		require.NoError(t, store.UpsertUserLevel(ctx, &models.UserLevel{UserID: "a", Level: 2, Experience: 70}))

		top, err := store.ListTopLevels(ctx, 1)
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, "b", top[0].UserID)

		a, err := store.GetUserLevel(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 70, a.Experience, "Побеждает последняя запись")

		levels, err := store.GetUserLevelsByIDs(ctx, []string{"a", "missing"})
		require.NoError(t, err)
		assert.Len(t, levels, 1)
	})

	t.Run("Notifications", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			require.NoError(t, store.CreateNotification(ctx, &models.Notification{
				ID: uuid.New().String(), RecipientID: "u1", Type: models.NotificationLike, CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
			}))
		}
		unread, _ := store.CountUnreadNotifications(ctx, "u1")
		assert.Equal(t, 3, unread)

		page, err := store.ListNotifications(ctx, "u1", true, 10, nil)
		require.NoError(t, err)
		require.Len(t, page.Items, 3)

		assert.ErrorIs(t, store.MarkNotificationRead(ctx, page.Items[0].ID, "other"), models.ErrNotFound, "Чужое уведомление отмечать нельзя")
		require.NoError(t, store.MarkNotificationRead(ctx, page.Items[0].ID, "u1"))

		n, err := store.MarkAllNotificationsRead(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Promotions", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		post := newLounge("author", time.Now())
		require.NoError(t, store.CreateLoungePost(ctx, post))

		req := &models.PromotionRequest{ID: "p1", LoungePostID: post.ID, Status: models.PromotionPending, CreatedAt: time.Now()}
		require.NoError(t, store.CreatePromotionRequest(ctx, req))
		assert.ErrorIs(t, store.CreatePromotionRequest(ctx, &models.PromotionRequest{ID: "p2", LoungePostID: post.ID, Status: models.PromotionPending}), models.ErrConflict)

		req.Status = models.PromotionRejected
		require.NoError(t, store.UpdatePromotionRequest(ctx, req))
		require.NoError(t, store.CreatePromotionRequest(ctx, &models.PromotionRequest{ID: "p3", LoungePostID: post.ID, Status: models.PromotionPending, CreatedAt: time.Now()}))

		pending, err := store.ListPromotionRequests(ctx, models.PromotionPending, 10, nil)
		require.NoError(t, err)
		assert.Len(t, pending.Items, 1)
		assert.Equal(t, "p3", pending.Items[0].ID)
	})

	t.Run("ResolvePromotionRequest", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		post := newLounge("author", time.Now())
		require.NoError(t, store.CreateLoungePost(ctx, post))
		req := &models.PromotionRequest{ID: "p1", LoungePostID: post.ID, Status: models.PromotionPending, CreatedAt: time.Now()}
		require.NoError(t, store.CreatePromotionRequest(ctx, req))

		stored, err := store.GetLoungePost(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PromotionPending, stored.PromotionStatus, "Заявка переводит пост в ожидание")

		now := time.Now()
		story := newStory("author", now)
		approved := *req
		approved.Status = models.PromotionApproved
		approved.StoryID = &story.ID
		approved.ReviewNote = "ok"
		approved.ReviewedAt = &now
		require.NoError(t, store.ResolvePromotionRequest(ctx, &approved, story))

		again := newStory("author", now)
		assert.ErrorIs(t, store.ResolvePromotionRequest(ctx, &approved, again), models.ErrConflict, "Заявку нельзя рассмотреть дважды")
		_, err = store.GetStory(ctx, again.ID)
		assert.ErrorIs(t, err, models.ErrNotFound, "При конфликте Story не создаётся")

		_, err = store.GetStory(ctx, story.ID)
		require.NoError(t, err)
		stored, err = store.GetLoungePost(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PromotionApproved, stored.PromotionStatus)
		assert.Equal(t, "ok", stored.PromotionNote)

		assert.ErrorIs(t, store.ResolvePromotionRequest(ctx, &models.PromotionRequest{ID: "missing"}, nil), models.ErrNotFound)
	})

	t.Run("MarkLoungeExcellent", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		post := newLounge("author", time.Now())
		require.NoError(t, store.CreateLoungePost(ctx, post))
		stale, err := store.GetLoungePost(ctx, post.ID)
		require.NoError(t, err)

		req := &models.PromotionRequest{ID: "auto", Status: models.PromotionPending, CreatedAt: time.Now()}
		marked, opened, err := store.MarkLoungeExcellent(ctx, post.ID, req)
		require.NoError(t, err)
		assert.True(t, marked)
		assert.True(t, opened)

		marked, opened, err = store.MarkLoungeExcellent(ctx, post.ID, &models.PromotionRequest{ID: "auto2", Status: models.PromotionPending})
		require.NoError(t, err)
		assert.False(t, marked, "Повторная отметка ничего не меняет")
		assert.False(t, opened)

		stale.Title = "Новый заголовок"
		require.NoError(t, store.UpdateLoungePost(ctx, stale))
		stored, err := store.GetLoungePost(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, "Новый заголовок", stored.Title)
		assert.True(t, stored.IsExcellent, "Редактирование не сбрасывает отметку")
		assert.Equal(t, models.PromotionPending, stored.PromotionStatus)

		_, _, err = store.MarkLoungeExcellent(ctx, "missing", nil)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("DeleteLoungePost removes promotion requests", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		post := newLounge("author", time.Now())
		require.NoError(t, store.CreateLoungePost(ctx, post))
		require.NoError(t, store.CreatePromotionRequest(ctx, &models.PromotionRequest{ID: "p1", LoungePostID: post.ID, Status: models.PromotionPending, CreatedAt: time.Now()}))

		require.NoError(t, store.DeleteLoungePost(ctx, post.ID))
		_, err := store.GetPromotionRequest(ctx, "p1")
		assert.ErrorIs(t, err, models.ErrNotFound, "Заявки удаляются вместе с постом")
		all, err := store.ListPromotionRequests(ctx, "", 10, nil)
		require.NoError(t, err)
		assert.Empty(t, all.Items)
	})

	t.Run("IncrementViews", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		story := newStory("author", time.Now())
		require.NoError(t, store.CreateStory(ctx, story))
		views, err := store.IncrementStoryViews(ctx, story.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, views)
		views, err = store.IncrementStoryViews(ctx, story.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, views)

		_, err = store.IncrementLoungeViews(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("SearchKeywords", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		require.NoError(t, store.RecordSearchKeyword(ctx, "onboarding"))
		require.NoError(t, store.RecordSearchKeyword(ctx, "payroll"))
		require.NoError(t, store.RecordSearchKeyword(ctx, "onboarding"))

		popular, err := store.ListPopularKeywords(ctx, 10)
		require.NoError(t, err)
		require.Len(t, popular, 2)
		assert.Equal(t, "onboarding", popular[0].Keyword)
		assert.Equal(t, 2, popular[0].Count)
	})

	t.Run("Users", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		require.NoError(t, store.CreateUser(ctx, &models.User{ID: "u1", Email: "hr@plain.io", Name: "HR"}))
		assert.ErrorIs(t, store.CreateUser(ctx, &models.User{ID: "u2", Email: "HR@plain.io"}), models.ErrConflict)

		u, err := store.GetUserByEmail(ctx, "hr@PLAIN.io")
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)

		users, err := store.GetUsersByIDs(ctx, []string{"u1", "ghost"})
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("Close", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		story := newStory("user1", time.Now())
		assert.NoError(t, store.CreateStory(ctx, story))

		err := store.Close()
		assert.NoError(t, err, "Ошибка при закрытии хранилища")

		_, err = store.GetStory(ctx, story.ID)
		assert.Error(t, err, "Ожидалась ошибка после очистки хранилища")
	})
}
