package level

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plainhr/plain/internal/models"
	"github.com/plainhr/plain/internal/storage/memory"
)

func TestExperience(t *testing.T) {
	counts := models.ActivityCounts{
		Stories:        1,
		LoungePosts:    2,
		Comments:       3,
		LikesReceived:  4,
		ScrapsReceived: 5,
		ExcellentPosts: 1,
	}
	// 30 + 20 + 6 + 20 + 15 + 50
	assert.Equal(t, 141, Experience(counts, DefaultWeights()))
	assert.Equal(t, 0, Experience(models.ActivityCounts{}, DefaultWeights()))
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		exp   int
		level int
	}{
		{0, 1},
		{49, 1},
		{50, 2},
		{149, 2},
		{150, 3},
		{2999, 9},
		{3000, 10},
		{100000, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, LevelFor(tt.exp), "exp=%d", tt.exp)
	}
}

func TestProgress(t *testing.T) {
	current, toNext := Progress(60)
	assert.Equal(t, 10, current)
	assert.Equal(t, 90, toNext)

	current, toNext = Progress(3500)
	assert.Equal(t, 500, current)
	assert.Equal(t, 0, toNext, "На максимальном уровне до следующего 0")
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Newcomer", Title(1))
	assert.Equal(t, "HR Legend", Title(10))
	assert.Equal(t, "HR Legend", Title(99))
	assert.Equal(t, "Newcomer", Title(0))
}

func TestAchievements(t *testing.T) {
	assert.Empty(t, Achievements(models.ActivityCounts{}))
	assert.NotNil(t, Achievements(models.ActivityCounts{}))

	got := Achievements(models.ActivityCounts{
		Stories:        1,
		Comments:       50,
		LikesReceived:  100,
		ExcellentPosts: 1,
	})
	assert.Equal(t, []string{
		AchievementFirstPost,
		AchievementFirstComment,
		AchievementCommentator,
		AchievementPopularAuthor,
		AchievementExcellentWriter,
		AchievementStoryWriter,
	}, got, "Порядок достижений должен быть стабильным")
}

func TestEngineRecalculate(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	engine := NewEngine(store, DefaultWeights(), nil)

	lvl, up, err := engine.Recalculate(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 1, lvl.Level)
	assert.False(t, up, "Без активности уровень не растёт")

	story := &models.Story{ID: "s1", AuthorID: "user1", Title: "t", Content: "c"}
	require.NoError(t, store.CreateStory(ctx, story))
	post := &models.LoungePost{ID: "p1", AuthorID: "user1", Title: "t", Content: "c", Type: models.LoungeFree}
	require.NoError(t, store.CreateLoungePost(ctx, post))

	lvl, up, err = engine.Recalculate(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 40, lvl.Experience)
	assert.False(t, up)

	_, err = store.AddLike(ctx, &models.Like{UserID: "fan", PostType: models.PostTypeStory, PostID: "s1"})
	require.NoError(t, err)

	lvl, up, err = engine.Recalculate(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 45, lvl.Experience)
	assert.False(t, up)

	_, err = store.AddLike(ctx, &models.Like{UserID: "fan2", PostType: models.PostTypeStory, PostID: "s1"})
	require.NoError(t, err)
	lvl, up, err = engine.Recalculate(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 2, lvl.Level)
	assert.True(t, up, "Переход через порог 50 должен повышать уровень")

	saved, err := store.GetUserLevel(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, lvl.Experience, saved.Experience, "Результат должен сохраняться")
	assert.Contains(t, saved.Achievements, AchievementStoryWriter)
}
