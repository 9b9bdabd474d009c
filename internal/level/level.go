package level

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/metrics"
	"github.com/plainhr/plain/internal/models"
)

// Weights - очки опыта за единицу активности.
type Weights struct {
	Story         int
	LoungePost    int
	Comment       int
	LikeReceived  int
	ScrapReceived int
	ExcellentPost int
}

func DefaultWeights() Weights {
	return Weights{
		Story:         30,
		LoungePost:    10,
		Comment:       2,
		LikeReceived:  5,
		ScrapReceived: 3,
		ExcellentPost: 50,
	}
}

// thresholds[i] - минимальный опыт для уровня i+1.
var thresholds = []int{0, 50, 150, 300, 500, 800, 1200, 1700, 2300, 3000}

var titles = []string{
	"Newcomer",
	"Explorer",
	"Contributor",
	"Practitioner",
	"Specialist",
	"Senior Specialist",
	"Expert",
	"Mentor",
	"Leader",
	"HR Legend",
}

const MaxLevel = 10

const (
	AchievementFirstPost       = "first_post"
	AchievementFirstComment    = "first_comment"
	AchievementCommentator     = "commentator"
	AchievementPopularAuthor   = "popular_author"
	AchievementExcellentWriter = "excellent_writer"
	AchievementStoryWriter     = "story_writer"
)

func Experience(c models.ActivityCounts, w Weights) int {
	return c.Stories*w.Story +
		c.LoungePosts*w.LoungePost +
		c.Comments*w.Comment +
		c.LikesReceived*w.LikeReceived +
		c.ScrapsReceived*w.ScrapReceived +
		c.ExcellentPosts*w.ExcellentPost
}

func LevelFor(exp int) int {
	level := 1
	for i, min := range thresholds {
		if exp >= min {
			level = i + 1
		}
	}
	return level
}

// Progress возвращает опыт, набранный внутри текущего уровня, и сколько
// осталось до следующего. На максимальном уровне toNext = 0.
func Progress(exp int) (current, toNext int) {
	if exp < 0 {
		exp = 0
	}
	lvl := LevelFor(exp)
	current = exp - thresholds[lvl-1]
	if lvl >= MaxLevel {
		return current, 0
	}
	return current, thresholds[lvl] - exp
}

func Title(level int) string {
	if level < 1 {
		level = 1
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return titles[level-1]
}

// Achievements возвращает достижения в фиксированном порядке.
func Achievements(c models.ActivityCounts) []string {
	var out []string
	if c.Stories+c.LoungePosts >= 1 {
		out = append(out, AchievementFirstPost)
	}
	if c.Comments >= 1 {
		out = append(out, AchievementFirstComment)
	}
	if c.Comments >= 50 {
		out = append(out, AchievementCommentator)
	}
	if c.LikesReceived >= 100 {
		out = append(out, AchievementPopularAuthor)
	}
	if c.ExcellentPosts >= 1 {
		out = append(out, AchievementExcellentWriter)
	}
	if c.Stories >= 1 {
		out = append(out, AchievementStoryWriter)
	}
	if out == nil {
		out = []string{}
	}
	return out
}

type Store interface {
	GetActivityCounts(ctx context.Context, userID string) (*models.ActivityCounts, error)
	GetUserLevel(ctx context.Context, userID string) (*models.UserLevel, error)
	UpsertUserLevel(ctx context.Context, level *models.UserLevel) error
}

type Engine struct {
	store   Store
	weights Weights
	logger  *zap.Logger
	now     func() time.Time
}

func NewEngine(store Store, weights Weights, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		weights: weights,
		logger:  logger.Named("LevelEngine"),
		now:     time.Now,
	}
}

// Recalculate пересчитывает опыт по свежим счётчикам и сохраняет результат.
// leveledUp = true, если уровень вырос относительно сохранённого.
func (e *Engine) Recalculate(ctx context.Context, userID string) (*models.UserLevel, bool, error) {
	counts, err := e.store.GetActivityCounts(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get activity counts: %w", err)
	}

	previous := 1
	if current, err := e.store.GetUserLevel(ctx, userID); err == nil {
		previous = current.Level
	}

	exp := Experience(*counts, e.weights)
	lvl := &models.UserLevel{
		UserID:       userID,
		Level:        LevelFor(exp),
		Experience:   exp,
		Achievements: Achievements(*counts),
		UpdatedAt:    e.now(),
	}
	if err := e.store.UpsertUserLevel(ctx, lvl); err != nil {
		return nil, false, fmt.Errorf("failed to save user level: %w", err)
	}

	leveledUp := lvl.Level > previous
	if leveledUp {
		metrics.LevelUps.Inc()
		e.logger.Info("User leveled up",
			zap.String("userID", userID),
			zap.Int("from", previous),
			zap.Int("to", lvl.Level),
		)
	}
	return lvl, leveledUp, nil
}
