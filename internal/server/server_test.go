package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plainhr/plain/internal/auth"
	"github.com/plainhr/plain/internal/cache"
	"github.com/plainhr/plain/internal/config"
	"github.com/plainhr/plain/internal/live"
	"github.com/plainhr/plain/internal/models"
	"github.com/plainhr/plain/internal/service"
	"github.com/plainhr/plain/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	server *Server
	store  *memory.MemoryStorage
	auth   *auth.Service
	hub    *live.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"

	store := memory.New()
	c := cache.NewMemory(100, time.Minute, time.Minute, nil)
	t.Cleanup(func() { c.Close() })

	hub := live.NewHub(nil)
	authSvc := auth.NewService(store, cfg.Auth.JWTSecret, time.Hour, nil)
	svc := service.New(store, c, nil, hub, nil, service.DefaultOptions(), nil)

	srv := New(cfg, Deps{Service: svc, Auth: authSvc, Hub: hub, Loaders: store}, nil)
	return &testEnv{server: srv, store: store, auth: authSvc, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) register(t *testing.T, email, name string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{Email: email, Password: "password123", Name: name})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Token
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	now := time.Now()
	require.NoError(t, e.store.CreateUser(context.Background(), &models.User{
		ID: "admin", Email: "admin@plain.hr", Name: "Админ", Role: models.RoleAdmin, CreatedAt: now, UpdatedAt: now,
	}))
	token, err := e.auth.GenerateToken("admin", models.RoleAdmin)
	require.NoError(t, err)
	return token
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestNewServer(t *testing.T) {
	env := newTestEnv(t)
	assert.NotNil(t, env.server)
	assert.NotNil(t, env.server.handler)
	assert.Equal(t, ":8080", env.server.httpServer.Addr)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader), "Ответ должен содержать X-Request-ID")

	rr = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "plain_http_requests_total")
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.ErrValidation, http.StatusBadRequest},
		{models.ErrUnauthorized, http.StatusUnauthorized},
		{models.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("wrap: %w", models.ErrNotFound), http.StatusNotFound},
		{models.ErrConflict, http.StatusConflict},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "anna@example.com", "Анна")

	rr := env.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{Email: "anna@example.com", Password: "password123", Name: "Анна"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "anna@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "anna@example.com", Password: "password123"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	me := decode[map[string]any](t, rr)
	assert.Equal(t, "Анна", me["name"])
	assert.NotContains(t, me, "passwordHash", "Хеш пароля не отдаётся")

	rr = env.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/v1/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPublicProfileHidesPrivateFields(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "vera@example.com", "Вера")
	user, err := env.store.GetUserByEmail(context.Background(), "vera@example.com")
	require.NoError(t, err)

	rr := env.do(t, http.MethodGet, "/api/v1/users/"+user.ID, "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	profile := decode[map[string]any](t, rr)
	assert.Equal(t, "Вера", profile["name"])
	assert.NotContains(t, profile, "email", "Почта не видна посторонним")
	assert.NotContains(t, profile, "role")
	assert.NotContains(t, rr.Body.String(), "vera@example.com")

	rr = env.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	me := decode[map[string]any](t, rr)
	assert.Equal(t, "vera@example.com", me["email"], "Владелец видит свою почту")
}

func TestRegisterRejectsLongPassword(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{
		Email: "long@example.com", Password: strings.Repeat("p", 80), Name: "Длинный",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
}

func TestLoungeEndpoints(t *testing.T) {
	env := newTestEnv(t)
	anna := env.register(t, "anna@example.com", "Анна")
	boris := env.register(t, "boris@example.com", "Борис")

	rr := env.do(t, http.MethodPost, "/api/v1/lounge", "", service.LoungeInput{Title: "Пост", Content: "текст", Type: models.LoungeFree})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/v1/lounge", anna, service.LoungeInput{Title: "", Content: "текст", Type: models.LoungeFree})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[map[string]string](t, rr)["error"], "title")

	rr = env.do(t, http.MethodPost, "/api/v1/lounge", anna, service.LoungeInput{Title: "Как провести 1:1?", Content: "Поделитесь", Type: models.LoungeQuestion})
	require.Equal(t, http.StatusCreated, rr.Code)
	post := decode[models.LoungePost](t, rr)

	rr = env.do(t, http.MethodGet, "/api/v1/lounge/"+post.ID, boris, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	view := decode[map[string]any](t, rr)
	assert.Equal(t, "Как провести 1:1?", view["title"])
	assert.Equal(t, false, view["liked"])
	author, ok := view["author"].(map[string]any)
	require.True(t, ok, "Автор должен разрешаться")
	assert.Equal(t, "Анна", author["name"])

	rr = env.do(t, http.MethodGet, "/api/v1/lounge?type=question&limit=5", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[models.Page[map[string]any]](t, rr)
	assert.Len(t, page.Items, 1)
	assert.Nil(t, page.NextCursor)

	rr = env.do(t, http.MethodGet, "/api/v1/lounge?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/v1/lounge?cursor=%21%21", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/v1/lounge/"+post.ID, boris, service.LoungeInput{Title: "Чужой", Content: "текст", Type: models.LoungeFree})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/v1/lounge/"+post.ID+"/like", boris, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, service.LikeResult{Liked: true, LikeCount: 1}, decode[service.LikeResult](t, rr))

	rr = env.do(t, http.MethodPost, "/api/v1/lounge/"+post.ID+"/scrap", boris, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/v1/me/scraps", boris, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	scraps := decode[models.Page[service.ScrapItem]](t, rr)
	require.Len(t, scraps.Items, 1)
	require.NotNil(t, scraps.Items[0].Lounge)
	assert.Equal(t, post.ID, scraps.Items[0].Lounge.ID)

	rr = env.do(t, http.MethodGet, "/api/v1/notifications/unread-count", anna, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[map[string]int](t, rr)["count"])

	rr = env.do(t, http.MethodDelete, "/api/v1/lounge/"+post.ID, anna, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/v1/lounge/"+post.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCommentEndpoints(t *testing.T) {
	env := newTestEnv(t)
	anna := env.register(t, "anna@example.com", "Анна")
	admin := env.adminToken(t)

	rr := env.do(t, http.MethodPost, "/api/v1/stories", anna, service.StoryInput{Title: "Статья", Content: "текст"})
	assert.Equal(t, http.StatusForbidden, rr.Code, "Статьи создаёт только админ")

	rr = env.do(t, http.MethodPost, "/api/v1/stories", admin, service.StoryInput{Title: "Статья", Content: "текст"})
	require.Equal(t, http.StatusCreated, rr.Code)
	story := decode[models.Story](t, rr)

	rr = env.do(t, http.MethodPost, "/api/v1/stories/"+story.ID+"/comments", anna, commentRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "Пустой комментарий отклоняется")

	rr = env.do(t, http.MethodPost, "/api/v1/stories/"+story.ID+"/comments", anna, commentRequest{Content: "Отличная статья"})
	require.Equal(t, http.StatusCreated, rr.Code)
	comment := decode[models.Comment](t, rr)

	rr = env.do(t, http.MethodPost, "/api/v1/stories/"+story.ID+"/comments", admin, commentRequest{Content: "Спасибо", ParentID: &comment.ID})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/stories/"+story.ID+"/comments?parent="+comment.ID, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	replies := decode[models.Page[models.Comment]](t, rr)
	assert.Len(t, replies.Items, 1)

	rr = env.do(t, http.MethodGet, "/api/v1/stories/missing/comments", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodDelete, "/api/v1/comments/"+comment.ID, anna, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)
	anna := env.register(t, "anna@example.com", "Анна")
	admin := env.adminToken(t)

	rr := env.do(t, http.MethodGet, "/api/v1/admin/stats", anna, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/v1/lounge", anna, service.LoungeInput{Title: "Гайд по KPI", Content: "текст", Type: models.LoungeInfo})
	require.Equal(t, http.StatusCreated, rr.Code)
	post := decode[models.LoungePost](t, rr)

	rr = env.do(t, http.MethodPost, "/api/v1/lounge/"+post.ID+"/promotion", anna, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	req := decode[models.PromotionRequest](t, rr)

	rr = env.do(t, http.MethodGet, "/api/v1/admin/promotions?status=pending", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[models.Page[models.PromotionRequest]](t, rr).Items, 1)

	rr = env.do(t, http.MethodPost, "/api/v1/admin/promotions/"+req.ID+"/approve", admin, noteRequest{Note: "Берём"})
	require.Equal(t, http.StatusOK, rr.Code)
	var approved struct {
		Request models.PromotionRequest `json:"request"`
		Story   models.Story            `json:"story"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &approved))
	assert.Equal(t, models.PromotionApproved, approved.Request.Status)
	assert.Equal(t, post.Title, approved.Story.Title)

	rr = env.do(t, http.MethodPost, "/api/v1/admin/promotions/"+req.ID+"/reject", admin, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[models.DashboardStats](t, rr)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 1, stats.Stories)
}

func TestSearchEndpoints(t *testing.T) {
	env := newTestEnv(t)
	anna := env.register(t, "anna@example.com", "Анна")

	rr := env.do(t, http.MethodPost, "/api/v1/lounge", anna, service.LoungeInput{Title: "Performance review", Content: "текст", Type: models.LoungeInfo})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/search?q=a", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/search?q=review", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	result := decode[map[string]any](t, rr)
	assert.Len(t, result["loungePosts"], 1)

	rr = env.do(t, http.MethodGet, "/api/v1/search/popular", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "review")

	rr = env.do(t, http.MethodGet, "/api/v1/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Анна")
}

func TestCommentFeedWebSocket(t *testing.T) {
	env := newTestEnv(t)
	anna := env.register(t, "anna@example.com", "Анна")

	rr := env.do(t, http.MethodPost, "/api/v1/lounge", anna, service.LoungeInput{Title: "Пост", Content: "текст", Type: models.LoungeFree})
	require.Equal(t, http.StatusCreated, rr.Code)
	post := decode[models.LoungePost](t, rr)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/lounge/" + post.ID + "/comments"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "Ошибка подключения к ленте")
	defer conn.Close()

	require.Eventually(t, func() bool {
		return env.hub.Subscribers(models.PostTypeLounge, post.ID) == 1
	}, time.Second, 10*time.Millisecond)

	rr = env.do(t, http.MethodPost, "/api/v1/lounge/"+post.ID+"/comments", anna, commentRequest{Content: "Живой комментарий"})
	require.Equal(t, http.StatusCreated, rr.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var received models.Comment
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, "Живой комментарий", received.Content)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return env.hub.Subscribers(models.PostTypeLounge, post.ID) == 0
	}, 2*time.Second, 10*time.Millisecond, "Подписка снимается после закрытия соединения")

	resp, err := http.Get(ts.URL + "/ws/video/1/comments")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
