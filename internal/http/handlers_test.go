package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/confessly/internal/auth"
	"github.com/sujalbistaa/confessly/internal/metrics"
	"github.com/sujalbistaa/confessly/internal/models"
	"github.com/sujalbistaa/confessly/internal/service"
	"github.com/sujalbistaa/confessly/internal/store"
	"github.com/sujalbistaa/confessly/internal/store/storetest"
	"github.com/sujalbistaa/confessly/internal/ws"
)

type testServer struct {
	router *gin.Engine
	store  *store.Store
	auth   *auth.Service
}

func newTestServer(t *testing.T, staticDir string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := storetest.New(t)
	log := zap.NewNop()
	hub := ws.NewHub(log)
	m, err := metrics.New()
	require.NoError(t, err)

	board := service.NewBoard(st, log)
	board.Watch(hub)
	t.Cleanup(board.Close)

	authSvc := auth.NewService(st, time.Hour, log, auth.WithBcryptCost(bcrypt.MinCost))
	env := &Env{
		Confessions: service.NewConfessions(st, hub, m, log),
		Reactions:   service.NewReactions(st, hub, m, log),
		Feed:        service.NewFeed(board, 7, nil),
		Admin:       service.NewAdmin(st, board, hub, m, log, nil),
		Auth:        authSvc,
		Hub:         hub,
		Log:         log,
		SessionTTL:  time.Hour,
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router := gin.New()
	SetupRoutes(ctx, router, env, Options{StaticDir: staticDir, Metrics: m})
	return &testServer{router: router, store: st, auth: authSvc}
}

type request struct {
	method string
	path   string
	body   string
	ip     string
	token  string
}

func (s *testServer) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(r.method, r.path, strings.NewReader(r.body))
	if r.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.ip == "" {
		r.ip = "192.0.2.1"
	}
	req.RemoteAddr = r.ip + ":4242"
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) seed(t *testing.T, content string) *models.Confession {
	t.Helper()
	c := &models.Confession{Content: content}
	require.NoError(t, s.store.CreateConfession(context.Background(), c))
	return c
}

func (s *testServer) signIn(t *testing.T, email string, admin bool) string {
	t.Helper()
	ctx := context.Background()
	u, err := s.auth.SignUp(ctx, email, "secret123")
	require.NoError(t, err)
	if admin {
		require.NoError(t, s.store.GrantRole(ctx, u.ID, models.RoleAdmin))
	}
	sess, err := s.auth.SignIn(ctx, email, "secret123")
	require.NoError(t, err)
	return sess.Token
}

func TestCreateConfession(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	w := s.do(t, request{method: http.MethodPost, path: "/api/confessions", body: `{"content":"  I never read the docs  "}`, ip: "10.0.0.1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	assert.Equal(t, "I never read the docs", created["content"])
	assert.NotEmpty(t, created["id"])
	assert.NotContains(t, created, "ipAddress")

	// Same client again inside the rate window.
	w = s.do(t, request{method: http.MethodPost, path: "/api/confessions", body: `{"content":"again"}`, ip: "10.0.0.1"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(t, request{method: http.MethodPost, path: "/api/confessions", body: `{"content":"   "}`, ip: "10.0.0.2"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please write something before submitting", decode[map[string]any](t, w)["error"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/confessions", body: `{"content":"` + strings.Repeat("é", 1001) + `"}`, ip: "10.0.0.3"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Confession must be at most 1000 characters", decode[map[string]any](t, w)["error"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/confessions"})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]map[string]any](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "I never read the docs", list[0]["content"])
}

func TestLikeToggle(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	c := s.seed(t, "hello")
	path := "/api/confessions/" + c.ID

	w := s.do(t, request{method: http.MethodPost, path: path + "/like"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, service.LikeState{Count: 1, Liked: true}, decode[service.LikeState](t, w))

	w = s.do(t, request{method: http.MethodGet, path: path + "/likes"})
	assert.Equal(t, service.LikeState{Count: 1, Liked: true}, decode[service.LikeState](t, w))

	w = s.do(t, request{method: http.MethodGet, path: path + "/likes", ip: "192.0.2.9"})
	assert.Equal(t, service.LikeState{Count: 1, Liked: false}, decode[service.LikeState](t, w))

	w = s.do(t, request{method: http.MethodPost, path: path + "/like"})
	assert.Equal(t, service.LikeState{Count: 0, Liked: false}, decode[service.LikeState](t, w))

	w = s.do(t, request{method: http.MethodPost, path: "/api/confessions/missing/like"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestComments(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	c := s.seed(t, "hello")
	path := "/api/confessions/" + c.ID + "/comments"

	w := s.do(t, request{method: http.MethodPost, path: path, body: `{"content":" same here "}`})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "same here", decode[map[string]any](t, w)["content"])

	w = s.do(t, request{method: http.MethodPost, path: path, body: `{"content":"` + strings.Repeat("x", 501) + `"}`})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Comment must be at most 500 characters", decode[map[string]any](t, w)["error"])

	w = s.do(t, request{method: http.MethodGet, path: path})
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Count    int              `json:"count"`
		Comments []models.Comment `json:"comments"`
	}](t, w)
	assert.Equal(t, 1, got.Count)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, c.ID, got.Comments[0].ConfessionID)

	w = s.do(t, request{method: http.MethodGet, path: "/api/confessions/missing/comments"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeedsAndTags(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	quiet := s.seed(t, "nothing to see #go")
	loud := s.seed(t, "big news #go #life")

	s.do(t, request{method: http.MethodPost, path: "/api/confessions/" + loud.ID + "/like"})
	s.do(t, request{method: http.MethodPost, path: "/api/confessions/" + quiet.ID + "/comments", body: `{"content":"hm"}`})

	w := s.do(t, request{method: http.MethodGet, path: "/api/confessions/trending?days=3"})
	require.Equal(t, http.StatusOK, w.Code)
	trending := decode[[]map[string]any](t, w)
	require.Len(t, trending, 2)
	assert.Equal(t, loud.ID, trending[0]["id"])
	assert.EqualValues(t, 2, trending[0]["score"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/confessions/most-liked"})
	liked := decode[[]map[string]any](t, w)
	require.NotEmpty(t, liked)
	assert.Equal(t, loud.ID, liked[0]["id"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/confessions/most-commented"})
	commented := decode[[]map[string]any](t, w)
	require.Len(t, commented, 1)
	assert.Equal(t, quiet.ID, commented[0]["id"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/tags?limit=1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `[{"tag":"go","count":2}]`, w.Body.String())

	w = s.do(t, request{method: http.MethodGet, path: "/api/confessions/trending?days=abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	w := s.do(t, request{method: http.MethodPost, path: "/api/auth/signup", body: `{"email":"Mod@Example.com","password":"secret123"}`})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "mod@example.com", decode[map[string]any](t, w)["email"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/auth/signup", body: `{"email":"mod@example.com","password":"secret123"}`})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "This email is already registered. Please login instead.", decode[map[string]any](t, w)["error"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/auth/signup", body: `{"email":"not-an-email","password":"secret123"}`})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, request{method: http.MethodPost, path: "/api/auth/signin", body: `{"email":"mod@example.com","password":"wrong-password"}`})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password", decode[map[string]any](t, w)["error"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/auth/signin", body: `{"email":"mod@example.com","password":"secret123"}`})
	require.Equal(t, http.StatusOK, w.Code)
	token, _ := decode[map[string]any](t, w)["token"].(string)
	require.NotEmpty(t, token)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, token, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	w = s.do(t, request{method: http.MethodGet, path: "/api/auth/session", token: token})
	session := decode[map[string]any](t, w)
	assert.Equal(t, false, session["isAdmin"])
	assert.Equal(t, "mod@example.com", session["session"].(map[string]any)["email"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/auth/signout", token: token})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/auth/session", token: token})
	assert.Nil(t, decode[map[string]any](t, w)["session"])
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	c := s.seed(t, "delete me")
	s.seed(t, "keep me")
	s.do(t, request{method: http.MethodPost, path: "/api/confessions/" + c.ID + "/like"})

	w := s.do(t, request{method: http.MethodGet, path: "/api/admin/stats"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "/auth", decode[map[string]any](t, w)["redirect"])

	user := s.signIn(t, "user@example.com", false)
	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/stats", token: user})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "/", decode[map[string]any](t, w)["redirect"])

	admin := s.signIn(t, "admin@example.com", true)
	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/stats", token: admin})
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[service.Stats](t, w)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 1, stats.TotalLikes)

	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/confessions?q=DELETE", token: admin})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]map[string]any](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0]["id"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/confessions?sort=sideways", token: admin})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, request{method: http.MethodDelete, path: "/api/admin/confessions/" + c.ID, token: admin})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, request{method: http.MethodDelete, path: "/api/admin/confessions/" + c.ID, token: admin})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/confessions"})
	assert.Len(t, decode[[]map[string]any](t, w), 1)
}

func TestNavAndAdminPage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>confessly</html>"), 0o644))
	s := newTestServer(t, dir)

	labels := func(token string) []string {
		w := s.do(t, request{method: http.MethodGet, path: "/api/nav", token: token})
		require.Equal(t, http.StatusOK, w.Code)
		var out []string
		for _, item := range decode[struct {
			Items []NavItem `json:"items"`
		}](t, w).Items {
			out = append(out, item.Label)
		}
		return out
	}

	assert.Contains(t, labels(""), "Admin Login")
	assert.NotContains(t, labels(""), "Admin")

	user := s.signIn(t, "user@example.com", false)
	assert.Contains(t, labels(user), "Logout")
	assert.NotContains(t, labels(user), "Admin")

	admin := s.signIn(t, "admin@example.com", true)
	assert.Contains(t, labels(admin), "Admin")

	w := s.do(t, request{method: http.MethodGet, path: "/admin"})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth", w.Header().Get("Location"))

	w = s.do(t, request{method: http.MethodGet, path: "/admin", token: user})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = s.do(t, request{method: http.MethodGet, path: "/admin", token: admin})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "confessly")

	// Client-side routes fall back to the index, unknown API paths do not.
	w = s.do(t, request{method: http.MethodGet, path: "/trending"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "confessly")

	w = s.do(t, request{method: http.MethodGet, path: "/api/nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOperationalRoutes(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	w := s.do(t, request{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	s.do(t, request{method: http.MethodPost, path: "/api/confessions", body: `{"content":"counted"}`})
	w = s.do(t, request{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "confessly_confessions_submitted_total 1")
}

func TestIPRateLimiterCleanup(t *testing.T) {
	rl := NewIPRateLimiter(rate.Limit(1), 1)

	a := rl.GetLimiter("10.0.0.1")
	assert.Same(t, a, rl.GetLimiter("10.0.0.1"))
	rl.GetLimiter("10.0.0.2")
	assert.Equal(t, 2, rl.Len())

	assert.Equal(t, 0, rl.Cleanup(time.Hour))
	assert.Equal(t, 2, rl.Len())

	rl.mu.Lock()
	rl.visitors["10.0.0.1"].lastSeen = time.Now().Add(-2 * time.Hour)
	rl.mu.Unlock()

	assert.Equal(t, 1, rl.Cleanup(time.Hour))
	assert.Equal(t, 1, rl.Len())
}
