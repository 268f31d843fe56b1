package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbeAdmin/internal/handlers"
	"qbeAdmin/internal/models"
	"qbeAdmin/internal/store"
	"qbeAdmin/internal/utils"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		GoogleClientID:     "client",
		GoogleClientSecret: "secret",
		SessionSecret:      []byte(testSecret),
		RedirectURL:        "http://localhost/auth/callback",
		SessionMaxAge:      3600,
		SessionStore:       "cookie",
		SessionDir:         t.TempDir(),
		Environment:        "test",
		QBEFormURL:         "/qbe/",
		QBEResultsURL:      "/qbe/results/",
		RateLimitRPS:       100,
		RateLimitBurst:     100,
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("SESSION_MAX_AGE", "600")
	t.Setenv("SESSION_STORE", "filesystem")
	t.Setenv("QBE_RESULTS_URL", "https://qbe.example.com/results/")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	config, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 600, config.SessionMaxAge)
	assert.Equal(t, "filesystem", config.SessionStore)
	assert.Equal(t, "https://qbe.example.com/results/", config.QBEResultsURL)
	assert.Equal(t, "/qbe/", config.QBEFormURL)
	assert.Equal(t, 2.5, config.RateLimitRPS)
	assert.Equal(t, 20, config.RateLimitBurst)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := map[string]string{
		"SESSION_MAX_AGE":  "soon",
		"SESSION_STORE":    "redis",
		"RATE_LIMIT_RPS":   "-1",
		"RATE_LIMIT_BURST": "many",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	config := testConfig(t)
	assert.NoError(t, config.Validate())

	config.SessionSecret = []byte("short")
	assert.Error(t, config.Validate())

	config = testConfig(t)
	config.GoogleClientID = ""
	assert.Error(t, config.Validate())
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))

	now = now.Add(time.Hour)
	rl.Cleanup()
	assert.Empty(t, rl.clients)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiters := map[string]*RateLimiter{"general": NewRateLimiter(0.001, 1)}
	handler := RateLimitMiddleware(limiters)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do("/admin/"))
	assert.Equal(t, http.StatusTooManyRequests, do("/admin/"))
	assert.Equal(t, http.StatusNoContent, do("/metrics"))
	assert.Equal(t, "auth", getLimiterCategory("/auth/callback"))
	assert.Equal(t, "api", getLimiterCategory("/api/qbe/pending"))
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, id)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(requestIDHeader))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCSRFMiddleware(t *testing.T) {
	handler := CSRFMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	user := &models.User{ID: 1, Email: "a@example.com", IsStaff: true}

	do := func(form url.Values, header string, signedIn bool) int {
		req := httptest.NewRequest(http.MethodPost, "/admin/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if header != "" {
			req.Header.Set("X-CSRF-Token", header)
		}
		if signedIn {
			ctx := utils.WithUser(req.Context(), user)
			req = req.WithContext(utils.WithCSRFToken(ctx, "token"))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do(url.Values{"csrf_token": {"token"}}, "", true))
	assert.Equal(t, http.StatusNoContent, do(nil, "token", true))
	assert.Equal(t, http.StatusForbidden, do(url.Values{"csrf_token": {"nope"}}, "", true))
	assert.Equal(t, http.StatusForbidden, do(nil, "", true))
	assert.Equal(t, http.StatusNoContent, do(nil, "", false))
}

func TestCLICommands(t *testing.T) {
	ctx := context.Background()
	db := store.OpenTestDB(t)
	var out bytes.Buffer

	require.NoError(t, runUserCreate(ctx, db, &out, userOptions{email: "owner@example.com", staff: true}))
	require.NoError(t, runUserCreate(ctx, db, &out, userOptions{email: "analyst@example.com", staff: true}))
	require.NoError(t, runUserCreate(ctx, db, &out, userOptions{email: "owner@example.com", staff: true, superuser: true}))
	assert.Error(t, runUserCreate(ctx, db, &out, userOptions{email: "not-an-email"}))

	owner, err := store.NewUserRepo(db).GetByEmail(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.True(t, owner.IsSuperuser)

	require.NoError(t, runGroupCreate(ctx, db, &out, "analysts", "read only"))
	require.NoError(t, runGroupAddMember(ctx, db, &out, "analysts", "analyst@example.com"))
	assert.Error(t, runGroupAddMember(ctx, db, &out, "analysts", "nobody@example.com"))

	q := &models.SavedQuery{
		Name:      "orders",
		OwnerID:   owner.ID,
		QueryData: models.QueryDefinition{Rows: []models.QueryRow{{Model: "shop.Order", Field: "id", Show: true}}},
		QueryHash: "0123456789abcdef0123456789abcdef",
	}
	require.NoError(t, store.NewSavedQueryRepo(db).Create(ctx, q))

	require.NoError(t, runGrant(ctx, db, &out, grantOptions{queryID: q.ID, group: "analysts", canRun: true}))
	assert.Error(t, runGrant(ctx, db, &out, grantOptions{queryID: q.ID, canRun: true}))
	assert.Error(t, runGrant(ctx, db, &out, grantOptions{queryID: 999, email: "analyst@example.com", canRun: true}))

	analyst, err := store.NewUserRepo(db).GetByEmail(ctx, "analyst@example.com")
	require.NoError(t, err)
	ok, err := store.NewPermissionRepo(db).HasRunGrant(ctx, q.ID, analyst.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Contains(t, out.String(), "updated user")
	assert.Contains(t, out.String(), "created permission")
}

// signIn stores a signed-in auth session for email and returns its cookie.
func signIn(t *testing.T, app *App, email string) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	session, err := app.SessionStore.New(req, handlers.AuthSessionName)
	require.NoError(t, err)

	data, err := json.Marshal(models.SessionData{
		UserEmail:     email,
		CSRFToken:     "csrf-token",
		Authenticated: true,
		CreatedAt:     time.Now(),
	})
	require.NoError(t, err)
	session.Values["session_data"] = string(data)

	rec := httptest.NewRecorder()
	require.NoError(t, session.Save(req, rec))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestRouter(t *testing.T) {
	ctx := context.Background()
	db := store.OpenTestDB(t)
	app, err := NewApp(testConfig(t), db)
	require.NoError(t, err)
	router := app.Router()

	staff := &models.User{Email: "staff@example.com", IsStaff: true}
	require.NoError(t, store.NewUserRepo(db).Create(ctx, staff))
	cookie := signIn(t, app, staff.Email)

	do := func(method, target, body string, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/healthz", "", nil).Code)

	rec := do(http.MethodGet, "/admin/", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/login?next="))

	rec = do(http.MethodGet, "/admin/", "", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "saved queries")
	assert.NotContains(t, rec.Body.String(), "saved query permissions")
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	body := `{"rows":[{"model":"shop.Order","field":"id","show":true}]}`
	rec = do(http.MethodPost, "/api/qbe/pending", body, map[string]string{"Content-Type": "application/json"}, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(http.MethodPost, "/api/qbe/pending", body, map[string]string{
		"Content-Type": "application/json",
		"X-CSRF-Token": "csrf-token",
	}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var pending handlers.PendingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pending))
	assert.Equal(t, "/qbe/results/"+pending.Hash+"/", pending.ResultsURL)

	rec = do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "qbe_admin_pending_queries_stored_total 1")
	assert.Contains(t, rec.Body.String(), `qbe_admin_cache_entries{cache="users"} 1`)
	assert.Contains(t, rec.Body.String(), "qbe_admin_http_request_duration_seconds")
}

func TestFilesystemSessionStore(t *testing.T) {
	config := testConfig(t)
	config.SessionStore = "filesystem"
	config.SessionDir = t.TempDir()

	app, err := NewApp(config, store.OpenTestDB(t))
	require.NoError(t, err)

	staff := &models.User{Email: "staff@example.com", IsStaff: true}
	require.NoError(t, store.NewUserRepo(app.DB).Create(context.Background(), staff))
	cookie := signIn(t, app, staff.Email)

	req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPendingSessionIsServerSideWithCookieStore(t *testing.T) {
	config := testConfig(t)
	require.Equal(t, "cookie", config.SessionStore)

	app, err := NewApp(config, store.OpenTestDB(t))
	require.NoError(t, err)

	assert.IsType(t, &sessions.CookieStore{}, app.SessionStore)
	assert.IsType(t, &sessions.FilesystemStore{}, app.PendingStore)
}
