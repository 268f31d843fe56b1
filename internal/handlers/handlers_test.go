package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"qbeAdmin/internal/admin"
	"qbeAdmin/internal/metrics"
	"qbeAdmin/internal/models"
	"qbeAdmin/internal/qbe"
	"qbeAdmin/internal/services"
	"qbeAdmin/internal/store"
	"qbeAdmin/internal/utils"
)

var testLinks = QBELinks{FormBase: "/qbe/", ResultsBase: "/qbe/results"}

type env struct {
	t        *testing.T
	router   *mux.Router
	sessions sessions.Store
	users    *store.UserRepo
	groups   *store.GroupRepo
	queries  *store.SavedQueryRepo
	perms    *store.PermissionRepo
	service  *services.SavedQueryService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := store.OpenTestDB(t)
	m := metrics.New(prometheus.NewRegistry())

	e := &env{
		t:        t,
		router:   mux.NewRouter(),
		sessions: qbe.NewSessionStore(t.TempDir(), []byte("0123456789abcdef0123456789abcdef"), nil),
		users:    store.NewUserRepo(db),
		groups:   store.NewGroupRepo(db),
		queries:  store.NewSavedQueryRepo(db),
		perms:    store.NewPermissionRepo(db),
	}
	e.service = services.NewSavedQueryService(e.queries, e.perms, m)

	site := admin.NewSite("/admin", "/login")
	require.NoError(t, site.Register(NewSavedQueryAdmin(site, e.service, e.sessions, testLinks)))
	require.NoError(t, site.Register(NewPermissionAdmin(site, e.perms, e.users, e.groups, e.queries)))
	site.Mount(e.router)
	NewPendingAPI(site, e.sessions, testLinks, m).Register(e.router)
	return e
}

func (e *env) user(email string, superuser bool) *models.User {
	e.t.Helper()
	u := &models.User{Email: email, IsStaff: true, IsSuperuser: superuser}
	require.NoError(e.t, e.users.Create(context.Background(), u))
	return u
}

// client is one browser: it keeps its session cookies between requests.
type client struct {
	env     *env
	user    *models.User
	cookies map[string]*http.Cookie
}

func (e *env) client(u *models.User) *client {
	return &client{env: e, user: u, cookies: make(map[string]*http.Cookie)}
}

func (c *client) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	if c.user != nil {
		req = req.WithContext(utils.WithUser(req.Context(), c.user))
	}

	rec := httptest.NewRecorder()
	c.env.router.ServeHTTP(rec, req)
	for _, cookie := range rec.Result().Cookies() {
		c.cookies[cookie.Name] = cookie
	}
	return rec
}

func (c *client) get(target string) *httptest.ResponseRecorder {
	return c.do(http.MethodGet, target, nil, "")
}

func (c *client) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	return c.do(http.MethodPost, target, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (c *client) postJSON(target, body string) *httptest.ResponseRecorder {
	return c.do(http.MethodPost, target, strings.NewReader(body), "application/json")
}

const ordersJSON = `{"rows":[{"model":"shop.Order","field":"total","show":true,"sort":"desc"}]}`

func ordersDefinition() models.QueryDefinition {
	return models.QueryDefinition{Rows: []models.QueryRow{
		{Model: "shop.Order", Field: "total", Show: true, Sort: models.SortDescending},
	}}
}

func (c *client) storePending(t *testing.T, body string) PendingResponse {
	t.Helper()
	rec := c.postJSON("/api/qbe/pending", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp PendingResponse
	require.NoError(t, jsonDecode(rec.Body, &resp))
	return resp
}

func queryPath(id int64, suffix string) string {
	return "/admin/qbe/savedquery/" + strconv.FormatInt(id, 10) + "/" + suffix
}
