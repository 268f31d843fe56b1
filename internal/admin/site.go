// Package admin serves CRUD screens for registered resources. A Site is
// built once at startup, resources are registered on it and it is mounted
// on the application router.
package admin

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"qbeAdmin/internal/utils"
)

const idPattern = "{id:[0-9]+}"

// HTTPError carries the status a resource wants the site to answer with.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

// Site is the registry of admin resources.
type Site struct {
	prefix    string
	loginURL  string
	templates *TemplateCache
	resources []Resource
	keys      map[string]bool
	router    *mux.Router
}

// NewSite creates a site served under prefix, e.g. "/admin". Anonymous users
// are sent to loginURL.
func NewSite(prefix, loginURL string) *Site {
	return &Site{
		prefix:    prefix,
		loginURL:  loginURL,
		templates: NewTemplateCache(),
		keys:      make(map[string]bool),
	}
}

// Register adds a resource. Each app/model pair may be registered once.
func (s *Site) Register(res Resource) error {
	meta := res.Meta()
	key := meta.App + "." + meta.Model
	if s.keys[key] {
		return fmt.Errorf("admin: %s is already registered", key)
	}
	s.keys[key] = true
	s.resources = append(s.resources, res)
	return nil
}

// RouteName is the mux route name of a resource view, e.g.
// RouteName("qbe", "savedquery", "run") is "admin:qbe_savedquery_run".
func RouteName(app, model, view string) string {
	return fmt.Sprintf("admin:%s_%s_%s", app, model, view)
}

// Mount attaches the index and every registered resource to router.
func (s *Site) Mount(router *mux.Router) {
	s.router = router
	sub := router.PathPrefix(s.prefix).Subrouter()

	sub.Handle("/", s.AdminView(PermStaff, s.index)).Methods(http.MethodGet).Name("admin:index")

	for _, res := range s.resources {
		res := res
		meta := res.Meta()
		base := fmt.Sprintf("/%s/%s/", meta.App, meta.Model)

		sub.Handle(base, s.AdminView(meta.Permission, func(w http.ResponseWriter, r *http.Request) {
			s.changeList(w, r, res)
		})).Methods(http.MethodGet).Name(RouteName(meta.App, meta.Model, "changelist"))

		sub.Handle(base+"add/", s.AdminView(meta.Permission, res.AddView)).
			Methods(http.MethodGet, http.MethodPost).Name(RouteName(meta.App, meta.Model, "add"))

		sub.Handle(base+idPattern+"/", s.AdminView(meta.Permission, func(w http.ResponseWriter, r *http.Request) {
			res.ChangeView(w, r, pathID(r))
		})).Methods(http.MethodGet, http.MethodPost).Name(RouteName(meta.App, meta.Model, "change"))

		sub.Handle(base+idPattern+"/delete/", s.AdminView(meta.Permission, func(w http.ResponseWriter, r *http.Request) {
			s.deleteView(w, r, res)
		})).Methods(http.MethodGet, http.MethodPost).Name(RouteName(meta.App, meta.Model, "delete"))

		for _, route := range res.Routes() {
			methods := route.Methods
			if len(methods) == 0 {
				methods = []string{http.MethodGet}
			}
			sub.Handle(base+route.Path, s.AdminView(route.Permission, route.Handler)).
				Methods(methods...).Name(RouteName(meta.App, meta.Model, route.Name))
		}
	}
}

// URL reverses a named route. pairs are mux variable name/value pairs.
func (s *Site) URL(name string, pairs ...string) (string, error) {
	if s.router == nil {
		return "", errors.New("admin: site is not mounted")
	}
	route := s.router.Get(name)
	if route == nil {
		return "", fmt.Errorf("admin: no route named %q", name)
	}
	u, err := route.URL(pairs...)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// MustURL is URL for names that are registered at startup.
func (s *Site) MustURL(name string, pairs ...string) string {
	u, err := s.URL(name, pairs...)
	if err != nil {
		panic(err)
	}
	return u
}

// AdminView wraps h so that only signed-in users holding perm reach it.
// Anonymous users are redirected to the login page, everyone else without
// access gets 403.
func (s *Site) AdminView(perm Permission, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := utils.GetUser(r)
		if !ok {
			target := s.loginURL + "?next=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusFound)
			return
		}

		if !user.CanAccessAdmin() || (perm == PermSuperuser && !user.IsSuperuser) {
			zerolog.Ctx(r.Context()).Warn().
				Str("user", user.Email).
				Str("path", r.URL.Path).
				Msg("Admin access denied")
			s.Error(w, r, NewHTTPError(http.StatusForbidden, "You do not have permission to view this page."))
			return
		}

		h(w, r)
	})
}

// Render writes the named page template.
func (s *Site) Render(w http.ResponseWriter, r *http.Request, status int, name, title string, page interface{}) {
	if err := s.templates.RenderTemplate(w, status, name, s.templateData(r, title, page)); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("template", name).Msg("Failed to render admin page")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// Error renders an error page. Errors other than *HTTPError become 500.
func (s *Site) Error(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "Something went wrong."

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Status
		message = httpErr.Message
	} else {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Admin request failed")
	}

	s.Render(w, r, status, "error", http.StatusText(status), message)
}

type indexEntry struct {
	Name   string
	App    string
	URL    string
	AddURL string
}

func (s *Site) index(w http.ResponseWriter, r *http.Request) {
	user, _ := utils.GetUser(r)

	entries := make([]indexEntry, 0, len(s.resources))
	for _, res := range s.resources {
		meta := res.Meta()
		if meta.Permission == PermSuperuser && !user.IsSuperuser {
			continue
		}
		entries = append(entries, indexEntry{
			Name:   meta.VerbosePlural,
			App:    meta.App,
			URL:    s.MustURL(RouteName(meta.App, meta.Model, "changelist")),
			AddURL: s.MustURL(RouteName(meta.App, meta.Model, "add")),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].App < entries[j].App })

	s.Render(w, r, http.StatusOK, "index", "Site administration", entries)
}

type changeListRow struct {
	ChangeURL string
	Cells     []template.HTML
}

type changeListPage struct {
	Meta    Meta
	Headers []string
	Rows    []changeListRow
	AddURL  string
}

func (s *Site) changeList(w http.ResponseWriter, r *http.Request, res Resource) {
	meta := res.Meta()
	rows, err := res.Rows(r)
	if err != nil {
		s.Error(w, r, err)
		return
	}

	columns := res.Columns()
	page := changeListPage{
		Meta:   meta,
		AddURL: s.MustURL(RouteName(meta.App, meta.Model, "add")),
	}
	for _, col := range columns {
		page.Headers = append(page.Headers, col.Header)
	}
	for _, row := range rows {
		cells := make([]template.HTML, 0, len(columns))
		for _, col := range columns {
			cells = append(cells, col.Render(r, row))
		}
		page.Rows = append(page.Rows, changeListRow{
			ChangeURL: s.MustURL(RouteName(meta.App, meta.Model, "change"), "id", strconv.FormatInt(row.ID, 10)),
			Cells:     cells,
		})
	}

	s.Render(w, r, http.StatusOK, "change_list", "Select "+meta.Verbose+" to change", page)
}

type deletePage struct {
	Meta    Meta
	Object  interface{}
	Action  string
	ListURL string
}

func (s *Site) deleteView(w http.ResponseWriter, r *http.Request, res Resource) {
	meta := res.Meta()
	id := pathID(r)
	listURL := s.MustURL(RouteName(meta.App, meta.Model, "changelist"))

	row, err := res.Object(r, id)
	if err != nil {
		s.Error(w, r, err)
		return
	}

	if r.Method == http.MethodPost {
		if err := res.Delete(r, id); err != nil {
			s.Error(w, r, err)
			return
		}
		zerolog.Ctx(r.Context()).Info().
			Str("resource", meta.App+"."+meta.Model).
			Int64("id", id).
			Msg("Admin object deleted")
		http.Redirect(w, r, listURL, http.StatusFound)
		return
	}

	s.Render(w, r, http.StatusOK, "delete_confirmation", "Are you sure?", deletePage{
		Meta:    meta,
		Object:  row.Object,
		Action:  r.URL.Path,
		ListURL: listURL,
	})
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}
