package handlers

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"

	"qbeAdmin/internal/admin"
	"qbeAdmin/internal/models"
	"qbeAdmin/internal/qbe"
	"qbeAdmin/internal/services"
	"qbeAdmin/internal/utils"
)

const (
	qbeApp          = "qbe"
	savedQueryModel = "savedquery"
	permissionModel = "savedquerypermission"
)

// SavedQueryAdmin is the admin resource of saved queries. Besides CRUD it
// serves the run endpoint and gates the add view on a pending query.
type SavedQueryAdmin struct {
	site     *admin.Site
	service  *services.SavedQueryService
	sessions sessions.Store
	links    QBELinks
}

func NewSavedQueryAdmin(site *admin.Site, service *services.SavedQueryService, store sessions.Store, links QBELinks) *SavedQueryAdmin {
	return &SavedQueryAdmin{site: site, service: service, sessions: store, links: links}
}

func (a *SavedQueryAdmin) Meta() admin.Meta {
	return admin.Meta{
		App:           qbeApp,
		Model:         savedQueryModel,
		Verbose:       "saved query",
		VerbosePlural: "saved queries",
		Permission:    admin.PermStaff,
	}
}

func (a *SavedQueryAdmin) Columns() []admin.Column {
	field := func(name, header string, value func(q *models.SavedQuery) string) admin.Column {
		return admin.Column{Name: name, Header: header, Render: func(_ *http.Request, row admin.Row) template.HTML {
			return text(value(row.Object.(*models.SavedQuery)))
		}}
	}

	return []admin.Column{
		field("name", "Name", func(q *models.SavedQuery) string { return q.Name }),
		field("owner", "Owner", func(q *models.SavedQuery) string { return q.OwnerEmail }),
		field("description", "Description", func(q *models.SavedQuery) string { return admin.Truncate(q.Description, 80) }),
		field("date_created", "Date created", func(q *models.SavedQuery) string { return q.DateCreated.Format("2006-01-02 15:04") }),
		field("query_hash", "Query hash", func(q *models.SavedQuery) string { return q.QueryHash }),
		{Name: "query", Header: "Query", Render: a.queryLinks},
	}
}

// queryLinks renders "Run | Edit" for a saved query.
func (a *SavedQueryAdmin) queryLinks(_ *http.Request, row admin.Row) template.HTML {
	q := row.Object.(*models.SavedQuery)
	return template.HTML(fmt.Sprintf(`<a href="%s">Run</a> | <a href="%s">Edit</a>`,
		template.HTMLEscapeString(a.runURL(q.ID)),
		template.HTMLEscapeString(a.links.FormURL(q.QueryHash)),
	))
}

func (a *SavedQueryAdmin) runURL(id int64) string {
	return a.site.MustURL(admin.RouteName(qbeApp, savedQueryModel, "run"), "id", strconv.FormatInt(id, 10))
}

func (a *SavedQueryAdmin) Routes() []admin.Route {
	return []admin.Route{{
		Path:       "{id:[0-9]+}/run/",
		Name:       "run",
		Methods:    []string{http.MethodGet, http.MethodPost},
		Handler:    a.Run,
		Permission: admin.PermStaff,
	}}
}

func (a *SavedQueryAdmin) Rows(r *http.Request) ([]admin.Row, error) {
	user, _ := utils.GetUser(r)
	queries, err := a.service.List(r.Context(), user)
	if err != nil {
		return nil, err
	}

	rows := make([]admin.Row, 0, len(queries))
	for i := range queries {
		rows = append(rows, admin.Row{ID: queries[i].ID, Object: &queries[i]})
	}
	return rows, nil
}

func (a *SavedQueryAdmin) Object(r *http.Request, id int64) (admin.Row, error) {
	user, _ := utils.GetUser(r)
	q, err := a.service.Get(r.Context(), user, id)
	if err != nil {
		return admin.Row{}, savedQueryError(err)
	}
	return admin.Row{ID: q.ID, Object: q}, nil
}

func (a *SavedQueryAdmin) Delete(r *http.Request, id int64) error {
	user, _ := utils.GetUser(r)
	return savedQueryError(a.service.Delete(r.Context(), user, id))
}

// Run puts the saved query into the session and sends the user to its
// results page.
func (a *SavedQueryAdmin) Run(w http.ResponseWriter, r *http.Request) {
	user, _ := utils.GetUser(r)
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	pending, err := qbe.LoadPending(a.sessions, r)
	if err != nil {
		a.site.Error(w, r, err)
		return
	}

	hash, err := a.service.Run(r.Context(), user, id, pending)
	if err != nil {
		a.site.Error(w, r, savedQueryError(err))
		return
	}

	if err := pending.Save(r, w); err != nil {
		a.site.Error(w, r, err)
		return
	}

	http.Redirect(w, r, a.links.ResultsURL(hash), http.StatusFound)
}

// AddView creates a saved query from the pending query named by ?hash=.
// Without one in the session the user is sent to the query builder first.
func (a *SavedQueryAdmin) AddView(w http.ResponseWriter, r *http.Request) {
	user, _ := utils.GetUser(r)
	hash := r.URL.Query().Get("hash")

	pending, err := qbe.LoadPending(a.sessions, r)
	if err != nil {
		a.site.Error(w, r, err)
		return
	}

	if !a.service.AllowAdd(pending, hash) {
		zerolog.Ctx(r.Context()).Info().
			Str("query_hash", hash).
			Msg("No pending query for add, redirecting to query builder")
		http.Redirect(w, r, a.links.FormURL(""), http.StatusFound)
		return
	}

	q := &models.SavedQuery{OwnerID: user.ID}
	if r.Method != http.MethodPost {
		a.renderForm(w, r, "Add saved query", q, hash, nil)
		return
	}

	if errs := bindSavedQuery(r, q); len(errs) > 0 {
		a.renderForm(w, r, "Add saved query", q, hash, errs)
		return
	}

	if err := a.service.Save(r.Context(), pending, hash, q); err != nil {
		a.site.Error(w, r, savedQueryError(err))
		return
	}

	http.Redirect(w, r, a.site.MustURL(admin.RouteName(qbeApp, savedQueryModel, "changelist")), http.StatusFound)
}

// ChangeView edits name and description. Saving reloads the query data from
// the session entry of the stored hash, so the query must have been run or
// edited in this session.
func (a *SavedQueryAdmin) ChangeView(w http.ResponseWriter, r *http.Request, id int64) {
	user, _ := utils.GetUser(r)

	q, err := a.service.Get(r.Context(), user, id)
	if err != nil {
		a.site.Error(w, r, savedQueryError(err))
		return
	}

	title := "Change saved query"
	if r.Method != http.MethodPost {
		a.renderForm(w, r, title, q, q.QueryHash, nil)
		return
	}

	if !user.IsSuperuser && q.OwnerID != user.ID {
		a.site.Error(w, r, savedQueryError(services.ErrForbidden))
		return
	}

	if errs := bindSavedQuery(r, q); len(errs) > 0 {
		a.renderForm(w, r, title, q, q.QueryHash, errs)
		return
	}

	pending, err := qbe.LoadPending(a.sessions, r)
	if err != nil {
		a.site.Error(w, r, err)
		return
	}

	err = a.service.Save(r.Context(), pending, r.URL.Query().Get("hash"), q)
	if errors.Is(err, services.ErrMissingSessionData) {
		a.renderForm(w, r, title, q, q.QueryHash, []string{
			"The query data is not in your session. Run the query or open it in the query builder, then save again.",
		})
		return
	}
	if err != nil {
		a.site.Error(w, r, savedQueryError(err))
		return
	}

	http.Redirect(w, r, a.site.MustURL(admin.RouteName(qbeApp, savedQueryModel, "changelist")), http.StatusFound)
}

func bindSavedQuery(r *http.Request, q *models.SavedQuery) []string {
	if err := r.ParseForm(); err != nil {
		return []string{"Invalid form submission"}
	}

	q.Name = utils.SanitizeInput(r.PostFormValue("name"), 255)
	q.Description = utils.SanitizeInput(r.PostFormValue("description"), 2000)

	v := utils.NewValidator()
	v.ValidateRequired(q.Name, "Name").
		ValidateLength(q.Name, "Name", 1, 255).
		ValidateSafeText(q.Description, "Description")
	return v.Errors()
}

func (a *SavedQueryAdmin) renderForm(w http.ResponseWriter, r *http.Request, title string, q *models.SavedQuery, hash string, errs []string) {
	form := admin.Form{
		Action: r.URL.RequestURI(),
		Errors: errs,
		Fields: []admin.Field{
			{Name: "name", Label: "Name", Type: admin.FieldText, Value: q.Name, Required: true},
			{Name: "description", Label: "Description", Type: admin.FieldTextarea, Value: q.Description},
			{Name: "query_hash", Label: "Query hash", Type: admin.FieldReadonly, Value: hash},
		},
	}

	if q.ID != 0 {
		form.Links = []admin.Link{
			{Text: "Run", URL: a.runURL(q.ID)},
			{Text: "Edit query", URL: a.links.FormURL(q.QueryHash)},
		}
		form.DeleteURL = a.site.MustURL(admin.RouteName(qbeApp, savedQueryModel, "delete"), "id", strconv.FormatInt(q.ID, 10))
	}

	status := http.StatusOK
	if len(errs) > 0 {
		status = http.StatusBadRequest
	}
	a.site.Render(w, r, status, "change_form", title, form)
}

func savedQueryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrNotFound):
		return admin.NewHTTPError(http.StatusNotFound, "Saved query not found.")
	case errors.Is(err, services.ErrForbidden):
		return admin.NewHTTPError(http.StatusForbidden, "Only the owner can change this saved query.")
	case errors.Is(err, services.ErrMissingSessionData):
		return admin.NewHTTPError(http.StatusBadRequest, "The query data is missing from your session.")
	case errors.Is(err, services.ErrInvalidQuery):
		return admin.NewHTTPError(http.StatusBadRequest, "The query data in your session is not a valid query.")
	case errors.Is(err, services.ErrHashMismatch):
		return admin.NewHTTPError(http.StatusBadRequest, "The query data in your session does not match its hash.")
	default:
		return err
	}
}
