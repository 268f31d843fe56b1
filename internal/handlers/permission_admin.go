package handlers

import (
	"context"
	"html/template"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"qbeAdmin/internal/admin"
	"qbeAdmin/internal/models"
	"qbeAdmin/internal/store"
	"qbeAdmin/internal/utils"
)

// PermissionStore persists run grants.
type PermissionStore interface {
	Create(ctx context.Context, p *models.SavedQueryPermission) error
	Update(ctx context.Context, p *models.SavedQueryPermission) error
	Get(ctx context.Context, id int64) (*models.SavedQueryPermission, error)
	List(ctx context.Context) ([]models.SavedQueryPermission, error)
	Delete(ctx context.Context, id int64) error
}

type UserLister interface {
	List(ctx context.Context) ([]models.User, error)
}

type GroupLister interface {
	List(ctx context.Context) ([]models.Group, error)
}

type QueryLister interface {
	List(ctx context.Context) ([]models.SavedQuery, error)
}

// PermissionAdmin is the admin resource of saved query grants. It is
// reserved to superusers.
type PermissionAdmin struct {
	site    *admin.Site
	perms   PermissionStore
	users   UserLister
	groups  GroupLister
	queries QueryLister
}

func NewPermissionAdmin(site *admin.Site, perms PermissionStore, users UserLister, groups GroupLister, queries QueryLister) *PermissionAdmin {
	return &PermissionAdmin{site: site, perms: perms, users: users, groups: groups, queries: queries}
}

func (a *PermissionAdmin) Meta() admin.Meta {
	return admin.Meta{
		App:           qbeApp,
		Model:         permissionModel,
		Verbose:       "saved query permission",
		VerbosePlural: "saved query permissions",
		Permission:    admin.PermSuperuser,
	}
}

func (a *PermissionAdmin) Columns() []admin.Column {
	field := func(name, header string, value func(p *models.SavedQueryPermission) string) admin.Column {
		return admin.Column{Name: name, Header: header, Render: func(_ *http.Request, row admin.Row) template.HTML {
			return text(value(row.Object.(*models.SavedQueryPermission)))
		}}
	}

	return []admin.Column{
		field("user", "User", func(p *models.SavedQueryPermission) string { return orDash(p.UserEmail) }),
		field("group", "Group", func(p *models.SavedQueryPermission) string { return orDash(p.GroupName) }),
		field("query", "Query", func(p *models.SavedQueryPermission) string { return p.QueryName }),
		field("can_run", "Can run", func(p *models.SavedQueryPermission) string { return yesNo(p.CanRun) }),
	}
}

func (a *PermissionAdmin) Routes() []admin.Route { return nil }

func (a *PermissionAdmin) Rows(r *http.Request) ([]admin.Row, error) {
	perms, err := a.perms.List(r.Context())
	if err != nil {
		return nil, err
	}
	rows := make([]admin.Row, 0, len(perms))
	for i := range perms {
		rows = append(rows, admin.Row{ID: perms[i].ID, Object: &perms[i]})
	}
	return rows, nil
}

func (a *PermissionAdmin) Object(r *http.Request, id int64) (admin.Row, error) {
	p, err := a.perms.Get(r.Context(), id)
	if err != nil {
		return admin.Row{}, permissionError(err)
	}
	return admin.Row{ID: p.ID, Object: p}, nil
}

func (a *PermissionAdmin) Delete(r *http.Request, id int64) error {
	return permissionError(a.perms.Delete(r.Context(), id))
}

func (a *PermissionAdmin) AddView(w http.ResponseWriter, r *http.Request) {
	a.edit(w, r, &models.SavedQueryPermission{CanRun: true}, "Add saved query permission")
}

func (a *PermissionAdmin) ChangeView(w http.ResponseWriter, r *http.Request, id int64) {
	p, err := a.perms.Get(r.Context(), id)
	if err != nil {
		a.site.Error(w, r, permissionError(err))
		return
	}
	a.edit(w, r, p, "Change saved query permission")
}

func (a *PermissionAdmin) edit(w http.ResponseWriter, r *http.Request, p *models.SavedQueryPermission, title string) {
	if r.Method != http.MethodPost {
		a.renderForm(w, r, title, p, nil)
		return
	}

	if errs := bindPermission(r, p); len(errs) > 0 {
		a.renderForm(w, r, title, p, errs)
		return
	}

	var err error
	if p.ID == 0 {
		err = a.perms.Create(r.Context(), p)
	} else {
		err = a.perms.Update(r.Context(), p)
	}
	if store.IsConstraint(err) {
		a.renderForm(w, r, title, p, []string{"The selected query, user or group no longer exists."})
		return
	}
	if err != nil {
		a.site.Error(w, r, permissionError(err))
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Int64("permission_id", p.ID).
		Int64("query_id", p.QueryID).
		Bool("can_run", p.CanRun).
		Msg("Saved query permission stored")

	http.Redirect(w, r, a.site.MustURL(admin.RouteName(qbeApp, permissionModel, "changelist")), http.StatusFound)
}

// bindPermission reads the form into p. A grant must name a query and at
// least one of a user or a group.
func bindPermission(r *http.Request, p *models.SavedQueryPermission) []string {
	if err := r.ParseForm(); err != nil {
		return []string{"Invalid form submission"}
	}

	v := utils.NewValidator()

	queryID, err := strconv.ParseInt(r.PostFormValue("query"), 10, 64)
	if err != nil || queryID <= 0 {
		v.AddError("Query is required")
	}
	p.QueryID = queryID

	p.UserID = optionalID(r.PostFormValue("user"), "User", v)
	p.GroupID = optionalID(r.PostFormValue("group"), "Group", v)
	p.CanRun = r.PostFormValue("can_run") == "on"

	if !v.HasErrors() && !p.HasSubject() {
		v.AddError("Choose a user or a group")
	}
	return v.Errors()
}

func optionalID(value, field string, v *utils.Validator) *int64 {
	if value == "" {
		return nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		v.AddError(field + " is invalid")
		return nil
	}
	return &id
}

func (a *PermissionAdmin) renderForm(w http.ResponseWriter, r *http.Request, title string, p *models.SavedQueryPermission, errs []string) {
	ctx := r.Context()

	queries, err := a.queries.List(ctx)
	if err != nil {
		a.site.Error(w, r, err)
		return
	}
	users, err := a.users.List(ctx)
	if err != nil {
		a.site.Error(w, r, err)
		return
	}
	groups, err := a.groups.List(ctx)
	if err != nil {
		a.site.Error(w, r, err)
		return
	}

	queryOptions := []admin.Option{{Value: "", Label: "---------"}}
	for _, q := range queries {
		queryOptions = append(queryOptions, selectOption(q.ID, q.Name, p.QueryID))
	}
	userOptions := []admin.Option{{Value: "", Label: "---------"}}
	for _, u := range users {
		userOptions = append(userOptions, selectOption(u.ID, u.Email, deref(p.UserID)))
	}
	groupOptions := []admin.Option{{Value: "", Label: "---------"}}
	for _, g := range groups {
		groupOptions = append(groupOptions, selectOption(g.ID, g.Name, deref(p.GroupID)))
	}

	form := admin.Form{
		Action: r.URL.RequestURI(),
		Errors: errs,
		Fields: []admin.Field{
			{Name: "query", Label: "Query", Type: admin.FieldSelect, Options: queryOptions, Required: true},
			{Name: "user", Label: "User", Type: admin.FieldSelect, Options: userOptions},
			{Name: "group", Label: "Group", Type: admin.FieldSelect, Options: groupOptions, Help: "Grant to a user, a group or both."},
			{Name: "can_run", Label: "Can run", Type: admin.FieldCheckbox, Checked: p.CanRun},
		},
	}
	if p.ID != 0 {
		form.DeleteURL = a.site.MustURL(admin.RouteName(qbeApp, permissionModel, "delete"), "id", strconv.FormatInt(p.ID, 10))
	}

	status := http.StatusOK
	if len(errs) > 0 {
		status = http.StatusBadRequest
	}
	a.site.Render(w, r, status, "change_form", title, form)
}

func selectOption(id int64, label string, selected int64) admin.Option {
	return admin.Option{Value: strconv.FormatInt(id, 10), Label: label, Selected: id == selected}
}

func deref(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func permissionError(err error) error {
	if store.IsNotFound(err) {
		return admin.NewHTTPError(http.StatusNotFound, "Saved query permission not found.")
	}
	return err
}
