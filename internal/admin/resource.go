package admin

import (
	"html/template"
	"net/http"
)

// Permission is what a user needs, beyond signing in, to reach a view.
type Permission int

const (
	// PermStaff admits staff users and superusers.
	PermStaff Permission = iota
	// PermSuperuser admits superusers only.
	PermSuperuser
)

// Meta names a resource and places it under /admin/{app}/{model}/.
type Meta struct {
	App           string
	Model         string
	Verbose       string
	VerbosePlural string
	Permission    Permission
}

// Row is one object on a change list.
type Row struct {
	ID     int64
	Object interface{}
}

// Column is a change list column. Render receives the request so links can
// be built for the current user.
type Column struct {
	Name   string
	Header string
	Render func(r *http.Request, row Row) template.HTML
}

// Route is an extra endpoint on a resource, mounted relative to the
// resource prefix, e.g. "{id:[0-9]+}/run/".
type Route struct {
	Path       string
	Name       string
	Methods    []string
	Handler    http.HandlerFunc
	Permission Permission
}

// Resource is a model managed through the admin. The site serves the change
// list and delete confirmation; add and change views are the resource's own.
type Resource interface {
	Meta() Meta
	Columns() []Column
	Routes() []Route

	Rows(r *http.Request) ([]Row, error)
	Object(r *http.Request, id int64) (Row, error)
	Delete(r *http.Request, id int64) error

	AddView(w http.ResponseWriter, r *http.Request)
	ChangeView(w http.ResponseWriter, r *http.Request, id int64)
}
