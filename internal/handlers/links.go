package handlers

import (
	"html/template"
	"strings"
)

// QBELinks builds URLs of the external query builder form and results page.
type QBELinks struct {
	FormBase    string
	ResultsBase string
}

// FormURL is the query builder form, opened on the pending query hash when
// one is given.
func (l QBELinks) FormURL(hash string) string {
	return join(l.FormBase, hash)
}

// ResultsURL is the results page of the pending query hash.
func (l QBELinks) ResultsURL(hash string) string {
	return join(l.ResultsBase, hash)
}

func join(base, hash string) string {
	base = strings.TrimRight(base, "/") + "/"
	if hash == "" {
		return base
	}
	return base + hash + "/"
}

func text(s string) template.HTML {
	return template.HTML(template.HTMLEscapeString(s))
}
