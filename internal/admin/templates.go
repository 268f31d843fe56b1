package admin

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"

	"qbeAdmin/internal/models"
	"qbeAdmin/internal/utils"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateCache holds parsed page templates, each joined with base.html
type TemplateCache struct {
	templates map[string]*template.Template
	mutex     sync.RWMutex
}

// NewTemplateCache creates a new template cache
func NewTemplateCache() *TemplateCache {
	return &TemplateCache{
		templates: make(map[string]*template.Template),
	}
}

// GetTemplate returns a cached template or parses it if not cached
func (tc *TemplateCache) GetTemplate(name string) (*template.Template, error) {
	tc.mutex.RLock()
	tmpl, exists := tc.templates[name]
	tc.mutex.RUnlock()

	if exists {
		return tmpl, nil
	}

	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tmpl, exists := tc.templates[name]; exists {
		return tmpl, nil
	}

	tmpl, err := template.New("").Funcs(CreateTemplateFuncMap()).
		ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}

	tc.templates[name] = tmpl
	return tmpl, nil
}

// RenderTemplate renders a page inside base.html
func (tc *TemplateCache) RenderTemplate(w http.ResponseWriter, status int, name string, data interface{}) error {
	tmpl, err := tc.GetTemplate(name)
	if err != nil {
		return err
	}

	var buf strings.Builder
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write([]byte(buf.String()))
	return err
}

// NavButton creates a navigation button HTML
func NavButton(text, url, buttonType string, condition bool) template.HTML {
	if !condition {
		return ""
	}

	class := "btn"
	if buttonType != "" {
		class += " btn-" + buttonType
	}

	return template.HTML(fmt.Sprintf(
		`<a href="%s" class="%s">%s</a>`,
		template.HTMLEscapeString(url), class, template.HTMLEscapeString(text),
	))
}

// AlertBox creates an alert message HTML
func AlertBox(alertType, message string) template.HTML {
	if message == "" {
		return ""
	}
	return template.HTML(fmt.Sprintf(
		`<div class="alert alert-%s">%s</div>`,
		alertType, template.HTMLEscapeString(message),
	))
}

// ConditionalClass adds a CSS class conditionally
func ConditionalClass(baseClass, conditionalClass string, condition bool) string {
	if condition {
		return baseClass + " " + conditionalClass
	}
	return baseClass
}

// Truncate truncates a string to at most length runes
func Truncate(text string, length int) string {
	runes := []rune(text)
	if len(runes) <= length {
		return text
	}
	return string(runes[:length]) + "..."
}

// CreateTemplateFuncMap creates a function map for templates
func CreateTemplateFuncMap() template.FuncMap {
	return template.FuncMap{
		"navButton":        NavButton,
		"alertBox":         AlertBox,
		"conditionalClass": ConditionalClass,
		"truncate":         Truncate,
		"join":             strings.Join,
	}
}

// TemplateData is the common data every admin page receives
type TemplateData struct {
	User      *models.User
	CSRFToken string
	Title     string
	IndexURL  string
	Error     string
	PageData  interface{}
}

func (s *Site) templateData(r *http.Request, title string, pageData interface{}) *TemplateData {
	data := &TemplateData{
		Title:    title,
		IndexURL: s.prefix + "/",
		PageData: pageData,
	}
	data.User, _ = utils.GetUser(r)
	data.CSRFToken, _ = utils.GetCSRFToken(r)
	return data
}

// Option is one choice of a select field.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Field types understood by change_form.html.
const (
	FieldText     = "text"
	FieldTextarea = "textarea"
	FieldSelect   = "select"
	FieldCheckbox = "checkbox"
	FieldReadonly = "readonly"
	FieldHidden   = "hidden"
)

// Field is one input of an add or change form.
type Field struct {
	Name     string
	Label    string
	Type     string
	Value    string
	Checked  bool
	Required bool
	Help     string
	Options  []Option
}

// Form is rendered by change_form.html.
type Form struct {
	Action    string
	Fields    []Field
	Errors    []string
	Links     []Link
	DeleteURL string
}

// Link is an extra action shown above a form.
type Link struct {
	Text string
	URL  string
}
