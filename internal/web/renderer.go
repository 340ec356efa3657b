// Package web holds the HTML templates and static assets of the site and the
// echo renderer that executes them.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/moviebook/internal/catalog"
	"github.com/iliyamo/moviebook/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Static returns the embedded static assets rooted at the static directory.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Page is the data every template receives.  Data carries the page specific
// view model.
type Page struct {
	Title   string
	User    *model.User
	Message model.Message
	Data    any
}

// Renderer implements echo.Renderer over one template set per page, each
// sharing layout.html.
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"poster": catalog.PosterURL,
	"year": func(date string) string {
		if len(date) >= 4 {
			return date[:4]
		}
		return ""
	},
	"alertClass": func(kind string) string {
		if kind == model.KindError {
			return "danger"
		}
		return kind
	},
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	base, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse layout: %w", err)
	}
	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: map[string]*template.Template{}}
	for _, f := range files {
		name := path.Base(f)
		if name == "layout.html" {
			continue
		}
		t, err := template.Must(base.Clone()).ParseFS(templateFS, f)
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", name, err)
		}
		r.pages[strings.TrimSuffix(name, ".html")] = t
	}
	return r, nil
}

// Render executes the named page inside the layout.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("web: no template %q", name)
	}
	return t.ExecuteTemplate(w, "layout.html", data)
}
