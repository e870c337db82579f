package site

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<nav><a href="/">Home</a>{{range .Sections}} <a href="/{{.}}">{{.}}</a>{{end}}</nav>
<main>{{template "content" .}}</main>
</body>
</html>{{end}}`

var views = map[string]string{
	"index":   `{{define "content"}}<h1>{{.Title}}</h1><ul>{{range .Pages}}<li><a href="{{.Path}}">{{.Title}}</a></li>{{end}}</ul>{{end}}`,
	"section": `{{define "content"}}<h1>{{.Title}}</h1><ul>{{range .Pages}}<li><a href="{{.Path}}">{{.Title}}</a> <time>{{.UpdatedAt.Format "2006-01-02"}}</time></li>{{end}}</ul>{{end}}`,
	"page":    `{{define "content"}}<article><h1>{{.Title}}</h1>{{.Content}}</article>{{end}}`,
	"error":   `{{define "content"}}<h1>{{.Title}}</h1>{{end}}`,
}

// View is the data every template gets.
type View struct {
	Title    string
	Sections []string
	Pages    []Page
	Content  template.HTML
}

// Renderer converts page markdown to sanitized HTML and renders views.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	views  map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
		views:  make(map[string]*template.Template, len(views)),
	}
	base, err := template.New("layout").Parse(layout)
	if err != nil {
		return nil, err
	}
	for name, src := range views {
		tmpl, err := template.Must(base.Clone()).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse view %s: %w", name, err)
		}
		r.views[name] = tmpl
	}
	return r, nil
}

// Markdown converts markdown to HTML and strips anything unsafe from the result.
func (r *Renderer) Markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
}

// Render writes the named view. The output is buffered, so a failing
// template does not leave a partial page behind.
func (r *Renderer) Render(w io.Writer, name string, view View) error {
	tmpl, ok := r.views[name]
	if !ok {
		return fmt.Errorf("unknown view %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", view); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
