// Package render turns live posts into the HTML fragments delivered to viewers.
package render

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"live-service/internal/livepost"
)

// Renderer converts a post into its transportable representation.
type Renderer interface {
	Render(p *livepost.Post) (string, error)
}

const postTemplate = `<article class="live-post" data-post-id="{{.ID}}" data-created-at="{{stamp .CreatedAt}}"` +
	`{{with .ModifiedAt}} data-modified-at="{{stamp .}}"{{end}}>` +
	`{{range $b := .Content}}` +
	`{{if eq .Kind "text"}}<p class="live-text" data-block-id="{{.ID}}">{{.Text}}</p>` +
	`{{else if eq .Kind "embed"}}<div class="live-embed" data-block-id="{{.ID}}" data-url="{{.URL}}"><a href="{{.URL}}">{{.URL}}</a></div>` +
	`{{else if eq .Kind "image"}}{{with .Image}}<figure class="live-image" data-block-id="{{$b.ID}}">` +
	`<img src="{{.URL}}" alt="{{.Title}}" width="{{.Width}}" height="{{.Height}}"></figure>{{end}}` +
	`{{end}}{{end}}</article>`

// HTML renders posts with html/template so user text is always escaped.
type HTML struct {
	tmpl *template.Template
}

func NewHTML() *HTML {
	funcs := template.FuncMap{
		"stamp": func(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) },
	}
	return &HTML{tmpl: template.Must(template.New("post").Funcs(funcs).Parse(postTemplate))}
}

func (h *HTML) Render(p *livepost.Post) (string, error) {
	var b strings.Builder
	if err := h.tmpl.Execute(&b, p); err != nil {
		return "", fmt.Errorf("render post %s: %w", p.ID, err)
	}
	return b.String(), nil
}
