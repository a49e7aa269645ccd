package httpapi

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/hlog"
)

var pages = template.Must(template.New("layout").Parse(`{{define "layout"}}<!DOCTYPE html>
<html lang="fr">
<head><meta charset="utf-8"><title>{{block "title" .}}Auvio podcasts{{end}}</title></head>
<body>{{template "body" .}}</body>
</html>{{end}}

{{define "index"}}{{template "layout" .}}{{end}}
{{define "program"}}{{template "layout" .}}{{end}}`))

var indexPage = template.Must(template.Must(pages.Clone()).Parse(`{{define "body"}}
<h1>Auvio podcasts</h1>
<ul>
{{range .}}<li><a href="{{.Path}}">{{if .Title}}{{.Title}}{{else}}{{.Path}}{{end}}</a> (<a href="{{.Path}}/podcast.xml">RSS</a>)</li>
{{end}}</ul>
{{end}}`))

var programPage = template.Must(template.Must(pages.Clone()).Parse(`{{define "title"}}{{.Title}}{{end}}
{{define "body"}}
<h1>{{.Title}}</h1>
{{if .ImageURL}}<img src="{{.ImageURL}}" alt="" width="320">{{end}}
<p>{{.Description}}</p>
<p><a href="{{.Path}}/podcast.xml">Podcast</a></p>
<ol>
{{range .Episodes}}<li>{{.Subtitle}}{{if not .PublishedFrom.IsZero}} ({{.PublishedFrom.Format "02/01/2006"}}){{end}}</li>
{{end}}</ol>
{{end}}`))

func (h *ProgramsHandler) index(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, indexPage, "index", h.catalog)
}

func (h *ProgramsHandler) page(w http.ResponseWriter, r *http.Request) {
	program, ok := h.resolve(w, r)
	if !ok {
		return
	}
	renderPage(w, r, programPage, "program", program)
}

func renderPage(w http.ResponseWriter, r *http.Request, t *template.Template, name string, data any) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("template", name).Msg("render failed")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
