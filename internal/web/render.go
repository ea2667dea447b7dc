package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/moodlesync/moodlesync/internal/errors"
	"github.com/moodlesync/moodlesync/internal/ops"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "courses", "runs"
}

// CoursesPageData is the template data for the course list page.
type CoursesPageData struct {
	PageData
	Courses    []ops.TrackedCourse
	Configured bool
	Domain     string
	LastRun    *ops.RunSummary
}

// CoursePageData is the template data for the per-course file table.
type CoursePageData struct {
	PageData
	Course ops.TrackedCourse
	Files  []ops.TrackedFile
}

// RunsPageData is the template data for the run history page.
type RunsPageData struct {
	PageData
	Runs []ops.RunSummary
}

// FilePageData is the template data for the description preview page.
type FilePageData struct {
	PageData
	CourseID     int64
	CourseName   string
	Path         string
	RenderedHTML template.HTML
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
}

// NewRenderer creates a Renderer by parsing the inline page templates.
func NewRenderer(version string) *Renderer {
	funcMap := template.FuncMap{
		"formatTime": formatTime,
		"formatSize": formatSize,
	}

	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).Parse(layoutTemplate))

	pages := map[string]string{
		"courses": coursesTemplate,
		"course":  courseTemplate,
		"runs":    runsTemplate,
		"file":    fileTemplate,
		"error":   errorTemplate,
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, text := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.Parse(text))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, name string, data any) {
	r.renderPageStatus(w, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		log.Printf("template %q not found", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Printf("template execution error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	var sErr *errors.SyncError
	if !stderrors.As(err, &sErr) {
		sErr = errors.NewInternal(err)
	}

	status := sErr.Status
	message := sErr.Message

	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    string(sErr.Code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	r.renderPageStatus(w, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", status),
			Version: r.version,
		},
		StatusCode: status,
		Message:    message,
	})
}

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
// Zero stays empty so unfinished runs don't render the epoch.
func formatTime(unix int64) string {
	if unix == 0 {
		return ""
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}

// formatSize formats a byte count with a binary unit suffix.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Inline page templates. The UI is a handful of read-only tables, so the
// templates live next to the code that fills them.

const layoutTemplate = `{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} · moodlesync</title>
<link rel="stylesheet" href="/static/style.css">
</head>
<body>
<nav>
<a href="/"{{if eq .Nav "courses"}} class="active"{{end}}>Courses</a>
<a href="/runs"{{if eq .Nav "runs"}} class="active"{{end}}>Runs</a>
<span class="version">moodlesync {{.Version}}</span>
</nav>
<main>
{{template "content" .}}
</main>
</body>
</html>{{end}}`

const coursesTemplate = `{{define "content"}}
<h1>Courses</h1>
{{if not .Configured}}<p class="banner warn">Not configured yet. Run <code>moodlesync init</code> first.</p>{{end}}
{{if .LastRun}}<p class="banner">Last run {{formatTime .LastRun.FinishedAt}} ({{.LastRun.Status}}):
{{.LastRun.New}} new, {{.LastRun.Modified}} modified, {{.LastRun.Moved}} moved, {{.LastRun.Deleted}} deleted{{if .LastRun.Failed}}, {{.LastRun.Failed}} failed{{end}}.</p>{{end}}
{{if .Courses}}
<table>
<thead><tr><th>Course</th><th class="num">Files</th><th class="num">Size</th></tr></thead>
<tbody>
{{range .Courses}}
<tr>
<td><a href="/courses/{{.ID}}">{{.FullName}}</a></td>
<td class="num">{{.FileCount}}</td>
<td class="num">{{formatSize .TotalSize}}</td>
</tr>
{{end}}
</tbody>
</table>
{{else}}
<p class="empty">Nothing mirrored yet{{if .Domain}} from {{.Domain}}{{end}}. Run <code>moodlesync sync</code>.</p>
{{end}}
{{end}}`

const courseTemplate = `{{define "content"}}
<h1>{{.Course.FullName}}</h1>
<p class="meta">{{.Course.FileCount}} files, {{formatSize .Course.TotalSize}}</p>
<table>
<thead><tr><th>Path</th><th>Kind</th><th class="num">Size</th><th>Modified</th></tr></thead>
<tbody>
{{range .Files}}
<tr>
<td>{{if eq .Kind "description"}}<a href="/courses/{{$.Course.ID}}/file?key={{.Key}}">{{.Path}}</a>{{else}}{{.Path}}{{end}}</td>
<td><span class="badge badge-{{.Kind}}">{{.Kind}}</span></td>
<td class="num">{{formatSize .Size}}</td>
<td>{{formatTime .ModifiedAt}}</td>
</tr>
{{end}}
</tbody>
</table>
{{end}}`

const runsTemplate = `{{define "content"}}
<h1>Runs</h1>
{{if .Runs}}
<table>
<thead><tr><th>Finished</th><th>Status</th><th class="num">New</th><th class="num">Modified</th><th class="num">Moved</th><th class="num">Deleted</th><th class="num">Failed</th></tr></thead>
<tbody>
{{range .Runs}}
<tr>
<td>{{formatTime .FinishedAt}}</td>
<td><span class="badge badge-{{.Status}}">{{.Status}}</span></td>
<td class="num">{{.New}}</td>
<td class="num">{{.Modified}}</td>
<td class="num">{{.Moved}}</td>
<td class="num">{{.Deleted}}</td>
<td class="num">{{.Failed}}</td>
</tr>
{{end}}
</tbody>
</table>
{{else}}
<p class="empty">No runs recorded yet.</p>
{{end}}
{{end}}`

const fileTemplate = `{{define "content"}}
<p class="meta"><a href="/courses/{{.CourseID}}">&larr; {{.CourseName}}</a></p>
<h1>{{.Path}}</h1>
<article class="description">
{{.RenderedHTML}}
</article>
{{end}}`

const errorTemplate = `{{define "content"}}
<h1>Error {{.StatusCode}}</h1>
<p>{{.Message}}</p>
<p><a href="/">Back to courses</a></p>
{{end}}`
