package web

import (
	"database/sql"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/moodlesync/moodlesync/internal/config"
	"github.com/moodlesync/moodlesync/internal/course"
	"github.com/moodlesync/moodlesync/internal/db"
	"github.com/moodlesync/moodlesync/internal/errors"
	"github.com/moodlesync/moodlesync/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	baseDir  string
	renderer *Renderer
}

// HandleCourses handles GET / — the mirrored course list with a last-run banner.
func (h *Handlers) HandleCourses(w http.ResponseWriter, r *http.Request) {
	status, err := ops.Status(r.Context(), h.db, h.cfg)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := ops.TrackedCourses(r.Context(), h.db)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "courses", CoursesPageData{
		PageData: PageData{
			Title:   "Courses",
			Version: h.renderer.version,
			Nav:     "courses",
		},
		Courses:    result.Courses,
		Configured: status.Configured,
		Domain:     status.MoodleDomain,
		LastRun:    status.LastRun,
	})
}

// HandleCourse handles GET /courses/{id} — one course's file table.
func (h *Handlers) HandleCourse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("course id must be a number"))
		return
	}

	result, err := ops.TrackedFiles(r.Context(), h.db, ops.TrackedFilesInput{CourseID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "course", CoursePageData{
		PageData: PageData{
			Title:   result.Course.FullName,
			Version: h.renderer.version,
			Nav:     "courses",
		},
		Course: result.Course,
		Files:  result.Files,
	})
}

// HandleRuns handles GET /runs — recent sync runs.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("limit must be a non-negative number"))
			return
		}
		limit = n
	}

	result, err := ops.Runs(r.Context(), h.db, ops.RunsInput{Limit: limit})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "runs", RunsPageData{
		PageData: PageData{
			Title:   "Runs",
			Version: h.renderer.version,
			Nav:     "runs",
		},
		Runs: result.Runs,
	})
}

// HandleFile handles GET /courses/{id}/file?key=... — a description preview,
// rendering the mirrored Markdown file. The path comes from the committed
// record, never from the request, so the handler cannot be steered outside
// the storage directory.
func (h *Handlers) HandleFile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("course id must be a number"))
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("key is required"))
		return
	}

	info, err := db.GetCourse(r.Context(), h.db, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	files, err := db.ListFiles(r.Context(), h.db, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	var found *course.File
	for i := range files {
		if files[i].Key == key {
			found = &files[i]
			break
		}
	}
	if found == nil {
		h.renderer.renderError(w, r, errors.NewNotFound(key))
		return
	}
	if found.Kind != course.KindDescription {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("only descriptions can be previewed"))
		return
	}

	text, err := os.ReadFile(filepath.Join(h.baseDir, filepath.FromSlash(found.Path)))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewNotFound(found.Path))
		return
	}

	h.renderer.renderPage(w, "file", FilePageData{
		PageData: PageData{
			Title:   found.Path,
			Version: h.renderer.version,
			Nav:     "courses",
		},
		CourseID:     id,
		CourseName:   info.FullName,
		Path:         found.Path,
		RenderedHTML: renderMarkdown(string(text)),
	})
}
