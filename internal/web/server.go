package web

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/moodlesync/moodlesync/internal/config"
)

// styleCSS is the whole stylesheet; the UI is small enough that a separate
// asset pipeline would be overhead.
const styleCSS = `body { font-family: system-ui, sans-serif; margin: 0; color: #222; }
nav { display: flex; gap: 1rem; align-items: baseline; padding: 0.6rem 1rem; background: #20232a; }
nav a { color: #bbb; text-decoration: none; }
nav a.active, nav a:hover { color: #fff; }
nav .version { margin-left: auto; color: #666; font-size: 0.8rem; }
main { max-width: 64rem; margin: 0 auto; padding: 1rem; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 0.35rem 0.6rem; border-bottom: 1px solid #ddd; }
td.num, th.num { text-align: right; font-variant-numeric: tabular-nums; }
.badge { font-size: 0.75rem; padding: 0.1rem 0.4rem; border-radius: 3px; background: #eee; }
.badge-description { background: #d8e7f5; }
.badge-submission { background: #e6d8f5; }
.badge-database { background: #f5ecd8; }
.badge-partial { background: #f5d8d8; }
.badge-ok { background: #d8f5dc; }
.banner { background: #eef4fb; padding: 0.5rem 0.8rem; border-radius: 4px; }
.banner.warn { background: #fbf3e0; }
.empty, .meta { color: #666; }
article.description { line-height: 1.5; }
`

// NewServer creates and configures the HTTP server for the web UI.
func NewServer(database *sql.DB, cfg *config.Config, baseDir, version, addr string) *http.Server {
	renderer := NewRenderer(version)

	h := &Handlers{
		db:       database,
		cfg:      cfg,
		baseDir:  baseDir,
		renderer: renderer,
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /{$}", h.HandleCourses)
	mux.HandleFunc("GET /courses/{id}", h.HandleCourse)
	mux.HandleFunc("GET /courses/{id}/file", h.HandleFile)
	mux.HandleFunc("GET /runs", h.HandleRuns)
	mux.HandleFunc("GET /static/style.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		_, _ = w.Write([]byte(styleCSS))
	})

	handler := securityHeaders(mux)

	return &http.Server{
		Addr:    addr,
		Handler: handler,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf("moodlesync UI running at http://%s", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Printf("WARNING: Server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
