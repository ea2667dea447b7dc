// Package download applies a filtered change set to the local mirror.
// New and modified files are fetched, moves become local renames, and
// deletions are only ever reported, never executed against user files.
package download

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/moodlesync/moodlesync/internal/course"
)

// Options configures a Scheduler.
type Options struct {
	// StorageDir is the mirror root all file paths are relative to.
	StorageDir string
	// Token is appended to webservice file URLs. Plain web links go out
	// without it.
	Token string
	// Threads bounds concurrent transfers. Zero means 5.
	Threads int
	// SkipCertVerify disables TLS verification for self-signed instances.
	SkipCertVerify bool

	// DownloadLinked fetches the targets of url modules next to their
	// shortcuts, subject to the domain lists below.
	DownloadLinked bool
	// AllowDomains and DenyDomains are glob patterns matched against the
	// target hostname. Deny wins; an empty allow list admits every host.
	AllowDomains []string
	DenyDomains  []string

	// Logger receives per-file warnings. Nil means slog.Default().
	Logger *slog.Logger
}

// Scheduler executes changes against the mirror with bounded concurrency.
type Scheduler struct {
	storageDir     string
	token          string
	threads        int
	downloadLinked bool
	allowDomains   []string
	denyDomains    []string
	hc             *http.Client
	logger         *slog.Logger
}

// NewScheduler returns a scheduler over the given mirror directory.
func NewScheduler(opts Options) *Scheduler {
	threads := opts.Threads
	if threads <= 0 {
		threads = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// No overall client timeout: lecture recordings take as long as they
	// take. Cancellation comes from the context.
	hc := &http.Client{}
	if opts.SkipCertVerify {
		hc.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Scheduler{
		storageDir:     opts.StorageDir,
		token:          opts.Token,
		threads:        threads,
		downloadLinked: opts.DownloadLinked,
		allowDomains:   opts.AllowDomains,
		denyDomains:    opts.DenyDomains,
		hc:             hc,
		logger:         logger,
	}
}

// Result is the outcome of applying one change.
type Result struct {
	CourseID   int64
	CourseName string
	Change     course.Change
	Err        error
}

// Failures returns the subset of results that failed.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

type job struct {
	idx        int
	courseID   int64
	courseName string
	change     course.Change
}

// Execute applies every change in the set and returns one result per
// change, in set order. A failed file never aborts the run; the caller
// decides what failures mean for the commit.
func (s *Scheduler) Execute(ctx context.Context, set course.ChangeSet) []Result {
	var pending []job
	for _, cc := range set.Courses {
		for _, ch := range cc.Changes {
			pending = append(pending, job{len(pending), cc.CourseID, cc.CourseName, ch})
		}
	}

	results := make([]Result, len(pending))
	jobs := make(chan job, len(pending))
	var wg sync.WaitGroup
	var failed atomic.Int64

	workers := s.threads
	if workers > len(pending) {
		workers = len(pending)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go s.worker(ctx, jobs, results, &failed, &wg)
	}

	for _, j := range pending {
		jobs <- j
	}
	close(jobs)
	wg.Wait()

	if len(pending) > 0 {
		s.logger.Info("mirror updated", "changes", len(pending), "failed", failed.Load())
	}
	return results
}

// worker drains jobs until the channel closes, writing each result at
// the job's slot so set order survives the fan-out.
func (s *Scheduler) worker(ctx context.Context, jobs <-chan job, results []Result, failed *atomic.Int64, wg *sync.WaitGroup) {
	defer wg.Done()

	for jb := range jobs {
		err := s.apply(ctx, jb.change)
		if err != nil {
			failed.Add(1)
			s.logger.Warn("change failed",
				"course", jb.courseName, "path", jb.change.File.Path, "error", err)
		}
		results[jb.idx] = Result{
			CourseID:   jb.courseID,
			CourseName: jb.courseName,
			Change:     jb.change,
			Err:        err,
		}
	}
}

func (s *Scheduler) apply(ctx context.Context, ch course.Change) error {
	switch ch.Kind {
	case course.ChangeNew:
		return s.place(ctx, ch.File)
	case course.ChangeModified:
		if ch.Previous != nil {
			s.moveAside(ch.Previous.Path)
		}
		return s.place(ctx, ch.File)
	case course.ChangeMoved:
		return s.move(ctx, ch)
	case course.ChangeDeleted:
		// Report-only. The local copy stays.
		return nil
	}
	return nil
}

// place materializes a file at its path: descriptions and shortcuts are
// written from the carried text, everything else is downloaded.
func (s *Scheduler) place(ctx context.Context, f course.File) error {
	dst := s.localPath(f.Path)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	switch {
	case f.ModuleType == "url":
		if err := writeFileAtomic(dst, desktopEntry(f)); err != nil {
			return err
		}
		if s.downloadLinked {
			return s.fetchLinked(ctx, f, filepath.Dir(dst))
		}
		return nil
	case f.Kind == course.KindDescription:
		return writeFileAtomic(dst, []byte(f.Text))
	default:
		return s.fetch(ctx, f.FileURL, dst)
	}
}

// move renames the local copy to the new path and only falls back to a
// fresh download when the old copy is gone.
func (s *Scheduler) move(ctx context.Context, ch course.Change) error {
	dst := s.localPath(ch.File.Path)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	if ch.Previous != nil {
		src := s.localPath(ch.Previous.Path)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, dst); err == nil {
				return nil
			}
			s.logger.Warn("local rename failed, downloading instead",
				"from", ch.Previous.Path, "to", ch.File.Path)
		}
	}
	return s.place(ctx, ch.File)
}

// moveAside keeps the previous version of a modified file as name_old.ext.
// Best effort: a failure here only costs the backup copy, the new version
// still lands atomically.
func (s *Scheduler) moveAside(relPath string) {
	local := s.localPath(relPath)
	if _, err := os.Stat(local); err != nil {
		return
	}
	if err := os.Rename(local, asidePath(local)); err != nil {
		s.logger.Warn("could not keep old version", "path", relPath, "error", err)
	}
}

func asidePath(local string) string {
	ext := filepath.Ext(local)
	stem := strings.TrimSuffix(local, ext)
	candidate := stem + "_old" + ext
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s_old_%02d%s", stem, n, ext)
	}
}

func (s *Scheduler) fetch(ctx context.Context, src, dst string) error {
	if src == "" {
		return fmt.Errorf("no download url for %s", dst)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.downloadURL(src), nil)
	if err != nil {
		return err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d fetching %s", resp.StatusCode, src)
	}
	return writeStreamAtomic(dst, resp.Body)
}

// fetchLinked downloads a url module's target next to its shortcut. HTML
// pages are skipped; the shortcut already points there.
func (s *Scheduler) fetchLinked(ctx context.Context, f course.File, dir string) error {
	target := f.Text
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil
	}
	if !s.hostAllowed(u.Hostname()) {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d fetching %s", resp.StatusCode, target)
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return nil
	}

	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return nil
	}
	return writeStreamAtomic(filepath.Join(dir, course.CleanName(name)), resp.Body)
}

// hostAllowed applies the deny list, then the allow list.
func (s *Scheduler) hostAllowed(host string) bool {
	for _, pattern := range s.denyDomains {
		if matched, err := doublestar.Match(pattern, host); err == nil && matched {
			return false
		}
	}
	if len(s.allowDomains) == 0 {
		return true
	}
	for _, pattern := range s.allowDomains {
		if matched, err := doublestar.Match(pattern, host); err == nil && matched {
			return true
		}
	}
	return false
}

// downloadURL appends the webservice token to instance file URLs; plain
// web links go out untouched.
func (s *Scheduler) downloadURL(raw string) string {
	if s.token == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(u.Path, "/webservice/") {
		return raw
	}
	q := u.Query()
	q.Set("token", s.token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Scheduler) localPath(rel string) string {
	return filepath.Join(s.storageDir, filepath.FromSlash(rel))
}

// desktopEntry renders a freedesktop shortcut for a url module.
func desktopEntry(f course.File) []byte {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Encoding=UTF-8\n")
	fmt.Fprintf(&b, "Name=%s\n", f.ModuleName)
	b.WriteString("Type=Link\n")
	fmt.Fprintf(&b, "URL=%s\n", f.Text)
	b.WriteString("Icon=text-html\n")
	return []byte(b.String())
}

func writeFileAtomic(dst string, data []byte) error {
	return writeStreamAtomic(dst, bytes.NewReader(data))
}

// writeStreamAtomic writes via a temp file in the destination directory and
// renames it into place, so a crash never leaves a half-written file under
// the final name.
func writeStreamAtomic(dst string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".part-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
