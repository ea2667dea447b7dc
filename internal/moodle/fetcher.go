package moodle

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/moodlesync/moodlesync/internal/course"
	"github.com/moodlesync/moodlesync/internal/errors"
)

// SnapshotOptions controls what FetchSnapshot asks the instance for.
type SnapshotOptions struct {
	// CourseIDs restricts fetching to the listed courses; empty fetches
	// every enrolled course.
	CourseIDs []int64
	// RejectedCourseIDs are never fetched. Rejection wins over selection.
	RejectedCourseIDs []int64

	// IncludeSubmissions additionally fetches the user's own assignment
	// submissions; IncludeDatabases the entries of database activities.
	// Both cost extra webservice calls.
	IncludeSubmissions bool
	IncludeDatabases   bool

	// CourseNames overrides course directory names, by course id.
	CourseNames map[int64]string
	// FlattenCourses lists courses whose files all land directly in the
	// course directory, without section or module subdirectories.
	FlattenCourses map[int64]bool
}

// Fetcher produces the remote snapshot a sync run diffs against the store.
// The pipeline depends on this interface so tests can feed it fixed
// snapshots.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, opts SnapshotOptions) ([]course.Course, error)
}

// CourseLister lists enrolled courses, for course selection in the CLI and
// the wizard.
type CourseLister interface {
	UserCourses(ctx context.Context) ([]CourseSummary, error)
}

var (
	_ Fetcher      = (*Client)(nil)
	_ CourseLister = (*Client)(nil)
)

// FetchSnapshot assembles the full snapshot of every selected course:
// section contents, module descriptions, assignment intros and attachments,
// and optionally submissions and database entries. Each file gets its
// stable key, its metadata hash and the local path it would be saved
// under. Any error aborts the whole fetch; the engine never runs on a
// partial snapshot.
func (c *Client) FetchSnapshot(ctx context.Context, opts SnapshotOptions) ([]course.Course, error) {
	enrolled, err := c.UserCourses(ctx)
	if err != nil {
		return nil, err
	}
	selected := selectCourses(enrolled, opts)
	if len(selected) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(selected))
	for _, cs := range selected {
		ids = append(ids, cs.ID)
	}

	assignments, err := c.optionalAssignments(ctx, ids)
	if err != nil {
		return nil, err
	}

	var submissions map[int64][]Submission
	if opts.IncludeSubmissions {
		var assignIDs []int64
		for _, list := range assignments {
			for _, a := range list {
				assignIDs = append(assignIDs, a.ID)
			}
		}
		submissions, err = c.optionalSubmissions(ctx, assignIDs)
		if err != nil {
			return nil, err
		}
	}

	var databases map[int64][]Database
	if opts.IncludeDatabases {
		databases, err = c.optionalDatabases(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	snapshot := make([]course.Course, 0, len(selected))
	for _, cs := range selected {
		b := newCourseBuilder(cs, opts)

		sections, err := c.CourseContents(ctx, cs.ID)
		if err != nil {
			return nil, err
		}
		b.addSections(sections)
		b.addAssignments(assignments[cs.ID], submissions, opts.IncludeSubmissions)

		for _, d := range databases[cs.ID] {
			entries, err := c.DatabaseEntries(ctx, d.ID)
			if err != nil {
				return nil, err
			}
			b.addDatabase(d, entries)
		}

		snapshot = append(snapshot, b.course)
	}
	return snapshot, nil
}

// The assignment and database functions are disabled on some instances.
// A webservice rejection there downgrades to a warning so the rest of the
// sync still runs; transport failures abort as usual.

func (c *Client) optionalAssignments(ctx context.Context, courseIDs []int64) (map[int64][]Assignment, error) {
	byCourse, err := c.Assignments(ctx, courseIDs)
	if err != nil {
		if errors.Is(err, errors.ErrRequestRejected) {
			c.logger.Warn("assignments unavailable on this instance", "error", err)
			return nil, nil
		}
		return nil, err
	}
	return byCourse, nil
}

func (c *Client) optionalSubmissions(ctx context.Context, assignmentIDs []int64) (map[int64][]Submission, error) {
	byAssignment, err := c.Submissions(ctx, assignmentIDs)
	if err != nil {
		if errors.Is(err, errors.ErrRequestRejected) {
			c.logger.Warn("submissions unavailable on this instance", "error", err)
			return nil, nil
		}
		return nil, err
	}
	return byAssignment, nil
}

func (c *Client) optionalDatabases(ctx context.Context, courseIDs []int64) (map[int64][]Database, error) {
	byCourse, err := c.Databases(ctx, courseIDs)
	if err != nil {
		if errors.Is(err, errors.ErrRequestRejected) {
			c.logger.Warn("database activities unavailable on this instance", "error", err)
			return nil, nil
		}
		return nil, err
	}
	return byCourse, nil
}

func selectCourses(enrolled []CourseSummary, opts SnapshotOptions) []CourseSummary {
	rejected := make(map[int64]bool, len(opts.RejectedCourseIDs))
	for _, id := range opts.RejectedCourseIDs {
		rejected[id] = true
	}
	allowed := make(map[int64]bool, len(opts.CourseIDs))
	for _, id := range opts.CourseIDs {
		allowed[id] = true
	}

	var out []CourseSummary
	for _, cs := range enrolled {
		if rejected[cs.ID] {
			continue
		}
		if len(allowed) > 0 && !allowed[cs.ID] {
			continue
		}
		out = append(out, cs)
	}
	return out
}

// courseBuilder accumulates one course's snapshot files. It owns path
// uniqueness: when two files would save to the same spot, later ones get a
// numbered suffix, deterministically since remote order is stable.
type courseBuilder struct {
	course    course.Course
	dirName   string
	structure bool
	used      map[string]bool
}

func newCourseBuilder(cs CourseSummary, opts SnapshotOptions) *courseBuilder {
	dirName := opts.CourseNames[cs.ID]
	if dirName == "" {
		dirName = cs.FullName
	}
	return &courseBuilder{
		course:    course.Course{ID: cs.ID, FullName: cs.FullName},
		dirName:   dirName,
		structure: !opts.FlattenCourses[cs.ID],
		used:      make(map[string]bool),
	}
}

func (b *courseBuilder) addFile(f course.File) {
	f.Path = b.uniquePath(f.Path)
	b.course.Files = append(b.course.Files, f)
}

func (b *courseBuilder) uniquePath(p string) string {
	if !b.used[p] {
		b.used[p] = true
		return p
	}
	for n := 1; ; n++ {
		candidate := numberedPath(p, n)
		if !b.used[candidate] {
			b.used[candidate] = true
			return candidate
		}
	}
}

func numberedPath(p string, n int) string {
	dir, name := path.Split(p)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s%s_%02d%s", dir, stem, n, ext)
}

// filePath joins the course directory with parts, or collapses to
// course dir + filename for courses that opted out of the directory
// structure.
func (b *courseBuilder) filePath(parts ...string) string {
	if !b.structure && len(parts) > 0 {
		return course.JoinPath(b.dirName, parts[len(parts)-1])
	}
	return course.JoinPath(append([]string{b.dirName}, parts...)...)
}

func (b *courseBuilder) addSections(sections []Section) {
	for _, s := range sections {
		if text := htmlToText(s.Summary); text != "" {
			name := s.Name
			if name == "" {
				name = "Section"
			}
			b.addFile(course.File{
				Key:         fmt.Sprintf("section:%d:$description", s.ID),
				ContentHash: textHash(text),
				Path:        b.filePath(s.Name, course.CleanName(name)+".md"),
				Kind:        course.KindDescription,
				Size:        int64(len(text)),
				Text:        text,
				ModuleType:  "section",
				ModuleName:  s.Name,
			})
		}
		for _, m := range s.Modules {
			b.addModule(s.Name, m)
		}
	}
}

func (b *courseBuilder) addModule(secName string, m Module) {
	if m.ModName == "url" {
		b.addURLModule(secName, m)
		return
	}

	for _, content := range m.Contents {
		if content.Type != "file" {
			continue
		}
		b.addContent(secName, m, content)
	}

	// Assignment intros come through the richer mod_assign call instead.
	if m.ModName != "assign" {
		b.addDescription(secName, m)
	}
}

func (b *courseBuilder) addContent(secName string, m Module, content Content) {
	sub := strings.Trim(content.Filepath, "/")

	parts := []string{secName, m.Name}
	if sub != "" {
		parts = append(parts, strings.Split(sub, "/")...)
	}
	parts = append(parts, content.Filename)

	b.addFile(course.File{
		Key:         fmt.Sprintf("%s:%d:%s", m.ModName, m.ID, keyName(sub, content.Filename)),
		ContentHash: contentHash(content.Filesize, content.TimeModified, content.FileURL),
		Path:        b.filePath(parts...),
		Kind:        course.KindContent,
		Size:        content.Filesize,
		ModifiedAt:  content.TimeModified,
		FileURL:     content.FileURL,
		ModuleType:  m.ModName,
		ModuleName:  m.Name,
	})
}

// addURLModule records an external link module as a shortcut file; the
// downloader writes it as a .desktop entry and, when linked-file download
// is enabled, fetches the target alongside.
func (b *courseBuilder) addURLModule(secName string, m Module) {
	var target string
	for _, content := range m.Contents {
		if content.Type == "url" && content.FileURL != "" {
			target = content.FileURL
			break
		}
	}
	if target == "" {
		return
	}

	b.addFile(course.File{
		Key:         fmt.Sprintf("url:%d:%s", m.ID, m.Name),
		ContentHash: textHash(target),
		Path:        b.filePath(secName, course.CleanName(m.Name)+".desktop"),
		Kind:        course.KindContent,
		Size:        int64(len(target)),
		Text:        target,
		FileURL:     target,
		ModuleType:  "url",
		ModuleName:  m.Name,
	})
	b.addDescription(secName, m)
}

func (b *courseBuilder) addDescription(secName string, m Module) {
	text := htmlToText(m.Description)
	if text == "" {
		return
	}
	b.addFile(course.File{
		Key:         fmt.Sprintf("%s:%d:$description", m.ModName, m.ID),
		ContentHash: textHash(text),
		Path:        b.filePath(secName, course.CleanName(m.Name)+".md"),
		Kind:        course.KindDescription,
		Size:        int64(len(text)),
		Text:        text,
		ModuleType:  m.ModName,
		ModuleName:  m.Name,
	})
}

func (b *courseBuilder) addAssignments(assignments []Assignment, submissions map[int64][]Submission, includeSubmissions bool) {
	for _, a := range assignments {
		if text := htmlToText(a.Intro); text != "" {
			b.addFile(course.File{
				Key:         fmt.Sprintf("assign:%d:$description", a.CMID),
				ContentHash: textHash(text),
				Path:        b.filePath(a.Name, course.CleanName(a.Name)+".md"),
				Kind:        course.KindDescription,
				Size:        int64(len(text)),
				Text:        text,
				ModuleType:  "assign",
				ModuleName:  a.Name,
			})
		}

		for _, att := range a.IntroAttachments {
			sub := strings.Trim(att.Filepath, "/")
			parts := []string{a.Name}
			if sub != "" {
				parts = append(parts, strings.Split(sub, "/")...)
			}
			parts = append(parts, att.Filename)

			b.addFile(course.File{
				Key:         fmt.Sprintf("assign:%d:%s", a.CMID, keyName(sub, att.Filename)),
				ContentHash: contentHash(att.Filesize, att.TimeModified, att.FileURL),
				Path:        b.filePath(parts...),
				Kind:        course.KindContent,
				Size:        att.Filesize,
				ModifiedAt:  att.TimeModified,
				FileURL:     att.FileURL,
				ModuleType:  "assign",
				ModuleName:  a.Name,
			})
		}

		if !includeSubmissions {
			continue
		}
		for _, s := range submissions[a.ID] {
			for _, plugin := range s.Plugins {
				for _, area := range plugin.FileAreas {
					for _, file := range area.Files {
						sub := strings.Trim(file.Filepath, "/")
						b.addFile(course.File{
							Key:         fmt.Sprintf("assign:%d:submission/%s", a.CMID, keyName(sub, file.Filename)),
							ContentHash: contentHash(file.Filesize, file.TimeModified, file.FileURL),
							Path:        b.filePath(a.Name, "submissions", file.Filename),
							Kind:        course.KindSubmission,
							Size:        file.Filesize,
							ModifiedAt:  file.TimeModified,
							FileURL:     file.FileURL,
							ModuleType:  "assign",
							ModuleName:  a.Name,
						})
					}
				}
			}
		}
	}
}

func (b *courseBuilder) addDatabase(d Database, entries []DatabaseEntry) {
	for _, e := range entries {
		for _, ec := range e.Contents {
			for _, file := range ec.Files {
				b.addFile(course.File{
					Key:         fmt.Sprintf("data:%d:%d/%s", d.CourseModule, e.ID, file.Filename),
					ContentHash: contentHash(file.Filesize, file.TimeModified, file.FileURL),
					Path:        b.filePath(d.Name, file.Filename),
					Kind:        course.KindDatabase,
					Size:        file.Filesize,
					ModifiedAt:  file.TimeModified,
					FileURL:     file.FileURL,
					ModuleType:  "data",
					ModuleName:  d.Name,
				})
			}
		}
	}
}

func keyName(sub, filename string) string {
	if sub != "" {
		return sub + "/" + filename
	}
	return filename
}

// contentHash fingerprints a binary file from its remote metadata. The
// volatile token parameter is stripped from the URL so the hash survives
// token rotation.
func contentHash(size, modified int64, fileURL string) string {
	h := sha1.New()
	fmt.Fprintf(h, "%d|%d|%s", size, modified, stripTokenParam(fileURL))
	return hex.EncodeToString(h.Sum(nil))
}

// textHash fingerprints description and link content directly.
func textHash(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func stripTokenParam(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("token") {
		q.Del("token")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
