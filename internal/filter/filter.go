// Package filter narrows change sets and snapshots to what the
// configuration allows. Filtering is pure: inputs are never mutated and
// fresh slices are returned.
package filter

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/moodlesync/moodlesync/internal/course"
)

// Rules is the filter configuration, already validated by the config layer.
// The zero value passes generic content for every course and drops
// submissions, descriptions and database entries.
type Rules struct {
	// SelectedCourses allows only the listed course ids; empty allows all.
	SelectedCourses []int64
	// RejectedCourses drops the listed course ids. Rejection wins over
	// selection.
	RejectedCourses []int64

	IncludeSubmissions  bool
	IncludeDescriptions bool
	IncludeDatabases    bool

	// ExcludePatterns drops files whose path matches any doublestar glob,
	// e.g. "**/*.mp4".
	ExcludePatterns []string
}

// Apply reduces a change set to the changes the rules keep. Per-change the
// category toggles run first, then the exclude globs against the change's
// path (for deletions that is the old record's path), then the course
// allow and deny lists. Courses with nothing left are dropped.
func Apply(set course.ChangeSet, rules Rules) course.ChangeSet {
	var out course.ChangeSet
	for _, cc := range set.Courses {
		kept := make([]course.Change, 0, len(cc.Changes))
		for _, ch := range cc.Changes {
			if rules.keepFile(ch.File) {
				kept = append(kept, ch)
			}
		}
		if len(kept) == 0 || !rules.CourseAllowed(cc.CourseID) {
			continue
		}
		out.Courses = append(out.Courses, course.CourseChanges{
			CourseID:   cc.CourseID,
			CourseName: cc.CourseName,
			Changes:    kept,
		})
	}
	return out
}

// Files reduces a snapshot with the same per-file rules, for computing the
// state a run commits. Unlike Apply it keeps allowed courses that end up
// with no files: an allowed course whose content is all filtered out is
// still part of the committed state, with nothing in it.
func Files(courses []course.Course, rules Rules) []course.Course {
	out := make([]course.Course, 0, len(courses))
	for _, c := range courses {
		if !rules.CourseAllowed(c.ID) {
			continue
		}
		kept := make([]course.File, 0, len(c.Files))
		for _, f := range c.Files {
			if rules.keepFile(f) {
				kept = append(kept, f)
			}
		}
		out = append(out, course.Course{ID: c.ID, FullName: c.FullName, Files: kept})
	}
	return out
}

func (r Rules) keepFile(f course.File) bool {
	switch f.Kind {
	case course.KindSubmission:
		if !r.IncludeSubmissions {
			return false
		}
	case course.KindDescription:
		if !r.IncludeDescriptions {
			return false
		}
	case course.KindDatabase:
		if !r.IncludeDatabases {
			return false
		}
	}
	for _, pattern := range r.ExcludePatterns {
		if matched, err := doublestar.Match(pattern, f.Path); err == nil && matched {
			return false
		}
	}
	return true
}

// CourseAllowed reports whether the course passes the deny and allow
// lists. An empty allow list admits every course.
func (r Rules) CourseAllowed(id int64) bool {
	for _, rejected := range r.RejectedCourses {
		if rejected == id {
			return false
		}
	}
	if len(r.SelectedCourses) == 0 {
		return true
	}
	for _, selected := range r.SelectedCourses {
		if selected == id {
			return true
		}
	}
	return false
}
