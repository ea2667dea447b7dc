// Package diff computes the classified difference between the last committed
// mirror state and a freshly fetched snapshot. It is pure computation:
// no I/O, no clock, deterministic for a given pair of inputs.
package diff

import (
	"sort"

	"github.com/moodlesync/moodlesync/internal/course"
	"github.com/moodlesync/moodlesync/internal/errors"
)

// Changes classifies every per-file difference between the committed state
// and the snapshot. Matching within a course runs in two passes:
//
//  1. Key pass: snapshot files whose key exists in the committed state are
//     matched by key. A hash difference is Modified (hash wins even if the
//     path changed too), a path difference is Moved, otherwise the file is
//     unchanged and dropped. Matched records are consumed.
//  2. Fingerprint pass: snapshot files with an unknown key are paired
//     against the remaining records by (hash, size), which catches the
//     remote side reissuing ids on copy or rename. With several candidates
//     the one with the lexicographically smallest path is consumed, so the
//     outcome never depends on iteration order. No candidate means New.
//
// The key pass completes before any fingerprint matching so that a
// fingerprint pair can never consume a record whose key still appears later
// in the snapshot. Records left unconsumed after both passes are Deleted.
//
// Courses present in the committed state but absent from the snapshot are
// ignored; course-level disappearance is not a file deletion.
func Changes(old, snapshot []course.Course) (course.ChangeSet, error) {
	oldFiles := make(map[int64][]course.File, len(old))
	for _, c := range old {
		oldFiles[c.ID] = c.Files
	}

	var set course.ChangeSet
	for _, c := range snapshot {
		cc, err := diffCourse(c, oldFiles[c.ID])
		if err != nil {
			return course.ChangeSet{}, err
		}
		if len(cc.Changes) > 0 {
			set.Courses = append(set.Courses, cc)
		}
	}
	return set, nil
}

// diffCourse classifies one course. Change order: key-pass results in
// snapshot order, then New files in snapshot order, then Deleted records in
// path order.
func diffCourse(c course.Course, old []course.File) (course.CourseChanges, error) {
	cc := course.CourseChanges{CourseID: c.ID, CourseName: c.FullName}

	remaining := make(map[string]course.File, len(old))
	for _, f := range old {
		remaining[f.Key] = f
	}

	seenPath := make(map[string]string, len(c.Files))
	var pending []course.File

	for _, f := range c.Files {
		if firstPath, dup := seenPath[f.Key]; dup {
			return course.CourseChanges{}, errors.NewDiffInconsistent(c.ID, f.Key, []string{firstPath, f.Path})
		}
		seenPath[f.Key] = f.Path

		prev, ok := remaining[f.Key]
		if !ok {
			pending = append(pending, f)
			continue
		}
		delete(remaining, f.Key)

		switch {
		case prev.ContentHash != f.ContentHash:
			cc.Changes = append(cc.Changes, course.Change{Kind: course.ChangeModified, File: f, Previous: &prev})
		case prev.Path != f.Path:
			cc.Changes = append(cc.Changes, course.Change{Kind: course.ChangeMoved, File: f, Previous: &prev})
		}
	}

	for _, f := range pending {
		if prev, ok := takeByFingerprint(remaining, f); ok {
			cc.Changes = append(cc.Changes, course.Change{Kind: course.ChangeMoved, File: f, Previous: &prev})
			continue
		}
		cc.Changes = append(cc.Changes, course.Change{Kind: course.ChangeNew, File: f})
	}

	deleted := make([]course.File, 0, len(remaining))
	for _, f := range remaining {
		deleted = append(deleted, f)
	}
	sort.Slice(deleted, func(i, j int) bool { return deleted[i].Path < deleted[j].Path })
	for _, f := range deleted {
		cc.Changes = append(cc.Changes, course.Change{Kind: course.ChangeDeleted, File: f})
	}

	return cc, nil
}

// takeByFingerprint consumes and returns the remaining record matching f's
// (hash, size), preferring the lexicographically smallest path (then key,
// for records sharing a path). Files without a fingerprint never match.
func takeByFingerprint(remaining map[string]course.File, f course.File) (course.File, bool) {
	if f.ContentHash == "" {
		return course.File{}, false
	}

	var best course.File
	found := false
	for _, r := range remaining {
		if r.ContentHash != f.ContentHash || r.Size != f.Size {
			continue
		}
		if !found || r.Path < best.Path || (r.Path == best.Path && r.Key < best.Key) {
			best = r
			found = true
		}
	}
	if !found {
		return course.File{}, false
	}
	delete(remaining, best.Key)
	return best, true
}
