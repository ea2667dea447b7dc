package filter

import (
	"testing"

	"github.com/moodlesync/moodlesync/internal/course"
)

func change(kind course.ChangeKind, key, path string, fileKind course.ContentKind) course.Change {
	return course.Change{
		Kind: kind,
		File: course.File{Key: key, ContentHash: "h", Path: path, Kind: fileKind},
	}
}

func setWith(courseID int64, name string, changes ...course.Change) course.ChangeSet {
	return course.ChangeSet{Courses: []course.CourseChanges{
		{CourseID: courseID, CourseName: name, Changes: changes},
	}}
}

func TestApply_ZeroRulesKeepContent(t *testing.T) {
	set := setWith(7, "Analysis I",
		change(course.ChangeNew, "resource:1:a.pdf", "Analysis I/a.pdf", course.KindContent),
	)

	out := Apply(set, Rules{})
	if len(out.Courses) != 1 || len(out.Courses[0].Changes) != 1 {
		t.Fatalf("out = %+v, want the content change kept", out)
	}
}

func TestApply_SubmissionToggle(t *testing.T) {
	set := setWith(7, "Analysis I",
		change(course.ChangeModified, "assign:4:report.pdf", "Analysis I/Assignment/report.pdf", course.KindSubmission),
	)

	out := Apply(set, Rules{IncludeSubmissions: false})
	if !out.Empty() {
		t.Errorf("out = %+v, want empty (submission filtered, course dropped)", out)
	}

	out = Apply(set, Rules{IncludeSubmissions: true})
	if len(out.Courses) != 1 || len(out.Courses[0].Changes) != 1 {
		t.Errorf("out = %+v, want submission kept", out)
	}
}

func TestApply_TogglesCoverAllKinds(t *testing.T) {
	set := setWith(7, "Analysis I",
		change(course.ChangeNew, "resource:1:a.pdf", "Analysis I/a.pdf", course.KindContent),
		change(course.ChangeNew, "assign:2:sol.pdf", "Analysis I/sol.pdf", course.KindSubmission),
		change(course.ChangeNew, "label:3:$description", "Analysis I/About.md", course.KindDescription),
		change(course.ChangeNew, "data:4:entry.csv", "Analysis I/entry.csv", course.KindDatabase),
	)

	out := Apply(set, Rules{})
	if len(out.Courses) != 1 || len(out.Courses[0].Changes) != 1 {
		t.Fatalf("out = %+v, want only the content change", out)
	}
	if out.Courses[0].Changes[0].File.Kind != course.KindContent {
		t.Errorf("kept Kind = %q, want content", out.Courses[0].Changes[0].File.Kind)
	}

	out = Apply(set, Rules{IncludeSubmissions: true, IncludeDescriptions: true, IncludeDatabases: true})
	if len(out.Courses[0].Changes) != 4 {
		t.Errorf("len(Changes) = %d, want 4 with all toggles on", len(out.Courses[0].Changes))
	}
}

// Toggles silence deletions too: a submission removed remotely is not
// announced while submissions are switched off.
func TestApply_TogglesApplyToDeleted(t *testing.T) {
	set := setWith(7, "Analysis I",
		change(course.ChangeDeleted, "assign:4:report.pdf", "Analysis I/report.pdf", course.KindSubmission),
	)

	out := Apply(set, Rules{IncludeSubmissions: false})
	if !out.Empty() {
		t.Errorf("out = %+v, want empty", out)
	}
}

func TestApply_ExcludePatterns(t *testing.T) {
	set := setWith(7, "Analysis I",
		change(course.ChangeNew, "resource:1:lec.mp4", "Analysis I/Recordings/lec.mp4", course.KindContent),
		change(course.ChangeNew, "resource:2:notes.pdf", "Analysis I/notes.pdf", course.KindContent),
	)

	out := Apply(set, Rules{ExcludePatterns: []string{"**/*.mp4"}})
	if len(out.Courses) != 1 || len(out.Courses[0].Changes) != 1 {
		t.Fatalf("out = %+v, want only notes.pdf", out)
	}
	if out.Courses[0].Changes[0].File.Path != "Analysis I/notes.pdf" {
		t.Errorf("kept Path = %q, want notes.pdf", out.Courses[0].Changes[0].File.Path)
	}
}

func TestApply_ExcludeMatchesDeletedRecordPath(t *testing.T) {
	set := setWith(7, "Analysis I",
		change(course.ChangeDeleted, "resource:1:lec.mp4", "Analysis I/lec.mp4", course.KindContent),
	)

	out := Apply(set, Rules{ExcludePatterns: []string{"**/*.mp4"}})
	if !out.Empty() {
		t.Errorf("out = %+v, want empty", out)
	}
}

func TestApply_CourseDenyList(t *testing.T) {
	set := course.ChangeSet{Courses: []course.CourseChanges{
		{CourseID: 7, CourseName: "Analysis I", Changes: []course.Change{
			change(course.ChangeNew, "resource:1:a.pdf", "Analysis I/a.pdf", course.KindContent),
		}},
		{CourseID: 8, CourseName: "Algebra", Changes: []course.Change{
			change(course.ChangeNew, "resource:2:b.pdf", "Algebra/b.pdf", course.KindContent),
		}},
	}}

	out := Apply(set, Rules{RejectedCourses: []int64{8}})
	if len(out.Courses) != 1 || out.Courses[0].CourseID != 7 {
		t.Errorf("out = %+v, want only course 7", out)
	}
}

func TestApply_CourseAllowList(t *testing.T) {
	set := course.ChangeSet{Courses: []course.CourseChanges{
		{CourseID: 7, CourseName: "Analysis I", Changes: []course.Change{
			change(course.ChangeNew, "resource:1:a.pdf", "Analysis I/a.pdf", course.KindContent),
		}},
		{CourseID: 8, CourseName: "Algebra", Changes: []course.Change{
			change(course.ChangeNew, "resource:2:b.pdf", "Algebra/b.pdf", course.KindContent),
		}},
	}}

	out := Apply(set, Rules{SelectedCourses: []int64{8}})
	if len(out.Courses) != 1 || out.Courses[0].CourseID != 8 {
		t.Errorf("out = %+v, want only course 8", out)
	}
}

func TestApply_RejectionWinsOverSelection(t *testing.T) {
	set := setWith(7, "Analysis I",
		change(course.ChangeNew, "resource:1:a.pdf", "Analysis I/a.pdf", course.KindContent),
	)

	out := Apply(set, Rules{SelectedCourses: []int64{7}, RejectedCourses: []int64{7}})
	if !out.Empty() {
		t.Errorf("out = %+v, want empty", out)
	}
}

func TestApply_InputNotMutated(t *testing.T) {
	set := setWith(7, "Analysis I",
		change(course.ChangeNew, "resource:1:a.pdf", "Analysis I/a.pdf", course.KindContent),
		change(course.ChangeNew, "assign:2:sol.pdf", "Analysis I/sol.pdf", course.KindSubmission),
	)

	_ = Apply(set, Rules{})

	if len(set.Courses) != 1 || len(set.Courses[0].Changes) != 2 {
		t.Fatalf("input mutated: %+v", set)
	}
	if set.Courses[0].Changes[1].File.Kind != course.KindSubmission {
		t.Errorf("input change rewritten: %+v", set.Courses[0].Changes[1])
	}
}

func TestFiles_SamePredicateAsApply(t *testing.T) {
	courses := []course.Course{
		{ID: 7, FullName: "Analysis I", Files: []course.File{
			{Key: "resource:1:a.pdf", Path: "Analysis I/a.pdf", Kind: course.KindContent},
			{Key: "resource:2:lec.mp4", Path: "Analysis I/lec.mp4", Kind: course.KindContent},
			{Key: "assign:3:sol.pdf", Path: "Analysis I/sol.pdf", Kind: course.KindSubmission},
		}},
		{ID: 8, FullName: "Algebra", Files: []course.File{
			{Key: "resource:4:b.pdf", Path: "Algebra/b.pdf", Kind: course.KindContent},
		}},
	}

	out := Files(courses, Rules{
		RejectedCourses: []int64{8},
		ExcludePatterns: []string{"**/*.mp4"},
	})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if len(out[0].Files) != 1 || out[0].Files[0].Key != "resource:1:a.pdf" {
		t.Errorf("out[0].Files = %+v, want only a.pdf", out[0].Files)
	}
}

// An allowed course whose files are all filtered away stays in the commit
// set with no files, unlike in Apply where empty courses vanish.
func TestFiles_KeepsEmptiedAllowedCourse(t *testing.T) {
	courses := []course.Course{
		{ID: 7, FullName: "Analysis I", Files: []course.File{
			{Key: "assign:3:sol.pdf", Path: "Analysis I/sol.pdf", Kind: course.KindSubmission},
		}},
	}

	out := Files(courses, Rules{IncludeSubmissions: false})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want course kept", len(out))
	}
	if len(out[0].Files) != 0 {
		t.Errorf("Files = %+v, want none", out[0].Files)
	}
}

// The fourth of the end-to-end scenarios: a modified submission with
// submissions switched off produces an empty set.
func TestApply_FilteredModifiedSubmissionYieldsEmptySet(t *testing.T) {
	prev := course.File{Key: "assign:4:report.pdf", ContentHash: "h1", Path: "Analysis I/report.pdf", Kind: course.KindSubmission}
	set := course.ChangeSet{Courses: []course.CourseChanges{
		{CourseID: 7, CourseName: "Analysis I", Changes: []course.Change{{
			Kind:     course.ChangeModified,
			File:     course.File{Key: "assign:4:report.pdf", ContentHash: "h2", Path: "Analysis I/report.pdf", Kind: course.KindSubmission},
			Previous: &prev,
		}}},
	}}

	out := Apply(set, Rules{IncludeSubmissions: false})
	if !out.Empty() {
		t.Errorf("out = %+v, want empty", out)
	}
}
