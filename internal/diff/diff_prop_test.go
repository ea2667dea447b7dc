package diff

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/moodlesync/moodlesync/internal/course"
)

// buildState constructs a committed state with one file key space shared
// across courses (keys are course-scoped) and a distinct hash per file.
func buildState(courses, filesPerCourse int) []course.Course {
	out := make([]course.Course, 0, courses)
	for ci := 0; ci < courses; ci++ {
		c := course.Course{ID: int64(100 + ci), FullName: fmt.Sprintf("Course %d", ci)}
		for fi := 0; fi < filesPerCourse; fi++ {
			c.Files = append(c.Files, course.File{
				Key:         fmt.Sprintf("resource:%d:f%d.pdf", fi, fi),
				ContentHash: fmt.Sprintf("h-%d-%d", ci, fi),
				Path:        fmt.Sprintf("Course %d/f%d.pdf", ci, fi),
				Size:        int64(100 * (fi + 1)),
				Kind:        course.KindContent,
			})
		}
		out = append(out, c)
	}
	return out
}

func TestProperty_SelfDiffIsEmpty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("diffing a state against itself reports nothing",
		prop.ForAll(
			func(courseCount, filesPerCourse int) bool {
				state := buildState(courseCount, filesPerCourse)
				set, err := Changes(state, state)
				if err != nil {
					t.Logf("Changes failed: %v", err)
					return false
				}
				return set.Empty()
			},
			gen.IntRange(0, 5),
			gen.IntRange(0, 8),
		))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_EmptyStateReportsEverythingNew(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("against an empty state every snapshot file is new",
		prop.ForAll(
			func(courseCount, filesPerCourse int) bool {
				snap := buildState(courseCount, filesPerCourse)
				set, err := Changes(nil, snap)
				if err != nil {
					t.Logf("Changes failed: %v", err)
					return false
				}
				tally := set.Tally()
				return tally.New == courseCount*filesPerCourse &&
					tally.Modified == 0 && tally.Moved == 0 && tally.Deleted == 0
			},
			gen.IntRange(0, 5),
			gen.IntRange(0, 8),
		))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_EmptySnapshotReportsEverythingDeleted(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a present but emptied course deletes all its records",
		prop.ForAll(
			func(courseCount, filesPerCourse int) bool {
				state := buildState(courseCount, filesPerCourse)
				snap := make([]course.Course, 0, len(state))
				for _, c := range state {
					snap = append(snap, course.Course{ID: c.ID, FullName: c.FullName})
				}
				set, err := Changes(state, snap)
				if err != nil {
					t.Logf("Changes failed: %v", err)
					return false
				}
				tally := set.Tally()
				return tally.Deleted == courseCount*filesPerCourse &&
					tally.New == 0 && tally.Modified == 0 && tally.Moved == 0
			},
			gen.IntRange(0, 5),
			gen.IntRange(0, 8),
		))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// The central completeness property: after random per-file mutations the
// change set covers exactly the mutated keys, with the matching kind, each
// at most once, and untouched files never surface. Hashes are unique per
// file here so a delete can never be reinterpreted as a fingerprint move.
func TestProperty_DiffCoversExactlyTheChangedKeys(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("changed keys appear once with their kind, unchanged never",
		prop.ForAll(
			func(courseCount, filesPerCourse int, seed int64) bool {
				rng := rand.New(rand.NewSource(seed))
				state := buildState(courseCount, filesPerCourse)

				want := make(map[int64]map[string]course.ChangeKind, len(state))
				snap := make([]course.Course, 0, len(state))
				for ci, c := range state {
					want[c.ID] = map[string]course.ChangeKind{}
					sc := course.Course{ID: c.ID, FullName: c.FullName}
					for _, f := range c.Files {
						switch rng.Intn(4) {
						case 0:
							sc.Files = append(sc.Files, f)
						case 1:
							f.ContentHash += "-touched"
							sc.Files = append(sc.Files, f)
							want[c.ID][f.Key] = course.ChangeModified
						case 2:
							f.Path = "Archive/" + f.Path
							sc.Files = append(sc.Files, f)
							want[c.ID][f.Key] = course.ChangeMoved
						case 3:
							want[c.ID][f.Key] = course.ChangeDeleted
						}
					}
					for n := rng.Intn(3); n > 0; n-- {
						f := course.File{
							Key:         fmt.Sprintf("resource:9%d%d:new%d.pdf", ci, n, n),
							ContentHash: fmt.Sprintf("h-new-%d-%d", ci, n),
							Path:        fmt.Sprintf("Course %d/new%d.pdf", ci, n),
							Size:        int64(5000 + n),
							Kind:        course.KindContent,
						}
						sc.Files = append(sc.Files, f)
						want[c.ID][f.Key] = course.ChangeNew
					}
					snap = append(snap, sc)
				}

				set, err := Changes(state, snap)
				if err != nil {
					t.Logf("Changes failed: %v", err)
					return false
				}

				got := make(map[int64]map[string]course.ChangeKind, len(set.Courses))
				for _, cc := range set.Courses {
					if _, dup := got[cc.CourseID]; dup {
						t.Logf("course %d listed twice", cc.CourseID)
						return false
					}
					m := map[string]course.ChangeKind{}
					for _, ch := range cc.Changes {
						if _, dup := m[ch.File.Key]; dup {
							t.Logf("key %q listed twice in course %d", ch.File.Key, cc.CourseID)
							return false
						}
						m[ch.File.Key] = ch.Kind
					}
					got[cc.CourseID] = m
				}

				for id, wm := range want {
					gm := got[id]
					if len(gm) != len(wm) {
						t.Logf("course %d: got %d changes, want %d", id, len(gm), len(wm))
						return false
					}
					for key, kind := range wm {
						if gm[key] != kind {
							t.Logf("course %d key %q: got %q, want %q", id, key, gm[key], kind)
							return false
						}
					}
				}
				return true
			},
			gen.IntRange(1, 4),
			gen.IntRange(0, 8),
			gen.Int64Range(0, 1<<30),
		))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Re-keying files without touching their bytes must surface as moves only,
// never as delete plus new pairs.
func TestProperty_RekeyedFilesSurfaceAsMoves(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("re-keyed content yields exactly one move per file",
		prop.ForAll(
			func(fileCount, rekeys int) bool {
				if rekeys > fileCount {
					rekeys = fileCount
				}
				state := buildState(1, fileCount)
				sc := course.Course{ID: state[0].ID, FullName: state[0].FullName}
				for i, f := range state[0].Files {
					if i < rekeys {
						f.Key = "reissued:" + f.Key
						f.Path = "Renamed/" + f.Path
					}
					sc.Files = append(sc.Files, f)
				}

				set, err := Changes(state, []course.Course{sc})
				if err != nil {
					t.Logf("Changes failed: %v", err)
					return false
				}
				tally := set.Tally()
				return tally.Moved == rekeys &&
					tally.New == 0 && tally.Modified == 0 && tally.Deleted == 0
			},
			gen.IntRange(1, 8),
			gen.IntRange(0, 8),
		))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
