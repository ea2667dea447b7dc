package course

// ChangeKind classifies what happened to one file between two snapshots.
type ChangeKind string

const (
	ChangeNew      ChangeKind = "new"
	ChangeModified ChangeKind = "modified"
	ChangeMoved    ChangeKind = "moved"
	ChangeDeleted  ChangeKind = "deleted"
)

// Change is one classified difference. Each file key appears in at most one
// Change per run; unchanged files are never represented.
type Change struct {
	// Kind is the classification. Exactly one per file per run.
	Kind ChangeKind

	// File is the current endpoint: the snapshot file for New, Modified and
	// Moved, the last committed record for Deleted.
	File File

	// Previous is the last committed record for Modified (old path, old
	// hash) and Moved (old path). Nil for New and Deleted. The pairing is
	// a plain value copy, not a shared reference.
	Previous *File
}

// CourseChanges groups the changes of one course.
type CourseChanges struct {
	CourseID   int64
	CourseName string
	Changes    []Change
}

// ChangeSet is the full result of one reconciliation, in course fetch order.
// Courses without changes are omitted.
type ChangeSet struct {
	Courses []CourseChanges
}

// Empty reports whether the set contains no changes at all.
func (s ChangeSet) Empty() bool {
	for _, c := range s.Courses {
		if len(c.Changes) > 0 {
			return false
		}
	}
	return true
}

// Tally counts changes by kind across all courses.
type Tally struct {
	New      int
	Modified int
	Moved    int
	Deleted  int
}

// Total is the number of changes across all kinds.
func (t Tally) Total() int {
	return t.New + t.Modified + t.Moved + t.Deleted
}

// Tally counts the set's changes by kind.
func (s ChangeSet) Tally() Tally {
	var t Tally
	for _, c := range s.Courses {
		for _, ch := range c.Changes {
			switch ch.Kind {
			case ChangeNew:
				t.New++
			case ChangeModified:
				t.Modified++
			case ChangeMoved:
				t.Moved++
			case ChangeDeleted:
				t.Deleted++
			}
		}
	}
	return t
}
