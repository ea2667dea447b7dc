// Package notify delivers change reports to the user.
package notify

import (
	"fmt"
	"strings"

	"github.com/moodlesync/moodlesync/internal/course"
)

// Failure describes one file a run could not bring up to date.
type Failure struct {
	CourseName string
	Path       string
	Err        error
}

// Notifier delivers one run's change report. Delivery is best effort; the
// run has already happened when notifiers fire.
type Notifier interface {
	NotifyChanges(set course.ChangeSet, failures []Failure) error
}

// Summary renders the change report as Markdown. The mail notifier sends
// it rendered to HTML; it also reads fine as plain text.
func Summary(set course.ChangeSet, failures []Failure) string {
	var b strings.Builder
	t := set.Tally()
	fmt.Fprintf(&b, "# Course updates: %d new, %d modified, %d moved, %d deleted\n",
		t.New, t.Modified, t.Moved, t.Deleted)

	for _, cc := range set.Courses {
		fmt.Fprintf(&b, "\n## %s\n\n", cc.CourseName)
		for _, ch := range cc.Changes {
			switch ch.Kind {
			case course.ChangeNew:
				fmt.Fprintf(&b, "- **new** %s\n", ch.File.Path)
			case course.ChangeModified:
				fmt.Fprintf(&b, "- **modified** %s\n", ch.File.Path)
			case course.ChangeMoved:
				fmt.Fprintf(&b, "- **moved** %s ==> %s\n", oldPath(ch), ch.File.Path)
			case course.ChangeDeleted:
				fmt.Fprintf(&b, "- **deleted** %s\n", ch.File.Path)
			}
		}
	}

	if len(failures) > 0 {
		b.WriteString("\n## Failed\n\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "- %s: %s (%v)\n", f.CourseName, f.Path, f.Err)
		}
	}
	return b.String()
}

func oldPath(ch course.Change) string {
	if ch.Previous != nil {
		return ch.Previous.Path
	}
	return ch.File.Path
}
