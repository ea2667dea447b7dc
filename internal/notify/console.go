package notify

import (
	"fmt"
	"io"

	"github.com/moodlesync/moodlesync/internal/course"
)

const (
	ansiReset   = "\x1b[0m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

// Console prints the change report to a terminal, one line per change,
// grouped by course.
type Console struct {
	Out   io.Writer
	Color bool
}

var _ Notifier = (*Console)(nil)

func (c *Console) NotifyChanges(set course.ChangeSet, failures []Failure) error {
	if set.Empty() && len(failures) == 0 {
		fmt.Fprintln(c.Out, "Everything up to date.")
		return nil
	}

	for _, cc := range set.Courses {
		fmt.Fprintf(c.Out, "%s\n", c.paint(ansiBlue, cc.CourseName))
		for _, ch := range cc.Changes {
			switch ch.Kind {
			case course.ChangeNew:
				fmt.Fprintf(c.Out, "  %s %s\n", c.paint(ansiGreen, "+"), ch.File.Path)
			case course.ChangeModified:
				fmt.Fprintf(c.Out, "  %s %s\n", c.paint(ansiYellow, "~"), ch.File.Path)
			case course.ChangeMoved:
				fmt.Fprintf(c.Out, "  %s %s ==> %s\n", c.paint(ansiCyan, "->"), oldPath(ch), ch.File.Path)
			case course.ChangeDeleted:
				fmt.Fprintf(c.Out, "  %s %s\n", c.paint(ansiMagenta, "-"), ch.File.Path)
			}
		}
	}

	t := set.Tally()
	fmt.Fprintf(c.Out, "%d new, %d modified, %d moved, %d deleted\n",
		t.New, t.Modified, t.Moved, t.Deleted)

	if len(failures) > 0 {
		fmt.Fprintf(c.Out, "%s\n", c.paint(ansiMagenta, fmt.Sprintf("%d failed:", len(failures))))
		for _, f := range failures {
			fmt.Fprintf(c.Out, "  ! %s: %v\n", f.Path, f.Err)
		}
	}
	return nil
}

func (c *Console) paint(code, s string) string {
	if !c.Color {
		return s
	}
	return code + s + ansiReset
}
