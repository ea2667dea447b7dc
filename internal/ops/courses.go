package ops

import (
	"context"

	"github.com/moodlesync/moodlesync/internal/config"
	"github.com/moodlesync/moodlesync/internal/errors"
	"github.com/moodlesync/moodlesync/internal/moodle"
)

// RemoteCourse is one enrolled course on the Moodle instance.
type RemoteCourse struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Selected bool   `json:"selected"`
}

// RemoteCoursesOutput contains the result of the remote-courses operation.
type RemoteCoursesOutput struct {
	Courses []RemoteCourse `json:"courses"`
	Total   int            `json:"total"`
}

// RemoteCourses lists the user's enrolled courses and marks which of them
// the current configuration would sync.
func RemoteCourses(ctx context.Context, cfg *config.Config, lister moodle.CourseLister) (*RemoteCoursesOutput, error) {
	if !cfg.Configured() {
		return nil, errors.NewNotConfigured("token")
	}

	summaries, err := lister.UserCourses(ctx)
	if err != nil {
		return nil, err
	}

	rules := Rules(cfg)
	out := &RemoteCoursesOutput{
		Courses: make([]RemoteCourse, 0, len(summaries)),
		Total:   len(summaries),
	}
	for _, s := range summaries {
		out.Courses = append(out.Courses, RemoteCourse{
			ID:       s.ID,
			FullName: s.FullName,
			Selected: rules.CourseAllowed(s.ID),
		})
	}
	return out, nil
}
