package ops

import (
	"context"
	"database/sql"

	"github.com/moodlesync/moodlesync/internal/config"
	"github.com/moodlesync/moodlesync/internal/db"
)

// StatusOutput summarizes the mirror and the most recent run.
type StatusOutput struct {
	Configured   bool        `json:"configured"`
	MoodleDomain string      `json:"moodle_domain,omitempty"`
	CourseCount  int         `json:"course_count"`
	FileCount    int         `json:"file_count"`
	TotalSize    int64       `json:"total_size"`
	LastRun      *RunSummary `json:"last_run,omitempty"`
}

// Status reports what the mirror currently holds and how the last run went.
func Status(ctx context.Context, database *sql.DB, cfg *config.Config) (*StatusOutput, error) {
	out := &StatusOutput{
		Configured:   cfg.Configured(),
		MoodleDomain: cfg.MoodleDomain,
	}

	courses, err := db.ListCourses(ctx, database)
	if err != nil {
		return nil, err
	}
	out.CourseCount = len(courses)
	for _, c := range courses {
		out.FileCount += c.FileCount
		out.TotalSize += c.TotalSize
	}

	runs, err := db.RecentRuns(ctx, database, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		last := runSummary(runs[0])
		out.LastRun = &last
	}
	return out, nil
}
