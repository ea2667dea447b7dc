// Package ops implements the operations behind the CLI, web and MCP
// surfaces. Each operation takes an Input struct and returns an Output
// struct, keeping the surfaces thin and uniformly testable.
package ops

import (
	"strconv"

	"github.com/moodlesync/moodlesync/internal/config"
	"github.com/moodlesync/moodlesync/internal/db"
	"github.com/moodlesync/moodlesync/internal/filter"
	"github.com/moodlesync/moodlesync/internal/moodle"
)

// Run history listing limits.
const (
	DefaultRunsLimit = 20
	MaxRunsLimit     = 100
)

// Rules derives the change filter rules from the configuration.
func Rules(cfg *config.Config) filter.Rules {
	return filter.Rules{
		SelectedCourses:     cfg.DownloadCourseIDs,
		RejectedCourses:     cfg.DontDownloadCourseIDs,
		IncludeSubmissions:  cfg.DownloadSubmissions,
		IncludeDescriptions: cfg.DownloadDescriptions,
		IncludeDatabases:    cfg.DownloadDatabases,
		ExcludePatterns:     cfg.ExcludeFilePatterns,
	}
}

// SnapshotOptions derives the fetch options from the configuration.
// Course restriction is applied at fetch time too, so deselected courses
// cost no webservice calls; the filter stays authoritative.
func SnapshotOptions(cfg *config.Config) moodle.SnapshotOptions {
	names := make(map[int64]string)
	flatten := make(map[int64]bool)
	for key, opt := range cfg.CourseOptions {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		if opt.OverwriteName != "" {
			names[id] = opt.OverwriteName
		}
		if opt.CreateDirStructure != nil && !*opt.CreateDirStructure {
			flatten[id] = true
		}
	}
	return moodle.SnapshotOptions{
		CourseIDs:          cfg.DownloadCourseIDs,
		RejectedCourseIDs:  cfg.DontDownloadCourseIDs,
		IncludeSubmissions: cfg.DownloadSubmissions,
		IncludeDatabases:   cfg.DownloadDatabases,
		CourseNames:        names,
		FlattenCourses:     flatten,
	}
}

// RunSummary is a run record shaped for JSON output.
type RunSummary struct {
	ID         string `json:"id"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`
	Status     string `json:"status"`
	New        int    `json:"new"`
	Modified   int    `json:"modified"`
	Moved      int    `json:"moved"`
	Deleted    int    `json:"deleted"`
	Failed     int    `json:"failed"`
}

func runSummary(r db.RunRecord) RunSummary {
	return RunSummary{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Status:     r.Status,
		New:        r.New,
		Modified:   r.Modified,
		Moved:      r.Moved,
		Deleted:    r.Deleted,
		Failed:     r.Failed,
	}
}
