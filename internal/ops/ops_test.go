package ops

import (
	"context"
	"database/sql"
	"testing"

	"github.com/moodlesync/moodlesync/internal/config"
	"github.com/moodlesync/moodlesync/internal/course"
	"github.com/moodlesync/moodlesync/internal/db"
)

// testDB creates a temporary state database.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// testConfig returns a configured config for testing.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Token = "test-token"
	cfg.MoodleDomain = "moodle.example.edu"
	return cfg
}

// seedState commits the given courses as the baseline.
func seedState(t *testing.T, database *sql.DB, state []course.Course) {
	t.Helper()
	run := db.RunRecord{ID: "01SEED", StartedAt: 1700000000, FinishedAt: 1700000060, Status: db.RunStatusOK}
	if err := db.CommitState(context.Background(), database, run, state); err != nil {
		t.Fatalf("failed to seed state: %v", err)
	}
}

func TestRules(t *testing.T) {
	cfg := testConfig()
	cfg.DownloadCourseIDs = []int64{1, 2}
	cfg.DontDownloadCourseIDs = []int64{3}
	cfg.DownloadSubmissions = true
	cfg.ExcludeFilePatterns = []string{"**/*.mp4"}

	rules := Rules(cfg)
	if len(rules.SelectedCourses) != 2 || len(rules.RejectedCourses) != 1 {
		t.Errorf("course lists = %v / %v, want the configured ids", rules.SelectedCourses, rules.RejectedCourses)
	}
	if !rules.IncludeSubmissions || rules.IncludeDescriptions || rules.IncludeDatabases {
		t.Errorf("toggles = %+v, want only submissions enabled", rules)
	}
	if len(rules.ExcludePatterns) != 1 {
		t.Errorf("ExcludePatterns = %v", rules.ExcludePatterns)
	}
}

func TestSnapshotOptions(t *testing.T) {
	flatten := false
	cfg := testConfig()
	cfg.DownloadCourseIDs = []int64{4}
	cfg.CourseOptions = map[string]config.CourseOptions{
		"4":   {OverwriteName: "Analysis", CreateDirStructure: &flatten},
		"bad": {OverwriteName: "ignored"},
	}

	opts := SnapshotOptions(cfg)
	if opts.CourseNames[4] != "Analysis" {
		t.Errorf("CourseNames[4] = %q, want Analysis", opts.CourseNames[4])
	}
	if !opts.FlattenCourses[4] {
		t.Error("FlattenCourses[4] = false, want true")
	}
	if len(opts.CourseNames) != 1 {
		t.Errorf("unparseable course id keys should be skipped, got %v", opts.CourseNames)
	}
}
