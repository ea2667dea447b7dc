package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/moodlesync/moodlesync/internal/config"
	"github.com/moodlesync/moodlesync/internal/course"
	"github.com/moodlesync/moodlesync/internal/db"
	"github.com/moodlesync/moodlesync/internal/diff"
	"github.com/moodlesync/moodlesync/internal/download"
	"github.com/moodlesync/moodlesync/internal/errors"
	"github.com/moodlesync/moodlesync/internal/filter"
	"github.com/moodlesync/moodlesync/internal/moodle"
	"github.com/moodlesync/moodlesync/internal/notify"
)

// Downloader applies a change set to the local mirror.
type Downloader interface {
	Execute(ctx context.Context, set course.ChangeSet) []download.Result
}

// SyncDeps are the collaborators a sync run needs. Tests substitute fakes.
type SyncDeps struct {
	Fetcher    moodle.Fetcher
	Downloader Downloader
	Notifiers  []notify.Notifier
	Logger     *slog.Logger
	BaseDir    string
}

// SyncInput contains parameters for the sync operation.
type SyncInput struct {
	// DryRun reports changes without downloading or committing.
	DryRun bool

	// SkipDownloads commits the new state without touching local files.
	SkipDownloads bool
}

// SyncFailure is one file that could not be brought up to date.
type SyncFailure struct {
	Course string `json:"course"`
	Path   string `json:"path"`
	Error  string `json:"error"`
}

// SyncOutput contains the result of the sync operation.
type SyncOutput struct {
	RunID    string        `json:"run_id,omitempty"`
	DryRun   bool          `json:"dry_run,omitempty"`
	New      int           `json:"new"`
	Modified int           `json:"modified"`
	Moved    int           `json:"moved"`
	Deleted  int           `json:"deleted"`
	Failed   int           `json:"failed"`
	Failures []SyncFailure `json:"failures,omitempty"`
}

// Sync runs one full pipeline: load the committed baseline, fetch a fresh
// snapshot, diff, filter, apply the changes to the mirror, report them, and
// commit the surviving state. The run lock serializes concurrent invocations;
// a dry run stops after reporting and leaves the store untouched.
func Sync(ctx context.Context, database *sql.DB, cfg *config.Config, deps SyncDeps, input SyncInput) (*SyncOutput, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Configured() {
		return nil, errors.NewNotConfigured("token")
	}

	release, err := db.AcquireLock(deps.BaseDir)
	if err != nil {
		return nil, err
	}
	defer release()

	startedAt := time.Now()

	old, err := db.LoadState(ctx, database)
	if err != nil {
		return nil, err
	}

	snapshot, err := deps.Fetcher.FetchSnapshot(ctx, SnapshotOptions(cfg))
	if err != nil {
		return nil, err
	}

	set, err := diff.Changes(old, snapshot)
	if err != nil {
		return nil, err
	}

	rules := Rules(cfg)
	filtered := filter.Apply(set, rules)
	tally := filtered.Tally()
	logger.Info("reconciled",
		"courses", len(snapshot),
		"new", tally.New, "modified", tally.Modified,
		"moved", tally.Moved, "deleted", tally.Deleted)

	var results []download.Result
	switch {
	case input.DryRun:
		logger.Info("dry run, skipping downloads")
	case input.SkipDownloads || deps.Downloader == nil:
		logger.Info("downloads skipped", "changes", tally.Total())
	default:
		results = deps.Downloader.Execute(ctx, filtered)
	}
	failures := download.Failures(results)

	notifyFailures := make([]notify.Failure, 0, len(failures))
	for _, r := range failures {
		notifyFailures = append(notifyFailures, notify.Failure{
			CourseName: r.CourseName,
			Path:       r.Change.File.Path,
			Err:        r.Err,
		})
	}
	for _, n := range deps.Notifiers {
		if err := n.NotifyChanges(filtered, notifyFailures); err != nil {
			logger.Warn("notifier failed", "error", err)
		}
	}

	out := &SyncOutput{
		DryRun:   input.DryRun,
		New:      tally.New,
		Modified: tally.Modified,
		Moved:    tally.Moved,
		Deleted:  tally.Deleted,
		Failed:   len(failures),
	}
	for _, r := range failures {
		out.Failures = append(out.Failures, SyncFailure{
			Course: r.CourseName,
			Path:   r.Change.File.Path,
			Error:  r.Err.Error(),
		})
	}
	if input.DryRun {
		return out, nil
	}

	runID, err := generateRunID()
	if err != nil {
		return nil, err
	}
	status := db.RunStatusOK
	if len(failures) > 0 {
		status = db.RunStatusPartial
	}
	run := db.RunRecord{
		ID:         runID,
		StartedAt:  startedAt.Unix(),
		FinishedAt: time.Now().Unix(),
		Status:     status,
		New:        tally.New,
		Modified:   tally.Modified,
		Moved:      tally.Moved,
		Deleted:    tally.Deleted,
		Failed:     len(failures),
	}
	if err := db.CommitState(ctx, database, run, commitState(snapshot, old, rules, failures)); err != nil {
		return nil, err
	}
	out.RunID = runID
	logger.Info("run committed", "run_id", runID, "status", status)
	return out, nil
}

// commitState assembles the baseline to commit: the filtered snapshot, with
// every failed file rolled back to its previous record so the next run
// detects it again. A failed new file has no previous record and simply
// stays out of the baseline.
func commitState(snapshot, old []course.Course, rules filter.Rules, failures []download.Result) []course.Course {
	failed := make(map[int64]map[string]bool)
	for _, r := range failures {
		if failed[r.CourseID] == nil {
			failed[r.CourseID] = make(map[string]bool)
		}
		failed[r.CourseID][r.Change.File.Key] = true
	}

	previous := make(map[int64]map[string]course.File)
	for _, c := range old {
		byKey := make(map[string]course.File, len(c.Files))
		for _, f := range c.Files {
			byKey[f.Key] = f
		}
		previous[c.ID] = byKey
	}

	state := filter.Files(snapshot, rules)
	for i, c := range state {
		bad := failed[c.ID]
		if len(bad) == 0 {
			continue
		}
		kept := make([]course.File, 0, len(c.Files))
		for _, f := range c.Files {
			if !bad[f.Key] {
				kept = append(kept, f)
				continue
			}
			if prev, ok := previous[c.ID][f.Key]; ok {
				kept = append(kept, prev)
			}
		}
		state[i].Files = kept
	}
	return state
}

func generateRunID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return id.String(), nil
}
