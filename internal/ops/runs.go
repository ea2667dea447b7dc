package ops

import (
	"context"
	"database/sql"

	"github.com/moodlesync/moodlesync/internal/db"
)

// RunsInput contains parameters for the run-history operation.
type RunsInput struct {
	// Limit caps the number of runs returned, newest first.
	// Zero means DefaultRunsLimit.
	Limit int
}

// RunsOutput contains the result of the run-history operation.
type RunsOutput struct {
	Runs  []RunSummary `json:"runs"`
	Total int          `json:"total"`
}

// Runs lists recent sync runs, newest first.
func Runs(ctx context.Context, database *sql.DB, input RunsInput) (*RunsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultRunsLimit
	}
	if limit > MaxRunsLimit {
		limit = MaxRunsLimit
	}

	records, err := db.RecentRuns(ctx, database, limit)
	if err != nil {
		return nil, err
	}

	out := &RunsOutput{
		Runs:  make([]RunSummary, 0, len(records)),
		Total: len(records),
	}
	for _, r := range records {
		out.Runs = append(out.Runs, runSummary(r))
	}
	return out, nil
}
