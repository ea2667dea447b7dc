package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/moodlesync/moodlesync/internal/course"
	"github.com/moodlesync/moodlesync/internal/errors"
)

// CourseInfo summarizes one mirrored course.
type CourseInfo struct {
	ID        int64
	FullName  string
	FileCount int
	TotalSize int64
}

// RunRecord is the stored outcome of one sync run.
type RunRecord struct {
	ID         string
	StartedAt  int64
	FinishedAt int64
	Status     string
	New        int
	Modified   int
	Moved      int
	Deleted    int
	Failed     int
}

// Run statuses.
const (
	RunStatusOK      = "ok"
	RunStatusPartial = "partial"
)

// LoadState reads the committed mirror state, ordered by course id and file
// key. Any failure to read or scan it is store corruption: the baseline
// cannot be trusted, and silently starting from an empty one would
// re-announce and re-download the whole mirror.
func LoadState(ctx context.Context, database *sql.DB) ([]course.Course, error) {
	courseRows, err := database.QueryContext(ctx, `
		SELECT id, full_name FROM courses ORDER BY id
	`)
	if err != nil {
		return nil, errors.NewStoreCorrupt(err)
	}
	defer courseRows.Close()

	var state []course.Course
	index := make(map[int64]int)
	for courseRows.Next() {
		var c course.Course
		if err := courseRows.Scan(&c.ID, &c.FullName); err != nil {
			return nil, errors.NewStoreCorrupt(err)
		}
		index[c.ID] = len(state)
		state = append(state, c)
	}
	if err := courseRows.Err(); err != nil {
		return nil, errors.NewStoreCorrupt(err)
	}

	fileRows, err := database.QueryContext(ctx, `
		SELECT course_id, file_key, content_hash, saved_as, kind, size,
			modified_at, module_type, module_name, file_url
		FROM files
		ORDER BY course_id, file_key
	`)
	if err != nil {
		return nil, errors.NewStoreCorrupt(err)
	}
	defer fileRows.Close()

	for fileRows.Next() {
		var (
			courseID   int64
			f          course.File
			kind       string
			moduleType sql.NullString
			moduleName sql.NullString
			fileURL    sql.NullString
		)
		err := fileRows.Scan(&courseID, &f.Key, &f.ContentHash, &f.Path, &kind,
			&f.Size, &f.ModifiedAt, &moduleType, &moduleName, &fileURL)
		if err != nil {
			return nil, errors.NewStoreCorrupt(err)
		}
		f.Kind = course.ContentKind(kind)
		f.ModuleType = moduleType.String
		f.ModuleName = moduleName.String
		f.FileURL = fileURL.String

		i, ok := index[courseID]
		if !ok {
			// Orphaned rows mean a torn write got committed somehow.
			return nil, errors.NewStoreCorrupt(fmt.Errorf("file row for unknown course %d", courseID))
		}
		state[i].Files = append(state[i].Files, f)
	}
	if err := fileRows.Err(); err != nil {
		return nil, errors.NewStoreCorrupt(err)
	}

	return state, nil
}

// CommitState records the run and replaces the state of every course in the
// new baseline, in one transaction. Courses absent from the slice keep their
// rows. Either everything lands or nothing does.
func CommitState(ctx context.Context, database *sql.DB, run RunRecord, courses []course.Course) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if err := applyState(ctx, tx, run, courses); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// applyState writes the run record and the per-course state onto tx without
// committing. Split out so tests can abandon the transaction to simulate a
// crash between write and finalize.
func applyState(ctx context.Context, tx *sql.Tx, run RunRecord, courses []course.Course) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_runs (
			id, started_at, finished_at, status,
			new_count, modified_count, moved_count, deleted_count, failed_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt, run.FinishedAt, run.Status,
		run.New, run.Modified, run.Moved, run.Deleted, run.Failed)
	if err != nil {
		return errors.NewInternal(err)
	}

	now := time.Now().Unix()
	for _, c := range courses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO courses (id, full_name) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET full_name = excluded.full_name
		`, c.ID, c.FullName); err != nil {
			return errors.NewInternal(err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE course_id = ?`, c.ID); err != nil {
			return errors.NewInternal(err)
		}

		for _, f := range c.Files {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO files (
					course_id, file_key, content_hash, saved_as, kind, size,
					modified_at, module_type, module_name, file_url, committed_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, c.ID, f.Key, f.ContentHash, f.Path, string(f.Kind), f.Size,
				f.ModifiedAt, toNullString(f.ModuleType), toNullString(f.ModuleName),
				toNullString(f.FileURL), now)
			if err != nil {
				return errors.NewInternal(err)
			}
		}
	}
	return nil
}

// ListCourses returns every tracked course with file count and total size,
// ordered by name.
func ListCourses(ctx context.Context, database *sql.DB) ([]CourseInfo, error) {
	rows, err := database.QueryContext(ctx, `
		SELECT c.id, c.full_name, COUNT(f.file_key), COALESCE(SUM(f.size), 0)
		FROM courses c
		LEFT JOIN files f ON f.course_id = c.id
		GROUP BY c.id
		ORDER BY c.full_name, c.id
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var infos []CourseInfo
	for rows.Next() {
		var info CourseInfo
		if err := rows.Scan(&info.ID, &info.FullName, &info.FileCount, &info.TotalSize); err != nil {
			return nil, errors.NewInternal(err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return infos, nil
}

// GetCourse returns one tracked course's summary.
func GetCourse(ctx context.Context, database *sql.DB, id int64) (*CourseInfo, error) {
	row := database.QueryRowContext(ctx, `
		SELECT c.id, c.full_name, COUNT(f.file_key), COALESCE(SUM(f.size), 0)
		FROM courses c
		LEFT JOIN files f ON f.course_id = c.id
		WHERE c.id = ?
		GROUP BY c.id
	`, id)

	var info CourseInfo
	err := row.Scan(&info.ID, &info.FullName, &info.FileCount, &info.TotalSize)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(fmt.Sprintf("course %d", id))
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &info, nil
}

// ListFiles returns a course's tracked files ordered by local path.
func ListFiles(ctx context.Context, database *sql.DB, courseID int64) ([]course.File, error) {
	rows, err := database.QueryContext(ctx, `
		SELECT file_key, content_hash, saved_as, kind, size, modified_at,
			module_type, module_name, file_url
		FROM files
		WHERE course_id = ?
		ORDER BY saved_as, file_key
	`, courseID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var files []course.File
	for rows.Next() {
		var (
			f          course.File
			kind       string
			moduleType sql.NullString
			moduleName sql.NullString
			fileURL    sql.NullString
		)
		err := rows.Scan(&f.Key, &f.ContentHash, &f.Path, &kind, &f.Size,
			&f.ModifiedAt, &moduleType, &moduleName, &fileURL)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		f.Kind = course.ContentKind(kind)
		f.ModuleType = moduleType.String
		f.ModuleName = moduleName.String
		f.FileURL = fileURL.String
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return files, nil
}

// RecentRuns returns the newest runs first, at most limit of them.
func RecentRuns(ctx context.Context, database *sql.DB, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := database.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status,
			new_count, modified_count, moved_count, deleted_count, failed_count
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status,
			&r.New, &r.Modified, &r.Moved, &r.Deleted, &r.Failed)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return runs, nil
}

// toNullString converts a string to sql.NullString, empty meaning NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
