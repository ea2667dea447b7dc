package ops

import (
	"context"
	"database/sql"

	"github.com/moodlesync/moodlesync/internal/db"
)

// TrackedCourse is one mirrored course shaped for JSON output.
type TrackedCourse struct {
	ID        int64  `json:"id"`
	FullName  string `json:"full_name"`
	FileCount int    `json:"file_count"`
	TotalSize int64  `json:"total_size"`
}

// TrackedCoursesOutput contains the result of the tracked-courses operation.
type TrackedCoursesOutput struct {
	Courses []TrackedCourse `json:"courses"`
	Total   int             `json:"total"`
}

// TrackedCourses lists every course the mirror holds state for.
func TrackedCourses(ctx context.Context, database *sql.DB) (*TrackedCoursesOutput, error) {
	infos, err := db.ListCourses(ctx, database)
	if err != nil {
		return nil, err
	}

	out := &TrackedCoursesOutput{
		Courses: make([]TrackedCourse, 0, len(infos)),
		Total:   len(infos),
	}
	for _, info := range infos {
		out.Courses = append(out.Courses, trackedCourse(info))
	}
	return out, nil
}

// TrackedFilesInput contains parameters for the tracked-files operation.
type TrackedFilesInput struct {
	CourseID int64
}

// TrackedFile is one mirrored file shaped for JSON output.
type TrackedFile struct {
	Key        string `json:"key"`
	Path       string `json:"path"`
	Kind       string `json:"kind"`
	Size       int64  `json:"size"`
	ModifiedAt int64  `json:"modified_at"`
	ModuleType string `json:"module_type,omitempty"`
}

// TrackedFilesOutput contains the result of the tracked-files operation.
type TrackedFilesOutput struct {
	Course TrackedCourse `json:"course"`
	Files  []TrackedFile `json:"files"`
	Total  int           `json:"total"`
}

// TrackedFiles lists the committed records of one course, ordered by local
// path. Unknown course ids surface NOT_FOUND.
func TrackedFiles(ctx context.Context, database *sql.DB, input TrackedFilesInput) (*TrackedFilesOutput, error) {
	info, err := db.GetCourse(ctx, database, input.CourseID)
	if err != nil {
		return nil, err
	}

	files, err := db.ListFiles(ctx, database, input.CourseID)
	if err != nil {
		return nil, err
	}

	out := &TrackedFilesOutput{
		Course: trackedCourse(*info),
		Files:  make([]TrackedFile, 0, len(files)),
		Total:  len(files),
	}
	for _, f := range files {
		out.Files = append(out.Files, TrackedFile{
			Key:        f.Key,
			Path:       f.Path,
			Kind:       string(f.Kind),
			Size:       f.Size,
			ModifiedAt: f.ModifiedAt,
			ModuleType: f.ModuleType,
		})
	}
	return out, nil
}

func trackedCourse(info db.CourseInfo) TrackedCourse {
	return TrackedCourse{
		ID:        info.ID,
		FullName:  info.FullName,
		FileCount: info.FileCount,
		TotalSize: info.TotalSize,
	}
}
