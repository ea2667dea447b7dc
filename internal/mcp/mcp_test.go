package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/moodlesync/moodlesync/internal/course"
	"github.com/moodlesync/moodlesync/internal/db"
	"github.com/moodlesync/moodlesync/internal/ops"
)

// testSetup creates a temporary database seeded with two committed courses
// and one run record.
func testSetup(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	state := []course.Course{
		{ID: 4, FullName: "Analysis I", Files: []course.File{
			{Key: "resource:1:script.pdf", ContentHash: "h1", Path: "Analysis I/script.pdf", Kind: course.KindContent, Size: 1000, ModifiedAt: 1700000000, ModuleType: "resource"},
			{Key: "resource:2:sheet01.pdf", ContentHash: "h2", Path: "Analysis I/sheet01.pdf", Kind: course.KindContent, Size: 200, ModifiedAt: 1700000100, ModuleType: "resource"},
		}},
		{ID: 9, FullName: "Databases", Files: []course.File{
			{Key: "data:3:entry/1/dump.sql", ContentHash: "h3", Path: "Databases/dump.sql", Kind: course.KindDatabase, Size: 50, ModifiedAt: 1700000200, ModuleType: "data"},
		}},
	}
	run := db.RunRecord{
		ID:         "01TESTRUN0000000000000000",
		StartedAt:  1700000000,
		FinishedAt: 1700000060,
		Status:     db.RunStatusOK,
		New:        3,
	}
	if err := db.CommitState(context.Background(), database, run, state); err != nil {
		t.Fatalf("failed to seed state: %v", err)
	}

	return database
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// decodeResult unmarshals a successful tool result's JSON text into out.
func decodeResult(t *testing.T, result *mcp.CallToolResult, out any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("unexpected error result: %v", result.Content)
	}
	text := result.Content[0].(mcp.TextContent).Text
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("failed to decode result %q: %v", text, err)
	}
}

// errorCode extracts the error code from an error result's JSON payload.
func errorCode(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if !result.IsError {
		t.Fatalf("expected error result, got success: %v", result.Content)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	text := result.Content[0].(mcp.TextContent).Text
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("failed to decode error payload %q: %v", text, err)
	}
	return payload.Error.Code
}

func TestHandleCourseList(t *testing.T) {
	database := testSetup(t)
	h := NewHandlers(database)

	result, err := h.HandleCourseList(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleCourseList returned error: %v", err)
	}

	var output ops.TrackedCoursesOutput
	decodeResult(t, result, &output)

	if output.Total != 2 {
		t.Errorf("Total = %d, want 2", output.Total)
	}
	if len(output.Courses) != 2 {
		t.Fatalf("len(Courses) = %d, want 2", len(output.Courses))
	}
	if output.Courses[0].FullName != "Analysis I" || output.Courses[0].FileCount != 2 {
		t.Errorf("Courses[0] = %+v, want Analysis I with 2 files", output.Courses[0])
	}
	if output.Courses[0].TotalSize != 1200 {
		t.Errorf("Courses[0].TotalSize = %d, want 1200", output.Courses[0].TotalSize)
	}
}

func TestHandleFileList(t *testing.T) {
	database := testSetup(t)
	h := NewHandlers(database)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
		wantFiles int
	}{
		{
			name:      "existing course",
			args:      map[string]any{"course_id": 4},
			wantFiles: 2,
		},
		{
			name:      "unknown course",
			args:      map[string]any{"course_id": 999},
			wantError: true,
			errorCode: "NOT_FOUND",
		},
		{
			name:      "missing course_id",
			args:      map[string]any{},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "negative course_id",
			args:      map[string]any{"course_id": -1},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleFileList(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("HandleFileList returned error: %v", err)
			}

			if tt.wantError {
				if code := errorCode(t, result); code != tt.errorCode {
					t.Errorf("error code = %q, want %q", code, tt.errorCode)
				}
				return
			}

			var output ops.TrackedFilesOutput
			decodeResult(t, result, &output)
			if output.Total != tt.wantFiles {
				t.Errorf("Total = %d, want %d", output.Total, tt.wantFiles)
			}
			paths := make([]string, 0, len(output.Files))
			for _, f := range output.Files {
				paths = append(paths, f.Path)
			}
			if !sort.StringsAreSorted(paths) {
				t.Errorf("files not ordered by path: %v", paths)
			}
		})
	}
}

func TestHandleRunList(t *testing.T) {
	database := testSetup(t)
	h := NewHandlers(database)
	ctx := context.Background()

	result, err := h.HandleRunList(ctx, makeRequest(map[string]any{"limit": 5}))
	if err != nil {
		t.Fatalf("HandleRunList returned error: %v", err)
	}

	var output ops.RunsOutput
	decodeResult(t, result, &output)

	if output.Total != 1 {
		t.Fatalf("Total = %d, want 1", output.Total)
	}
	run := output.Runs[0]
	if run.ID != "01TESTRUN0000000000000000" || run.Status != db.RunStatusOK || run.New != 3 {
		t.Errorf("run = %+v, want the seeded record", run)
	}

	result, err = h.HandleRunList(ctx, makeRequest(map[string]any{"limit": -1}))
	if err != nil {
		t.Fatalf("HandleRunList returned error: %v", err)
	}
	if code := errorCode(t, result); code != "INVALID_REQUEST" {
		t.Errorf("error code = %q, want INVALID_REQUEST", code)
	}
}

// Every registered tool def name matches its registry key, so clients see
// the same names the handlers are registered under.
func TestToolRegistryNames(t *testing.T) {
	for name, entry := range toolRegistry {
		if entry.def.Name != name {
			t.Errorf("tool %q has def name %q", name, entry.def.Name)
		}
	}
	if len(AllToolNames()) != len(toolRegistry) {
		t.Errorf("AllToolNames() length mismatch")
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	database := testSetup(t)
	s := NewServer(database, "test")
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
}
