package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/moodlesync/moodlesync/internal/errors"
	"github.com/moodlesync/moodlesync/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db *sql.DB
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB) *Handlers {
	return &Handlers{db: db}
}

// Tool definitions

var courseListToolDef = mcp.NewTool("course_list",
	mcp.WithDescription("List every course the local mirror holds committed state for, with file counts and total sizes."),
)

var fileListToolDef = mcp.NewTool("file_list",
	mcp.WithDescription("List the committed file records of one mirrored course, ordered by local path."),
	mcp.WithNumber("course_id",
		mcp.Required(),
		mcp.Description("Remote course id, as returned by course_list."),
	),
)

var runListToolDef = mcp.NewTool("run_list",
	mcp.WithDescription("List recent sync runs with their change tallies, newest first."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of runs to return (default 20, max 100)."),
	),
)

// Request types for each tool

// FileListRequest represents the arguments for file_list.
type FileListRequest struct {
	CourseID int64 `json:"course_id"`
}

// RunListRequest represents the arguments for run_list.
type RunListRequest struct {
	Limit int `json:"limit,omitempty"`
}

// Handler implementations

// HandleCourseList handles the course_list tool call.
func (h *Handlers) HandleCourseList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.TrackedCourses(ctx, h.db)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFileList handles the file_list tool call.
func (h *Handlers) HandleFileList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FileListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.CourseID <= 0 {
		return errorResult(errors.NewInvalidRequest("course_id is required")), nil
	}

	result, err := ops.TrackedFiles(ctx, h.db, ops.TrackedFilesInput{
		CourseID: input.CourseID,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRunList handles the run_list tool call.
func (h *Handlers) HandleRunList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Limit < 0 {
		return errorResult(errors.NewInvalidRequest("limit must be non-negative")), nil
	}

	result, err := ops.Runs(ctx, h.db, ops.RunsInput{Limit: input.Limit})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if syncErr, ok := err.(*errors.SyncError); ok {
		errorObj := map[string]any{
			"code":    syncErr.Code,
			"message": syncErr.Message,
			"status":  syncErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if syncErr.Code != errors.ErrInternal && syncErr.Details != nil {
			errorObj["details"] = syncErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
