package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a moodlesync error category.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotConfigured    ErrorCode = "NOT_CONFIGURED"    // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrLocked           ErrorCode = "LOCKED"            // 409
	ErrRequestRejected  ErrorCode = "REQUEST_REJECTED"  // 502
	ErrFetchFailed      ErrorCode = "FETCH_FAILED"      // 502
	ErrDiffInconsistent ErrorCode = "DIFF_INCONSISTENT" // 500
	ErrStoreCorrupt     ErrorCode = "STORE_CORRUPT"     // 500
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// SyncError is a structured error with code, status, and details.
type SyncError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid parameters.
func NewInvalidRequest(msg string) *SyncError {
	return &SyncError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotConfigured creates a 400 error for a missing required setting.
func NewNotConfigured(key string) *SyncError {
	return &SyncError{
		Code:    ErrNotConfigured,
		Status:  400,
		Message: fmt.Sprintf("%s is not configured; run 'moodlesync init' first", key),
		Details: map[string]any{"key": key},
	}
}

// NewNotFound creates a 404 error for a missing course or file.
func NewNotFound(identifier string) *SyncError {
	return &SyncError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewLocked creates a 409 error when another run holds the sync lock.
func NewLocked(lockPath string) *SyncError {
	return &SyncError{
		Code:    ErrLocked,
		Status:  409,
		Message: fmt.Sprintf("another sync appears to be running; delete %s if that is not the case", lockPath),
		Details: map[string]any{"lock_path": lockPath},
	}
}

// NewRequestRejected creates a 502 error for a webservice exception response.
func NewRequestRejected(wsfunction, errorcode, msg string) *SyncError {
	return &SyncError{
		Code:    ErrRequestRejected,
		Status:  502,
		Message: fmt.Sprintf("%s rejected: %s", wsfunction, msg),
		Details: map[string]any{"wsfunction": wsfunction, "errorcode": errorcode},
	}
}

// NewFetchFailed creates a 502 error for a transport or decode failure.
// The store is never touched after this error; the run simply aborts.
func NewFetchFailed(wsfunction string, err error) *SyncError {
	msg := "fetch failed"
	if err != nil {
		msg = err.Error()
	}
	return &SyncError{
		Code:    ErrFetchFailed,
		Status:  502,
		Message: msg,
		Details: map[string]any{"wsfunction": wsfunction},
	}
}

// NewDiffInconsistent creates an error for a duplicate file key within one
// course of a snapshot. This is malformed upstream data: the run aborts
// before commit rather than guessing which file to keep.
func NewDiffInconsistent(courseID int64, key string, paths []string) *SyncError {
	return &SyncError{
		Code:    ErrDiffInconsistent,
		Status:  500,
		Message: fmt.Sprintf("duplicate file key %q in course %d", key, courseID),
		Details: map[string]any{"course_id": courseID, "key": key, "paths": paths},
	}
}

// NewStoreCorrupt creates an error for an unreadable state database.
// Never downgraded to an empty baseline: that would reclassify every remote
// file as new and silently forget every deletion.
func NewStoreCorrupt(err error) *SyncError {
	msg := "state database is corrupt"
	if err != nil {
		msg = err.Error()
	}
	return &SyncError{
		Code:    ErrStoreCorrupt,
		Status:  500,
		Message: fmt.Sprintf("state database unreadable: %s; restore it from a backup or delete it to resynchronize from scratch", msg),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging so
// SQL errors and file paths do not leak into tool output.
func NewInternal(err error) *SyncError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &SyncError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error is (or wraps) a SyncError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *SyncError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}
