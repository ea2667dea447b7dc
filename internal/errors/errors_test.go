package errors

import (
	"fmt"
	"testing"
)

func TestSyncError_Error(t *testing.T) {
	err := &SyncError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "not found: course 42",
	}

	expected := "NOT_FOUND: not found: course 42"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("course_id is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "course_id is required" {
		t.Errorf("Message = %q, want %q", err.Message, "course_id is required")
	}
}

func TestNewNotConfigured(t *testing.T) {
	err := NewNotConfigured("token")

	if err.Code != ErrNotConfigured {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotConfigured)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Details["key"] != "token" {
		t.Errorf("Details[key] = %v, want %q", err.Details["key"], "token")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("course 42")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "course 42" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "course 42")
	}
}

func TestNewLocked(t *testing.T) {
	err := NewLocked("/tmp/state/moodlesync.lock")

	if err.Code != ErrLocked {
		t.Errorf("Code = %q, want %q", err.Code, ErrLocked)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
	if err.Details["lock_path"] != "/tmp/state/moodlesync.lock" {
		t.Errorf("Details[lock_path] = %v", err.Details["lock_path"])
	}
}

func TestNewRequestRejected(t *testing.T) {
	err := NewRequestRejected("core_course_get_contents", "invalidtoken", "Invalid token - token not found")

	if err.Code != ErrRequestRejected {
		t.Errorf("Code = %q, want %q", err.Code, ErrRequestRejected)
	}
	if err.Status != 502 {
		t.Errorf("Status = %d, want 502", err.Status)
	}
	if err.Details["errorcode"] != "invalidtoken" {
		t.Errorf("Details[errorcode] = %v, want %q", err.Details["errorcode"], "invalidtoken")
	}
	if err.Details["wsfunction"] != "core_course_get_contents" {
		t.Errorf("Details[wsfunction] = %v", err.Details["wsfunction"])
	}
}

func TestNewFetchFailed(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewFetchFailed("core_enrol_get_users_courses", cause)

	if err.Code != ErrFetchFailed {
		t.Errorf("Code = %q, want %q", err.Code, ErrFetchFailed)
	}
	if err.Status != 502 {
		t.Errorf("Status = %d, want 502", err.Status)
	}
	if err.Message != "connection refused" {
		t.Errorf("Message = %q, want %q", err.Message, "connection refused")
	}
}

func TestNewDiffInconsistent(t *testing.T) {
	err := NewDiffInconsistent(7, "resource:12:/a.pdf", []string{"C/a.pdf", "C/b.pdf"})

	if err.Code != ErrDiffInconsistent {
		t.Errorf("Code = %q, want %q", err.Code, ErrDiffInconsistent)
	}
	if err.Details["course_id"] != int64(7) {
		t.Errorf("Details[course_id] = %v, want 7", err.Details["course_id"])
	}
	if err.Details["key"] != "resource:12:/a.pdf" {
		t.Errorf("Details[key] = %v", err.Details["key"])
	}
	if paths, ok := err.Details["paths"].([]string); !ok || len(paths) != 2 {
		t.Errorf("Details[paths] = %v, want two competing paths", err.Details["paths"])
	}
}

func TestNewStoreCorrupt(t *testing.T) {
	err := NewStoreCorrupt(fmt.Errorf("file is not a database"))

	if err.Code != ErrStoreCorrupt {
		t.Errorf("Code = %q, want %q", err.Code, ErrStoreCorrupt)
	}
	if err.Status != 500 {
		t.Errorf("Status = %d, want 500", err.Status)
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		originalErr := fmt.Errorf("database connection failed")
		err := NewInternal(originalErr)

		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Status != 500 {
			t.Errorf("Status = %d, want 500", err.Status)
		}
		// Message should be generic (not leak internal details)
		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		// Original error should be stored in Details for logging
		if err.Details["internal_error"] != "database connection failed" {
			t.Errorf("Details[internal_error] = %q, want %q", err.Details["internal_error"], "database connection failed")
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewInternal(nil)

		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		// Details should be empty but not nil
		if err.Details == nil {
			t.Error("Details should not be nil")
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		err := NewNotFound("test")
		if !Is(err, ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		err := NewNotFound("test")
		if Is(err, ErrLocked) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("non-SyncError", func(t *testing.T) {
		err := fmt.Errorf("plain error")
		if Is(err, ErrNotFound) {
			t.Error("Is() = true, want false for non-SyncError")
		}
	})

	t.Run("wrapped SyncError", func(t *testing.T) {
		inner := NewStoreCorrupt(fmt.Errorf("bad header"))
		wrapped := fmt.Errorf("load state: %w", inner)
		if !Is(wrapped, ErrStoreCorrupt) {
			t.Error("Is() = false, want true for wrapped SyncError")
		}
		if Is(wrapped, ErrNotFound) {
			t.Error("Is() = true, want false for wrong code on wrapped SyncError")
		}
	})
}
