package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moodlesync/moodlesync/internal/errors"
)

func TestAcquireLock(t *testing.T) {
	tmpDir := t.TempDir()

	release, err := AcquireLock(tmpDir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	lockPath := filepath.Join(tmpDir, LockFileName)
	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("lock file unreadable: %v", err)
	}
	if !strings.ContainsAny(string(data), "0123456789") {
		t.Errorf("lock file content = %q, want a pid", data)
	}

	release()
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("lock file still present after release")
	}
}

func TestAcquireLock_SecondAcquireFails(t *testing.T) {
	tmpDir := t.TempDir()

	release, err := AcquireLock(tmpDir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	defer release()

	_, err = AcquireLock(tmpDir)
	if err == nil {
		t.Fatal("second AcquireLock succeeded while locked")
	}
	if !errors.Is(err, errors.ErrLocked) {
		t.Errorf("error = %v, want LOCKED", err)
	}
}

func TestAcquireLock_ReleaseAllowsReacquire(t *testing.T) {
	tmpDir := t.TempDir()

	release, err := AcquireLock(tmpDir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	release()

	release2, err := AcquireLock(tmpDir)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	release2()
}
