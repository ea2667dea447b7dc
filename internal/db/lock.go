package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/moodlesync/moodlesync/internal/errors"
)

// LockFileName is the advisory lock file a running sync holds in the
// storage directory.
const LockFileName = "moodlesync.lock"

// AcquireLock takes the per-storage-directory sync lock and returns the
// release function. A second concurrent sync fails with a locked error
// naming the file, since a stale lock after a crash has to be removed by
// hand.
func AcquireLock(baseDir string) (func(), error) {
	path := filepath.Join(baseDir, LockFileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.NewLocked(path)
		}
		return nil, errors.NewInternal(err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()

	return func() { os.Remove(path) }, nil
}
