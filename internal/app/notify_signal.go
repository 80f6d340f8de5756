package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// TouchNotifySignal writes "<revision> <unix-nanos>" to the signal file so fsnotify
// watchers in this or other processes see a change after each storage write.
// Creates parent dir and file if needed. An empty path is a no-op.
func TouchNotifySignal(signalPath string, revision uint64) error {
	if signalPath == "" {
		return nil
	}
	dir := filepath.Dir(signalPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create signal file dir: %w", err)
	}
	rev := strconv.FormatUint(revision, 10) + " " + strconv.FormatInt(time.Now().UnixNano(), 10)
	return os.WriteFile(signalPath, []byte(rev), 0644)
}
