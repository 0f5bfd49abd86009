package local

import (
	"os"

	"sunbeam/pkg/logging"
)

// LeaderFile answers leadership queries from the presence of a marker file.
// The substrate guarantees at most one instance holds the marker; locally a
// single instance simply owns it.
type LeaderFile struct {
	path string
}

// NewLeaderFile creates a leadership checker on the given marker path.
func NewLeaderFile(path string) *LeaderFile {
	return &LeaderFile{path: path}
}

// IsLeader reports whether the marker file exists.
func (l *LeaderFile) IsLeader() bool {
	_, err := os.Stat(l.path)
	if err != nil && !os.IsNotExist(err) {
		logging.Warn("LeaderFile", "Failed to stat leader marker %s: %v", l.path, err)
	}
	return err == nil
}

// Acquire creates the marker file, claiming leadership for this instance.
func (l *LeaderFile) Acquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}
