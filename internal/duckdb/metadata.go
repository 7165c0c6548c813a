package duckdb

import (
	"os"
	"time"
)

// FileFingerprint holds stat-based identity for the input file of a run.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file. The modification
// time is truncated to the microsecond precision of a DuckDB TIMESTAMP.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime().UTC().Truncate(time.Microsecond),
	}, nil
}

// Matches reports whether the file still has the recorded size and
// modification time.
func (fp FileFingerprint) Matches(other FileFingerprint) bool {
	return fp.Path == other.Path && fp.Size == other.Size && fp.ModTime.Equal(other.ModTime)
}
