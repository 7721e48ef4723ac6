// Package snapshot writes alert frames to disk.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when there is nothing to save.
var ErrEmptyFrame = errors.New("empty frame")

// Saver persists a frame and returns where it was written. An empty path
// with a nil error means saving is disabled.
type Saver interface {
	Save(frame *gocv.Mat, at time.Time) (string, error)
}

// New returns a JPEG saver for dir, or a Noop saver when disabled.
func New(enabled bool, dir string) Saver {
	if !enabled || dir == "" {
		return Noop{}
	}
	return &FileSaver{dir: dir}
}

// Noop discards frames.
type Noop struct{}

// Save does nothing.
func (Noop) Save(*gocv.Mat, time.Time) (string, error) { return "", nil }

// FileSaver writes frames as JPEG files into a directory created on demand.
type FileSaver struct {
	dir string
}

// Dir returns the snapshot directory.
func (s *FileSaver) Dir() string { return s.dir }

// Save writes frame to people_YYYYMMDD_HHMMSS_mmm.jpg.
func (s *FileSaver) Save(frame *gocv.Mat, at time.Time) (string, error) {
	if frame == nil || frame.Empty() {
		return "", ErrEmptyFrame
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}

	path := filepath.Join(s.dir, FileName(at))
	if ok := gocv.IMWrite(path, *frame); !ok {
		return "", fmt.Errorf("write snapshot %s", path)
	}

	log.WithField("path", path).Info("Snapshot saved")
	return path, nil
}

// FileName returns the snapshot file name for t.
func FileName(t time.Time) string {
	return fmt.Sprintf("people_%s_%03d.jpg", t.Format("20060102_150405"), t.Nanosecond()/int(time.Millisecond))
}
