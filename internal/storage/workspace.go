// Package storage lays out job files on disk and publishes finished clips.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipsniper/api/internal/model"
)

var (
	ErrTooLarge  = errors.New("upload exceeds size limit")
	ErrInvalidID = errors.New("invalid job id")
)

// Workspace owns the data directory:
//
//	<root>/tmp/<jobID>/      uploaded inputs, removed when the job ends
//	<root>/output/<jobID>.mp4 finished clips, removed by cleanup
//	<root>/work/             assembler scratch space
type Workspace struct {
	root string
}

func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	w := &Workspace{root: abs}
	for _, dir := range []string{w.tmpRoot(), w.OutputDir(), w.WorkDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return w, nil
}

func (w *Workspace) Root() string      { return w.root }
func (w *Workspace) OutputDir() string { return filepath.Join(w.root, "output") }
func (w *Workspace) WorkDir() string   { return filepath.Join(w.root, "work") }
func (w *Workspace) tmpRoot() string   { return filepath.Join(w.root, "tmp") }

// JobDir is where the inputs of jobID live
func (w *Workspace) JobDir(jobID string) string {
	return filepath.Join(w.tmpRoot(), jobID)
}

// OutputPath is where the clip of jobID is written
func (w *Workspace) OutputPath(jobID string) string {
	return filepath.Join(w.OutputDir(), jobID+".mp4")
}

// SaveUpload copies r into the job directory as <kind><ext>. At most limit
// bytes are accepted; larger uploads are removed and ErrTooLarge returned.
func (w *Workspace) SaveUpload(jobID, kind, filename string, r io.Reader, limit int64) (string, error) {
	if !model.ValidJobID(jobID) {
		return "", ErrInvalidID
	}
	dir := w.JobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, kind+safeExt(filename))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// RemoveJobDir deletes the uploaded inputs of jobID
func (w *Workspace) RemoveJobDir(jobID string) error {
	if !model.ValidJobID(jobID) {
		return ErrInvalidID
	}
	return os.RemoveAll(w.JobDir(jobID))
}

// RemoveOutput deletes the clip of jobID if present
func (w *Workspace) RemoveOutput(jobID string) error {
	if !model.ValidJobID(jobID) {
		return ErrInvalidID
	}
	if err := os.Remove(w.OutputPath(jobID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
