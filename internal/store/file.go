package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"

	"github.com/clipsniper/api/internal/model"
)

// FileStore keeps one JSON file per job. Writes go to a temp file that is
// renamed into place.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create status dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(jobID string) (string, error) {
	if !model.ValidJobID(jobID) {
		return "", fmt.Errorf("%w: invalid job id %q", ErrNotFound, jobID)
	}
	return filepath.Join(s.dir, jobID+".json"), nil
}

func (s *FileStore) Put(_ context.Context, job *model.Job) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	path, err := s.path(job.ID)
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}

func (s *FileStore) Get(_ context.Context, jobID string) (*model.Job, error) {
	path, err := s.path(jobID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeJob(data)
}

func (s *FileStore) Delete(_ context.Context, jobID string) error {
	path, err := s.path(jobID)
	if err != nil {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns every readable record; corrupt files are skipped.
func (s *FileStore) List(ctx context.Context) ([]*model.Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var jobs []*model.Job
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		job, err := s.Get(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			log.Printf("Skipping status record %s: %v", name, err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
