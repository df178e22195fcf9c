// Package store persists clip job status records.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clipsniper/api/internal/model"
)

var (
	ErrNotFound = errors.New("status record not found")
	ErrCorrupt  = errors.New("status record corrupt")
)

// StatusStore is durable per-job status. Readers never observe a partially
// written record.
type StatusStore interface {
	Put(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, jobID string) (*model.Job, error)
	Delete(ctx context.Context, jobID string) error
	List(ctx context.Context) ([]*model.Job, error)
}

func encodeJob(job *model.Job) ([]byte, error) {
	if !model.ValidJobID(job.ID) {
		return nil, fmt.Errorf("invalid job id %q", job.ID)
	}
	return json.Marshal(job)
}

func decodeJob(data []byte) (*model.Job, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty record", ErrCorrupt)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if job.ID == "" || !job.State.Valid() {
		return nil, fmt.Errorf("%w: missing id or state", ErrCorrupt)
	}
	return &job, nil
}
