package storage

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Publisher makes a finished clip retrievable and returns where from
type Publisher interface {
	Publish(ctx context.Context, jobID, path string) (string, error)
	Unpublish(ctx context.Context, jobID string) error
}

// ObjectStore is the subset of an object storage client used for publishing
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// LocalPublisher serves clips from the output directory under baseURL
type LocalPublisher struct {
	baseURL string
}

func NewLocalPublisher(baseURL string) *LocalPublisher {
	return &LocalPublisher{baseURL: baseURL}
}

func (p *LocalPublisher) Publish(_ context.Context, jobID, _ string) (string, error) {
	return fmt.Sprintf("%s/media/output/%s.mp4", p.baseURL, jobID), nil
}

func (p *LocalPublisher) Unpublish(context.Context, string) error {
	return nil
}

// ObjectPublisher uploads clips to object storage under clips/<jobID>.mp4
type ObjectPublisher struct {
	store ObjectStore
}

func NewObjectPublisher(store ObjectStore) *ObjectPublisher {
	return &ObjectPublisher{store: store}
}

func objectKey(jobID string) string {
	return fmt.Sprintf("clips/%s.mp4", jobID)
}

func (p *ObjectPublisher) Publish(ctx context.Context, jobID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	url, err := p.store.Upload(ctx, objectKey(jobID), f, "video/mp4")
	if err != nil {
		return "", fmt.Errorf("failed to publish clip: %w", err)
	}
	return url, nil
}

func (p *ObjectPublisher) Unpublish(ctx context.Context, jobID string) error {
	return p.store.Delete(ctx, objectKey(jobID))
}
