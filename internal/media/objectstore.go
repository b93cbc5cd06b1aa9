// Package media correlates images that arrive as separate chat messages
// into persistent media groups, moving the bytes from the chat platform
// into durable object storage along the way.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// ObjectStore is the durable storage for entity images. Uploads return a
// stable public URL; deletes accept the object path produced by ObjectPath.
type ObjectStore interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, objectPath string) (bool, error)
	Delete(ctx context.Context, objectPath string) error

	// PathFromURL maps a public URL previously returned by Upload back to
	// its object path. Returns false for URLs this store did not produce.
	PathFromURL(url string) (string, bool)
}

// ObjectPath builds the canonical object path for a community image.
func ObjectPath(communityID, fileID string) string {
	return communityID + "/" + fileID + ".jpg"
}

type gcsStore struct {
	bucket string
	client *storage.Client
}

// NewGCSStore creates an ObjectStore backed by a Google Cloud Storage
// bucket, using ambient application credentials.
func NewGCSStore(ctx context.Context, bucket string) (ObjectStore, error) {
	if bucket == "" {
		return nil, errors.New("storage bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &gcsStore{bucket: bucket, client: client}, nil
}

func (s *gcsStore) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := bytes.NewReader(data).WriteTo(w); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write object %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize object %s: %w", objectPath, err)
	}
	return s.publicURL(objectPath), nil
}

func (s *gcsStore) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(objectPath).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat object %s: %w", objectPath, err)
	}
	return true, nil
}

func (s *gcsStore) Delete(ctx context.Context, objectPath string) error {
	err := s.client.Bucket(s.bucket).Object(objectPath).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", objectPath, err)
	}
	return nil
}

func (s *gcsStore) publicURL(objectPath string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, objectPath)
}

func (s *gcsStore) PathFromURL(url string) (string, bool) {
	prefix := fmt.Sprintf("https://storage.googleapis.com/%s/", s.bucket)
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}
