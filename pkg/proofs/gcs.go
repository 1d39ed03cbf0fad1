package proofs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// GCSStore keeps proofs in a Google Cloud Storage bucket. Refs are gs:// URIs.
// It uses Application Default Credentials.
type GCSStore struct {
	client   *storage.Client
	bucket   string
	maxBytes int64
}

var _ Store = (*GCSStore)(nil)

func NewGCSStore(ctx context.Context, bucket string, maxBytes int64) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, maxBytes: maxBytes}, nil
}

func (s *GCSStore) Save(ctx context.Context, memberID uuid.UUID, filename string, r io.Reader) (string, error) {
	body, contentType, ext, err := sniff(r)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	name := "proofs/" + objectName(memberID, ext)
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"original_filename": filename, "member_id": memberID.String()}

	if _, err := io.Copy(w, &limitReader{r: body, max: s.maxBytes}); err != nil {
		// Cancelling the context before Close aborts the upload.
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("copy proof to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize proof upload: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

func (s *GCSStore) Delete(ctx context.Context, ref string) error {
	bucket, object, err := parseGCSURI(ref)
	if err != nil {
		return err
	}
	err = s.client.Bucket(bucket).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete proof %q: %w", ref, err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func parseGCSURI(uri string) (string, string, error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
