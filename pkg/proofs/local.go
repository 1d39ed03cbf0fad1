package proofs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore keeps proofs under a directory on disk.
type LocalStore struct {
	dir      string
	maxBytes int64
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(dir string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create proof dir %q: %w", dir, err)
	}
	return &LocalStore{dir: dir, maxBytes: maxBytes}, nil
}

func (s *LocalStore) Save(ctx context.Context, memberID uuid.UUID, filename string, r io.Reader) (string, error) {
	body, _, ext, err := sniff(r)
	if err != nil {
		return "", err
	}

	ref := objectName(memberID, ext)
	dst := filepath.Join(s.dir, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create member proof dir: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create proof file: %w", err)
	}

	_, copyErr := io.Copy(f, &limitReader{r: body, max: s.maxBytes})
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(dst)
		if copyErr != nil {
			return "", fmt.Errorf("write proof file: %w", copyErr)
		}
		return "", fmt.Errorf("close proof file: %w", closeErr)
	}
	return ref, nil
}

// Delete removes the proof. A missing file is not an error.
func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("invalid proof ref %q", ref)
	}
	if err := os.Remove(filepath.Join(s.dir, clean)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete proof %q: %w", ref, err)
	}
	return nil
}

// Close is a no-op; it lets LocalStore stand in wherever a GCSStore is closed.
func (s *LocalStore) Close() error { return nil }
