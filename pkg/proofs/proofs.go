// Package proofs stores the payment-proof images members attach to instalments.
// Objects live only until an admin reviews the instalment.
package proofs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotImage = errors.New("proof must be a PNG, JPEG, GIF or WebP image")
	ErrTooLarge = errors.New("proof image is too large")
)

// Store saves and removes proof objects. A ref is whatever Save returned.
type Store interface {
	Save(ctx context.Context, memberID uuid.UUID, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
}

var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// sniff reads the first 512 bytes to check the content type and returns a reader
// that replays them, plus the detected MIME type and the extension to store under.
func sniff(r io.Reader) (body io.Reader, contentType, ext string, err error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", "", fmt.Errorf("read proof: %w", err)
	}
	head = head[:n]
	contentType = http.DetectContentType(head)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return nil, "", "", ErrNotImage
	}
	return io.MultiReader(bytes.NewReader(head), r), contentType, ext, nil
}

// objectName builds "<member>/<timestamp>_<uuid><ext>". The client filename is not trusted.
func objectName(memberID uuid.UUID, ext string) string {
	return path.Join(memberID.String(), fmt.Sprintf("%s_%s%s", time.Now().UTC().Format("20060102150405"), uuid.NewString(), ext))
}

// limitReader fails with ErrTooLarge once more than max bytes have been read.
type limitReader struct {
	r   io.Reader
	max int64
	n   int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.max > 0 && l.n > l.max {
		return n, ErrTooLarge
	}
	return n, err
}
