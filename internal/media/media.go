// Package media validates and stores uploaded banner and product media.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"storefront/internal/domain"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MaxImageBytes int64 = 5 << 20
	MaxVideoBytes int64 = 10 << 20
)

var (
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrMediaTooLarge    = errors.New("media exceeds the size limit")
)

var allowed = map[string]domain.MediaType{
	"image/jpeg": domain.MediaImage,
	"image/png":  domain.MediaImage,
	"image/webp": domain.MediaImage,
	"image/gif":  domain.MediaGIF,
	"video/mp4":  domain.MediaVideo,
	"video/webm": domain.MediaVideo,
}

// Classify checks the MIME type against the allow-list and the size
// against the ceiling for its kind.
func Classify(mime string, size int64) (domain.MediaType, error) {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	kind, ok := allowed[base]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, base)
	}

	limit := MaxImageBytes
	if kind == domain.MediaVideo {
		limit = MaxVideoBytes
	}
	if size > limit {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrMediaTooLarge, size, limit)
	}
	return kind, nil
}

// Detect sniffs the content type and rewinds the reader
func Detect(r io.ReadSeeker) (string, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to detect media type: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}
	return mtype.String(), nil
}

// Extension returns the file extension registered for a MIME type
func Extension(mime string) string {
	if m := mimetype.Lookup(mime); m != nil {
		return m.Extension()
	}
	return ""
}

// Uploaded describes a stored file
type Uploaded struct {
	URL  string           `json:"url"`
	MIME string           `json:"mime"`
	Kind domain.MediaType `json:"kind"`
	Size int64            `json:"size"`
}

// Uploader stores media and returns its public URL
type Uploader interface {
	Upload(ctx context.Context, name string, body io.Reader, mime string) (string, error)
}

// Store validates and uploads one file
func Store(ctx context.Context, uploader Uploader, name string, body io.ReadSeeker, size int64) (*Uploaded, error) {
	mime, err := Detect(body)
	if err != nil {
		return nil, err
	}
	kind, err := Classify(mime, size)
	if err != nil {
		return nil, err
	}
	url, err := uploader.Upload(ctx, name, body, mime)
	if err != nil {
		return nil, fmt.Errorf("failed to upload media: %w", err)
	}
	return &Uploaded{URL: url, MIME: mime, Kind: kind, Size: size}, nil
}
