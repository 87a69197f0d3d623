package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

type localUploader struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

// NewLocalUploader stores files under dir and serves them below baseURL
func NewLocalUploader(dir, baseURL string, logger *zap.Logger) (Uploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &localUploader{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}, nil
}

func (u *localUploader) Upload(ctx context.Context, name string, body io.Reader, mime string) (string, error) {
	filename := filepath.Base(name) + Extension(mime)

	f, err := os.CreateTemp(u.dir, ".upload-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, filepath.Join(u.dir, filename)); err != nil {
		return "", err
	}

	u.logger.Info("Media stored locally", zap.String("file", filename), zap.String("mime", mime))
	return u.baseURL + "/" + filename, nil
}
