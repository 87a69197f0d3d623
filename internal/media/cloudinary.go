package media

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"
)

type cloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
	logger *zap.Logger
}

// NewCloudinaryUploader creates an Uploader from a cloudinary:// URL
func NewCloudinaryUploader(cloudURL, folder string, logger *zap.Logger) (Uploader, error) {
	cld, err := cloudinary.NewFromURL(cloudURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init cloudinary: %w", err)
	}
	return &cloudinaryUploader{cld: cld, folder: folder, logger: logger}, nil
}

func (u *cloudinaryUploader) Upload(ctx context.Context, name string, body io.Reader, mime string) (string, error) {
	result, err := u.cld.Upload.Upload(ctx, body, uploader.UploadParams{
		PublicID:     name,
		Folder:       u.folder,
		ResourceType: "auto",
	})
	if err != nil {
		return "", err
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary: %s", result.Error.Message)
	}

	u.logger.Info("Media uploaded to cloudinary",
		zap.String("public_id", result.PublicID),
		zap.String("mime", mime),
	)
	return result.SecureURL, nil
}
