// Package media forwards uploaded images to the cloud media host and hands
// back the public URL to store. Nothing is written to local disk.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/safar/storefront/internal/config"
)

const MaxImageSize = 5 * 1024 * 1024

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
	ErrUnavailable     = errors.New("media storage is not configured")
)

var imageTypeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader stores a file under folder and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, folder string, file File) (string, error)
}

// ValidateImage accepts common web image formats up to MaxImageSize. The
// declared content type is trusted only when it agrees with the extension.
func ValidateImage(file File) error {
	if file.Size > MaxImageSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, file.Size, MaxImageSize)
	}

	want, ok := imageTypeByExt[strings.ToLower(filepath.Ext(file.Name))]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, file.Name)
	}
	if ct := strings.ToLower(strings.TrimSpace(file.ContentType)); ct != "" && ct != "application/octet-stream" && ct != want {
		return fmt.Errorf("%w: %s declared as %s", ErrUnsupportedType, file.Name, file.ContentType)
	}
	return nil
}

type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinary(cfg config.MediaConfig) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("create cloudinary client: %w", err)
	}
	return &Cloudinary{cld: cld}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, folder string, file File) (string, error) {
	if err := ValidateImage(file); err != nil {
		return "", err
	}

	resp, err := c.cld.Upload.Upload(ctx, file.Body, uploader.UploadParams{
		Folder:       folder,
		PublicID:     uuid.NewString(),
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", file.Name, err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("upload %s: %s", file.Name, resp.Error.Message)
	}
	if resp.SecureURL == "" {
		return "", fmt.Errorf("upload %s: empty url in response", file.Name)
	}

	return resp.SecureURL, nil
}

// Disabled rejects every upload; it stands in when no credentials are set.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, File) (string, error) {
	return "", ErrUnavailable
}
