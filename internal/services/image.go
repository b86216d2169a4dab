package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filter-explorer/internal/logger"
)

// MaxImageSize caps how much is read from a single image source.
const MaxImageSize = 64 << 20

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrImageTooLarge     = errors.New("image exceeds maximum size")
	ErrEmptyImage        = errors.New("image source is empty")
)

var supportedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// ImageService moves encoded image bytes between files and the session.
// It does not decode; the session validates what it is given.
type ImageService struct {
	logger logger.Logger
}

func NewImageService(log logger.Logger) *ImageService {
	if log == nil {
		log = logger.Nop()
	}
	return &ImageService{logger: log}
}

// SupportedExtensions lists the accepted file extensions, for file dialogs.
func SupportedExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp"}
}

// CheckExtension rejects names whose extension is not a known image format.
// Names without an extension are accepted.
func CheckExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || supportedExtensions[ext] {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

// ExportName returns name with a .png extension when it has none.
func ExportName(name string) string {
	if filepath.Ext(name) == "" {
		return name + ".png"
	}
	return name
}

// ReadImage reads the encoded image from reader and closes it.
func (is *ImageService) ReadImage(ctx context.Context, reader io.ReadCloser, name string) ([]byte, error) {
	defer reader.Close()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := CheckExtension(name); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := io.ReadAll(io.LimitReader(bufio.NewReader(reader), MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if len(data) > MaxImageSize {
		return nil, ErrImageTooLarge
	}

	is.logger.Debug("ImageService", "image read", map[string]interface{}{
		"name":       name,
		"size_bytes": len(data),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return data, nil
}

// WriteImage writes data verbatim to writer and closes it.
func (is *ImageService) WriteImage(ctx context.Context, writer io.WriteCloser, name string, data []byte) error {
	select {
	case <-ctx.Done():
		writer.Close()
		return ctx.Err()
	default:
	}

	if len(data) == 0 {
		writer.Close()
		return ErrEmptyImage
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize image: %w", err)
	}

	is.logger.Info("ImageService", "image exported", map[string]interface{}{
		"name":       name,
		"size_bytes": len(data),
	})
	return nil
}

// ReadFile reads an image from the local filesystem.
func (is *ImageService) ReadFile(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return is.ReadImage(ctx, f, path)
}

// WriteFile writes an image to the local filesystem.
func (is *ImageService) WriteFile(ctx context.Context, path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	return is.WriteImage(ctx, f, path, data)
}
