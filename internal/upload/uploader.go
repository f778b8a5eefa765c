package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/aceplus/internal/gateway"
	"github.com/pavelanni/aceplus/internal/model"
)

const (
	uploadEndpoint  = "api/upload_images"
	previewEndpoint = "api/uploads/"

	previewConcurrency = 4
	// previewPattern matches the files fetchPreview creates.
	previewPattern = "preview-*"
)

// ErrNoFilesReturned means the server accepted the request but stored nothing.
var ErrNoFilesReturned = errors.New("server accepted no images")

// Config controls an Uploader. An empty PreviewDir disables previews.
type Config struct {
	MaxSize    int64
	PreviewDir string
}

// Uploader sends validated batches through the gateway.
type Uploader struct {
	gw  *gateway.Client
	cfg Config
}

// NewUploader returns an Uploader using gw.
func NewUploader(gw *gateway.Client, cfg Config) *Uploader {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = MaxFileSize
	}
	return &Uploader{gw: gw, cfg: cfg}
}

type uploadResponse struct {
	Message string   `json:"message"`
	Files   []string `json:"files"`
}

// Upload validates files, posts them and fetches a local preview of each
// accepted image. The result follows the server's order. A preview that
// cannot be fetched leaves LocalPath empty.
func (u *Uploader) Upload(ctx context.Context, files []File) ([]model.UploadedImage, error) {
	payload, err := BuildPayload(files, u.cfg.MaxSize)
	if err != nil {
		return nil, err
	}

	var resp uploadResponse
	_, err = u.gw.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Endpoint:  uploadEndpoint,
		Multipart: payload,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Files) == 0 {
		return nil, ErrNoFilesReturned
	}
	slog.Info("images uploaded", "count", len(resp.Files))

	images := make([]model.UploadedImage, len(resp.Files))
	for i, name := range resp.Files {
		images[i].Filename = name
	}
	if u.cfg.PreviewDir == "" {
		return images, nil
	}
	if err := os.MkdirAll(u.cfg.PreviewDir, 0o755); err != nil {
		slog.Warn("preview dir unavailable", "dir", u.cfg.PreviewDir, "error", err)
		return images, nil
	}

	var g errgroup.Group
	g.SetLimit(previewConcurrency)
	for i := range images {
		g.Go(func() error {
			path, err := u.fetchPreview(ctx, images[i].Filename)
			if err != nil {
				slog.Warn("preview fetch failed", "filename", images[i].Filename, "error", err)
				return nil
			}
			images[i].LocalPath = path
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		removePreviews(images)
		return nil, err
	}
	return images, nil
}

// fetchPreview downloads one uploaded image into the preview directory.
func (u *Uploader) fetchPreview(ctx context.Context, filename string) (string, error) {
	resp, err := u.gw.Do(ctx, gateway.Request{
		Endpoint: previewEndpoint + url.PathEscape(filename),
		Header:   http.Header{"Accept": {"image/*"}},
	}, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	f, err := os.CreateTemp(u.cfg.PreviewDir, previewPattern+"-"+filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("create preview file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write preview: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func removePreviews(images []model.UploadedImage) {
	for _, img := range images {
		if img.LocalPath != "" {
			os.Remove(img.LocalPath)
		}
	}
}
