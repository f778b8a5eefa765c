package upload

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pavelanni/aceplus/internal/model"
)

// Gallery holds uploaded images in upload order until generation starts.
// It owns the local previews and deletes them on Remove and Release.
type Gallery struct {
	mu     sync.Mutex
	images []model.UploadedImage
}

// Add appends images.
func (g *Gallery) Add(images ...model.UploadedImage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.images = append(g.images, images...)
}

// Remove drops the image with the given server filename. It reports whether
// the image was present.
func (g *Gallery) Remove(filename string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, img := range g.images {
		if img.Filename != filename {
			continue
		}
		if img.LocalPath != "" {
			os.Remove(img.LocalPath)
		}
		g.images = append(g.images[:i], g.images[i+1:]...)
		return true
	}
	return false
}

// Images returns a copy of the held images.
func (g *Gallery) Images() []model.UploadedImage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.UploadedImage, len(g.images))
	copy(out, g.images)
	return out
}

// Filenames returns the server filenames in order, ready for a generation job.
func (g *Gallery) Filenames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, len(g.images))
	for i, img := range g.images {
		names[i] = img.Filename
	}
	return names
}

// Len returns the number of held images.
func (g *Gallery) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.images)
}

// Release deletes every local preview and empties the gallery.
func (g *Gallery) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for _, img := range g.images {
		if img.LocalPath == "" {
			continue
		}
		if err := os.Remove(img.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	g.images = nil
	return errors.Join(errs...)
}

// PrunePreviews removes preview files in dir last modified more than
// olderThan ago and returns how many were removed. A missing dir is empty.
func PrunePreviews(dir string, olderThan time.Duration) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, previewPattern))
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	var errs []error
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
