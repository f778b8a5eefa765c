// Package upload validates image batches, encodes them as multipart payloads
// and sends them to the backend.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// MaxFileSize is the per-file ceiling enforced before anything is sent.
const MaxFileSize int64 = 16 << 20

// Reason classifies a validation failure.
type Reason string

const (
	ReasonTooLarge Reason = "too_large"
	ReasonNotImage Reason = "not_image"
)

// ErrEmptyBatch is returned when there is nothing to upload.
var ErrEmptyBatch = errors.New("no images selected")

// ValidationError names the first file that made a batch invalid.
type ValidationError struct {
	Filename    string
	Reason      Reason
	Size        int64
	Limit       int64
	ContentType string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonTooLarge:
		return fmt.Sprintf("%s is too large (%s, limit %s)",
			e.Filename, humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Limit)))
	case ReasonNotImage:
		ct := e.ContentType
		if ct == "" {
			ct = "unknown type"
		}
		return fmt.Sprintf("%s is not an image (%s)", e.Filename, ct)
	}
	return fmt.Sprintf("%s is invalid: %s", e.Filename, e.Reason)
}

// File is one entry of an upload batch.
type File struct {
	Name        string
	Size        int64
	ContentType string

	open func() (io.ReadCloser, error)
}

// NewFile builds a File whose contents come from open.
func NewFile(name string, size int64, contentType string, open func() (io.ReadCloser, error)) File {
	return File{Name: name, Size: size, ContentType: contentType, open: open}
}

// FileFromPath stats path and sniffs its MIME type from the content.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return File{}, fmt.Errorf("detect type of %s: %w", path, err)
	}
	return File{
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: mt.String(),
		open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Open returns the file contents.
func (f File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("%s has no content", f.Name)
	}
	return f.open()
}

// Validate checks every file in order and stops at the first violation.
// maxSize <= 0 means MaxFileSize.
func Validate(files []File, maxSize int64) error {
	if len(files) == 0 {
		return ErrEmptyBatch
	}
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	for _, f := range files {
		if f.Size > maxSize {
			return &ValidationError{Filename: f.Name, Reason: ReasonTooLarge, Size: f.Size, Limit: maxSize}
		}
		if !strings.HasPrefix(f.ContentType, "image/") {
			return &ValidationError{Filename: f.Name, Reason: ReasonNotImage, ContentType: f.ContentType}
		}
	}
	return nil
}
