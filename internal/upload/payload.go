package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/pavelanni/aceplus/internal/gateway"
)

// FieldName is the multipart field for the i-th file.
func FieldName(i int) string {
	return fmt.Sprintf("image_%d", i)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// BuildPayload validates files and encodes them in order as image_0..image_N.
// Nothing is encoded unless the whole batch is valid.
func BuildPayload(files []File, maxSize int64) (*gateway.Multipart, error) {
	if err := Validate(files, maxSize); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			FieldName(i), quoteEscaper.Replace(f.Name)))
		h.Set("Content-Type", f.ContentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create part for %s: %w", f.Name, err)
		}
		if err := copyFile(part, f); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	return &gateway.Multipart{Body: &buf, ContentType: mw.FormDataContentType()}, nil
}

func copyFile(w io.Writer, f File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("read %s: %w", f.Name, err)
	}
	return nil
}
