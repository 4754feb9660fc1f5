// Package storage validates and stores restaurant images.
//
// Every upload goes through Inspect first. Inspect runs entirely in memory,
// so a disallowed file (a .gif, a PDF renamed to .png) is rejected before
// any request reaches object storage.
package storage

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/sakif/lunchbox/internal/apperror"
)

// allowed maps accepted MIME types to the extension used for the stored object.
var allowed = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
}

var extTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// Upload is a validated image ready to be written to a bucket.
type Upload struct {
	Filename    string
	ContentType string
	Ext         string
	Data        []byte
}

// Inspect reads at most maxBytes from r and checks the image type.
//
// TYPE RESOLUTION:
//  1. A filename extension, when present, must be .jpg, .jpeg or .png.
//  2. The content is sniffed with mimetype. If sniffing is inconclusive
//     (application/octet-stream), the declared Content-Type is used, then
//     the extension.
//  3. The resolved type must be image/jpeg or image/png.
func Inspect(filename, declaredType string, r io.Reader, maxBytes int64) (*Upload, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" {
		if _, ok := extTypes[ext]; !ok {
			return nil, apperror.ValidationFailed("image", fmt.Sprintf("%s files are not supported; upload a JPEG or PNG", ext))
		}
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("storage: reading upload: %w", err)
	}
	if len(data) == 0 {
		return nil, apperror.ValidationFailed("image", "image file is empty")
	}
	if int64(len(data)) > maxBytes {
		return nil, apperror.ValidationFailed("image", fmt.Sprintf("image must be %d bytes or smaller", maxBytes))
	}

	contentType := resolveType(data, declaredType, ext)
	storedExt, ok := allowed[contentType]
	if !ok {
		return nil, apperror.ValidationFailed("image", "only JPEG and PNG images are supported")
	}

	return &Upload{
		Filename:    filename,
		ContentType: contentType,
		Ext:         storedExt,
		Data:        data,
	}, nil
}

func resolveType(data []byte, declared, ext string) string {
	detected := mimetype.Detect(data)
	if !detected.Is("application/octet-stream") {
		// mimetype reports parameters for some types; keep the bare type
		return strings.SplitN(detected.String(), ";", 2)[0]
	}
	if d := strings.ToLower(strings.TrimSpace(strings.SplitN(declared, ";", 2)[0])); d != "" && d != "application/octet-stream" {
		return d
	}
	return extTypes[ext]
}

// Reader returns a fresh reader over the validated bytes.
func (u *Upload) Reader() io.Reader {
	return bytes.NewReader(u.Data)
}
