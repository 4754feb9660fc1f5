package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/sakif/lunchbox/internal/apperror"
)

// Stored describes an object after a successful upload.
type Stored struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// ImageStore is what the restaurant service needs from object storage.
type ImageStore interface {
	Upload(ctx context.Context, u *Upload) (*Stored, error)
	Delete(ctx context.Context, path string) error
}

// Bucket is the narrow slice of a GCS bucket the store uses. It exists so
// tests can swap in an in-memory bucket.
type Bucket interface {
	Name() string
	NewWriter(ctx context.Context, path, contentType string) io.WriteCloser
	Delete(ctx context.Context, path string) error
}

// ObjectStore writes images to a Bucket under "<prefix>/<uuid>.<ext>".
type ObjectStore struct {
	bucket        Bucket
	prefix        string
	publicBaseURL string
}

var _ ImageStore = (*ObjectStore)(nil)

// NewObjectStore builds a store. publicBaseURL defaults to the public GCS
// endpoint for the bucket.
func NewObjectStore(bucket Bucket, prefix, publicBaseURL string) *ObjectStore {
	if publicBaseURL == "" {
		publicBaseURL = "https://storage.googleapis.com/" + bucket.Name()
	}
	return &ObjectStore{
		bucket:        bucket,
		prefix:        strings.Trim(prefix, "/"),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Upload writes the image and returns its public URL and object path.
func (s *ObjectStore) Upload(ctx context.Context, u *Upload) (*Stored, error) {
	path := uuid.NewString() + "." + u.Ext
	if s.prefix != "" {
		path = s.prefix + "/" + path
	}

	w := s.bucket.NewWriter(ctx, path, u.ContentType)
	if _, err := io.Copy(w, u.Reader()); err != nil {
		_ = w.Close()
		return nil, s.uploadError(err)
	}
	// For GCS the object only exists once Close succeeds.
	if err := w.Close(); err != nil {
		return nil, s.uploadError(err)
	}

	return &Stored{URL: s.publicBaseURL + "/" + path, Path: path}, nil
}

// Delete removes an object. Deleting something already gone is not an error.
func (s *ObjectStore) Delete(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	if err := s.bucket.Delete(ctx, path); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return apperror.Transient("deleting image", err)
	}
	return nil
}

func (s *ObjectStore) uploadError(err error) error {
	if errors.Is(err, storage.ErrBucketNotExist) {
		return apperror.Configuration(fmt.Sprintf(
			"storage bucket %q is missing; create it or set IMAGE_BUCKET to an existing bucket", s.bucket.Name()))
	}
	return apperror.Transient("uploading image", err)
}

// gcsBucket adapts *storage.Client to Bucket.
type gcsBucket struct {
	client *storage.Client
	name   string
}

// NewGCSBucket wraps a Cloud Storage client for one bucket. Credentials come
// from the environment (Application Default Credentials).
func NewGCSBucket(client *storage.Client, name string) Bucket {
	return &gcsBucket{client: client, name: name}
}

func (b *gcsBucket) Name() string { return b.name }

func (b *gcsBucket) NewWriter(ctx context.Context, path, contentType string) io.WriteCloser {
	w := b.client.Bucket(b.name).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=3600"
	return w
}

func (b *gcsBucket) Delete(ctx context.Context, path string) error {
	return b.client.Bucket(b.name).Object(path).Delete(ctx)
}

// Disabled is used when no bucket is configured. Uploads fail with a
// configuration error; image URLs supplied directly still work.
type Disabled struct{}

var _ ImageStore = Disabled{}

func (Disabled) Upload(context.Context, *Upload) (*Stored, error) {
	return nil, apperror.Configuration("image uploads are not configured; set IMAGE_BUCKET or use an image URL")
}

func (Disabled) Delete(context.Context, string) error { return nil }
