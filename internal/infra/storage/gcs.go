package storage

import (
	"context"
	"errors"
	"io"
	"path"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

// GCSStore implements ObjectStore on a Google Cloud Storage bucket. An
// optional key prefix scopes every operation to a sub-tree of the bucket.
type GCSStore struct {
	client *gcstorage.Client
	bucket string
	prefix string
}

var _ ObjectStore = (*GCSStore)(nil)

// NewGCSStore creates a GCSStore. When credentialsFile is empty, application
// default credentials apply.
func NewGCSStore(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSStore, error) {
	if bucket == "" {
		return nil, exception.NewBatchError(moduleName, "gcs storage requires a bucket", nil, false, false)
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to create GCS client", err, false, true)
	}

	logger.Infof("Opened GCS storage (bucket: %s, prefix: %s).", bucket, prefix)
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSStore) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *GCSStore) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	w := s.client.Bucket(s.bucket).Object(s.objectName(key)).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return exception.NewBatchError(moduleName, "failed to upload object", err, false, true)
	}
	if err := w.Close(); err != nil {
		return exception.NewBatchError(moduleName, "failed to finalize object upload", err, false, true)
	}
	logger.Debugf("Uploaded 'gs://%s/%s'.", s.bucket, s.objectName(key))
	return nil
}

func (s *GCSStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.objectName(key)).NewReader(ctx)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to open object", err, false, true)
	}
	return r, nil
}

func (s *GCSStore) List(ctx context.Context, prefix string, fn func(key string) error) error {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcstorage.Query{Prefix: s.objectName(prefix)})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return exception.NewBatchError(moduleName, "failed to list objects", err, false, true)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(s.objectName(key)).Delete(ctx); err != nil {
		return exception.NewBatchError(moduleName, "failed to delete object", err, false, true)
	}
	return nil
}

func (s *GCSStore) Type() string { return "gcs" }

func (s *GCSStore) Close() error { return s.client.Close() }
