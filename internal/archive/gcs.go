package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dvloznov/statement-graph/internal/logger"
)

// GCSArchiver stores objects in a Cloud Storage bucket. It assumes
// Application Default Credentials unless client options say otherwise.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSArchiver creates a storage client for bucket. Object names are
// placed under prefix.
func NewGCSArchiver(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSArchiver, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (a *GCSArchiver) Close() error {
	return a.client.Close()
}

func (a *GCSArchiver) objectPath(name string) string {
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Put uploads data, retrying rate-limit and server errors.
func (a *GCSArchiver) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	log := logger.FromContext(ctx)
	objectPath := a.objectPath(objectName)

	err := retry.Do(
		func() error {
			return a.write(ctx, objectPath, data, contentType)
		},
		retry.RetryIf(retryable),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Str("object", objectPath).Msg("GCS upload failed, retrying")
		}),
	)
	if err != nil {
		return "", fmt.Errorf("upload gs://%s/%s: %w", a.bucket, objectPath, err)
	}
	return "gs://" + a.bucket + "/" + objectPath, nil
}

func (a *GCSArchiver) write(ctx context.Context, objectPath string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// Fetch downloads the object named by a gs:// URI.
func (a *GCSArchiver) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object path.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI returns the last path element of a storage URI.
// e.g. "gs://bucket/raw/b1/jan.csv" → "jan.csv"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(uri, "gs://"), "file://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

func retryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return false
}
