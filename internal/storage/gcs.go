package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"jobgate/internal/config"
)

// GCSClient stores objects in a Google Cloud Storage bucket.
type GCSClient struct {
	client *gcs.Client
	bucket string
}

// NewGCSClient connects with the credentials file, or application default credentials when empty.
func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*GCSClient, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init gcs client: %w", err)
	}
	return &GCSClient{client: client, bucket: cfg.Bucket}, nil
}

// UploadFile streams reader into the object.
func (c *GCSClient) UploadFile(ctx context.Context, objectKey string, reader io.Reader, _ int64, contentType string) error {
	w := c.client.Bucket(c.bucket).Object(objectKey).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, reader); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %q: %w", objectKey, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object writer %q: %w", objectKey, err)
	}
	return nil
}

// GeneratePresignedURL returns a V4 signed GET url.
func (c *GCSClient) GeneratePresignedURL(_ context.Context, objectKey string, duration time.Duration) (string, error) {
	u, err := c.client.Bucket(c.bucket).SignedURL(objectKey, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(duration),
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %q: %w", objectKey, err)
	}
	return u, nil
}

// DeleteObject removes the object. A missing object counts as success.
func (c *GCSClient) DeleteObject(ctx context.Context, objectKey string) error {
	objectKey = strings.TrimSpace(objectKey)
	if objectKey == "" {
		return nil
	}
	if err := c.client.Bucket(c.bucket).Object(objectKey).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("delete object %q: %w", objectKey, err)
	}
	return nil
}

// Close releases the underlying client.
func (c *GCSClient) Close() error {
	return c.client.Close()
}
