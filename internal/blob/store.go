// Package blob keeps raw HTML bodies of ingested messages outside the
// database. Rows reference them by key.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrObjectNotFound = errors.New("blob object not found")
	ErrInvalidKey     = errors.New("invalid blob key")
)

const HTMLContentType = "text/html; charset=utf-8"

type Store interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// HTMLKey is the object key for the HTML body of one provider message.
func HTMLKey(accountID uuid.UUID, providerMessageID string) string {
	return fmt.Sprintf("messages/%s/%s.html", accountID, url.PathEscape(strings.TrimSpace(providerMessageID)))
}

type Config struct {
	Backend           string
	FSRoot            string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3ForcePathStyle  bool
}

// NewFromConfig picks a backend. "none" disables HTML storage and returns a
// nil Store.
func NewFromConfig(ctx context.Context, cfg Config) (Store, error) {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.Backend)); backend {
	case "none", "off":
		return nil, nil
	case "", "filesystem", "fs":
		return NewFilesystemStore(cfg.FSRoot)
	case "s3", "r2", "minio":
		return NewS3Store(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", backend)
	}
}
