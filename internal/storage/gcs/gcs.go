// Package gcs archives exports to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/dpc-platform/dpc-admin/internal/config"
	appstorage "github.com/dpc-platform/dpc-admin/internal/storage"
)

func init() {
	appstorage.Register("gcs", func(cfg *appconfig.Config) (appstorage.Storage, error) {
		return New(&cfg.Storage.GCS)
	})
}

// GCSStorage stores objects in a single bucket
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// clientOptions turns the auth settings into client options. "none" disables
// authentication for emulators.
func clientOptions(cfg *appconfig.GCSStorageConfig) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	method := cfg.AuthMethod
	if method == "" {
		method = "default"
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			method = "service_account"
		}
	}

	switch method {
	case "service_account":
		switch {
		case cfg.CredentialsJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		case cfg.CredentialsFile != "":
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		default:
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}
	case "none":
		opts = append(opts, option.WithoutAuthentication())
	case "default", "workload_identity":
	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', 'workload_identity', or 'none')", method)
	}
	return opts, nil
}

// New creates a client for cfg.Bucket
func New(cfg *appconfig.GCSStorageConfig) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStorage{client: client, bucket: cfg.Bucket}, nil
}

// Close releases the client
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// Upload streams reader to the object, hashing as it writes
func (s *GCSStorage) Upload(ctx context.Context, path string, reader io.Reader, size int64) (*appstorage.UploadResult, error) {
	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	w.ContentType = appstorage.ContentType(path)

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(w, hasher), reader)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize GCS object: %w", err)
	}

	return &appstorage.UploadResult{
		Path:     path,
		Size:     written,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Download streams the object
func (s *GCSStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", appstorage.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	return r, nil
}

// Delete removes the object; a missing object is not an error
func (s *GCSStorage) Delete(ctx context.Context, path string) error {
	err := s.client.Bucket(s.bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}
