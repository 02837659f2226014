package storage_test

import (
	"context"
	"io"
	"slices"
	"testing"

	"github.com/dpc-platform/dpc-admin/internal/config"
	"github.com/dpc-platform/dpc-admin/internal/storage"
)

type nopStorage struct{}

func (nopStorage) Upload(_ context.Context, path string, _ io.Reader, size int64) (*storage.UploadResult, error) {
	return &storage.UploadResult{Path: path, Size: size}, nil
}
func (nopStorage) Download(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, storage.ErrNotFound
}
func (nopStorage) Delete(_ context.Context, _ string) error { return nil }

func TestRegister_AddsFactory(t *testing.T) {
	storage.Register("test-backend", func(_ *config.Config) (storage.Storage, error) {
		return nopStorage{}, nil
	})

	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "test-backend"

	s, err := storage.NewStorage(cfg)
	if err != nil {
		t.Fatalf("NewStorage() error: %v", err)
	}
	if s == nil {
		t.Fatal("NewStorage() returned nil")
	}
	if !slices.Contains(storage.Backends(), "test-backend") {
		t.Errorf("Backends() = %v, want test-backend listed", storage.Backends())
	}
}

func TestNewStorage_UnknownBackend(t *testing.T) {
	for _, name := range []string{"completely-unknown-backend", ""} {
		cfg := &config.Config{}
		cfg.Storage.DefaultBackend = name

		if _, err := storage.NewStorage(cfg); err == nil {
			t.Errorf("NewStorage(%q) = nil error, want error", name)
		}
	}
}
