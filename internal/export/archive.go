package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/dpc-platform/dpc-admin/internal/storage"
	"github.com/dpc-platform/dpc-admin/pkg/checksum"
)

// Archiver uploads exports to a storage backend
type Archiver struct {
	store  storage.Storage
	prefix string
	signer *Signer
}

// ArchiveResult lists the objects written for one export
type ArchiveResult struct {
	Path          string
	ChecksumPath  string
	SignaturePath string
	Checksum      string
	Size          int64
}

// NewArchiver creates an archiver writing under prefix. signer may be nil.
func NewArchiver(store storage.Storage, prefix string, signer *Signer) *Archiver {
	return &Archiver{store: store, prefix: strings.Trim(prefix, "/"), signer: signer}
}

func (a *Archiver) objectPath(name string) string {
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Archive uploads exp, its .sha256 sidecar and, with a signer, its .asc signature.
// Objects already written are removed when a later upload fails.
func (a *Archiver) Archive(ctx context.Context, exp *Export) (result *ArchiveResult, err error) {
	sum, err := checksum.CalculateSHA256(bytes.NewReader(exp.Data))
	if err != nil {
		return nil, err
	}

	var written []string
	defer func() {
		if err != nil {
			a.rollback(written)
		}
	}()
	put := func(path string, data []byte) (*storage.UploadResult, error) {
		res, err := a.store.Upload(ctx, path, bytes.NewReader(data), int64(len(data)))
		if err == nil {
			written = append(written, path)
		}
		return res, err
	}

	result = &ArchiveResult{Path: a.objectPath(exp.Filename), Checksum: sum}

	uploaded, err := put(result.Path, exp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}
	result.Size = uploaded.Size
	if uploaded.Checksum != "" && uploaded.Checksum != sum {
		return nil, fmt.Errorf("export checksum mismatch after upload: got %s, want %s", uploaded.Checksum, sum)
	}

	result.ChecksumPath = result.Path + ".sha256"
	if _, err = put(result.ChecksumPath, []byte(checksum.SumsLine(sum, exp.Filename))); err != nil {
		return nil, fmt.Errorf("failed to upload export checksum: %w", err)
	}

	if a.signer != nil {
		var sig []byte
		if sig, err = a.signer.Sign(exp.Data); err != nil {
			return nil, err
		}
		result.SignaturePath = result.Path + ".asc"
		if _, err = put(result.SignaturePath, sig); err != nil {
			return nil, fmt.Errorf("failed to upload export signature: %w", err)
		}
	}

	slog.Info("user export archived",
		"path", result.Path,
		"rows", exp.Rows,
		"size", result.Size,
		"signed", a.signer != nil)

	return result, nil
}

// rollback runs detached from the request context, which may be what failed.
func (a *Archiver) rollback(paths []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, p := range paths {
		if err := a.store.Delete(ctx, p); err != nil {
			slog.Warn("failed to remove partial export archive", "path", p, "error", err)
		}
	}
}

// Verify downloads an archived export and checks it against its .sha256 sidecar
func (a *Archiver) Verify(ctx context.Context, objectPath string) error {
	sidecar, err := a.read(ctx, objectPath+".sha256")
	if err != nil {
		return fmt.Errorf("failed to read export checksum: %w", err)
	}
	want, name, err := checksum.ParseSumsLine(string(sidecar))
	if err != nil {
		return err
	}
	if name != path.Base(objectPath) {
		return fmt.Errorf("checksum file names %q, want %q", name, path.Base(objectPath))
	}

	rc, err := a.store.Download(ctx, objectPath)
	if err != nil {
		return fmt.Errorf("failed to download export: %w", err)
	}
	defer rc.Close()

	ok, err := checksum.VerifySHA256(rc, want)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("export %s does not match its checksum", objectPath)
	}
	return nil
}

func (a *Archiver) read(ctx context.Context, objectPath string) ([]byte, error) {
	rc, err := a.store.Download(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
