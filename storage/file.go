package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruteri/credential-registry-backend/interfaces"
)

// FileBackend implements a storage backend using the local file system.
// Content is stored under <baseDir>/<content type>/<sha256 hex>.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified base directory.
// It creates subdirectories for different content types if they don't exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	for _, ct := range []interfaces.ContentType{interfaces.CiphertextType, interfaces.BundleType} {
		if err := os.MkdirAll(filepath.Join(abs, ct.String()), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", ct, err)
		}
	}

	if log == nil {
		log = slog.Default()
	}

	return &FileBackend{
		baseDir:     abs,
		log:         log,
		locationURI: "file://" + filepath.ToSlash(abs),
	}, nil
}

// Fetch reads the file a locator points at and checks it against the
// content hash in its name.
func (b *FileBackend) Fetch(ctx context.Context, loc interfaces.Locator) ([]byte, error) {
	filePath, key, err := b.pathFor(loc)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, loc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read file: %v", interfaces.ErrBackendUnavailable, err)
	}
	if err := verifyContent(data, key); err != nil {
		b.log.Error("Stored file failed integrity check", slog.String("path", filePath))
		return nil, err
	}

	b.log.Debug("Fetched content from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Store writes data under its content hash. Writing the same bytes twice is
// a no-op returning the same locator.
func (b *FileBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.Locator, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	key := contentKey(data)
	filePath := filepath.Join(b.baseDir, contentType.String(), key)

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", fmt.Errorf("%w: failed to create directory: %v", interfaces.ErrBackendUnavailable, err)
	}

	// Write to a temp file and rename so readers never see partial content.
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("%w: failed to create file: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: failed to write file: %v", interfaces.ErrBackendUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: failed to write file: %v", interfaces.ErrBackendUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return "", fmt.Errorf("%w: failed to write file: %v", interfaces.ErrBackendUnavailable, err)
	}

	loc := interfaces.Locator("file://" + filepath.ToSlash(filePath))
	b.log.Debug("Stored content in file",
		slog.String("path", filePath),
		slog.String("contentType", contentType.String()))

	return loc, nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) pathFor(loc interfaces.Locator) (string, string, error) {
	raw, ok := strings.CutPrefix(loc.String(), "file://")
	if !ok {
		return "", "", fmt.Errorf("%w: %s is not a file locator", interfaces.ErrInvalidLocationURI, loc)
	}
	filePath := filepath.Clean(filepath.FromSlash(raw))

	rel, err := filepath.Rel(b.baseDir, filePath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", "", fmt.Errorf("%w: %s is outside %s", interfaces.ErrInvalidLocationURI, loc, b.baseDir)
	}

	_, key, err := splitKeyPath(filepath.ToSlash(rel))
	if err != nil {
		return "", "", err
	}
	return filePath, key, nil
}
