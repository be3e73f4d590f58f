// Package filestore keeps uploaded document files on local disk.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docchatd/internal/logging"
)

var (
	// ErrInvalidConfig indicates the store configuration is invalid.
	ErrInvalidConfig = errors.New("filestore: invalid configuration")

	// ErrInvalidPath indicates a path that escapes the store root or
	// contains unsafe segments.
	ErrInvalidPath = errors.New("filestore: invalid path")

	// ErrNotFound indicates the stored file does not exist.
	ErrNotFound = errors.New("filestore: file not found")

	// ErrTooLarge indicates an upload over the configured size limit.
	ErrTooLarge = errors.New("filestore: file exceeds size limit")
)

// Config holds local storage settings.
type Config struct {
	// Root is the directory holding uploaded files, one subdirectory
	// per tenant.
	Root string

	// MaxFileSize caps uploads in bytes. Default: 50MB.
	MaxFileSize int64
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("%w: root directory is required", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.MaxFileSize == 0 {
		c.MaxFileSize = 50 << 20
	}
}

// Store reads and writes uploaded files under a single root directory.
// All paths handed out and accepted are relative to the root.
type Store struct {
	config Config
	root   string
	logger *logging.Logger
}

// NewStore creates the root directory if needed.
func NewStore(cfg Config, logger *logging.Logger) (*Store, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	root := filepath.Clean(cfg.Root)
	if strings.Contains(root, "..") {
		return nil, fmt.Errorf("%w: root contains directory traversal: %s", ErrInvalidPath, cfg.Root)
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}

	return &Store{config: cfg, root: root, logger: logger}, nil
}

// Save streams r to {tenantID}/{documentID}_{filename} under the root,
// writing through a temp file and renaming into place. Returns the
// relative path and the number of bytes written.
func (s *Store) Save(ctx context.Context, tenantID, documentID, filename string, r io.Reader) (string, int64, error) {
	if err := validateSegment(tenantID); err != nil {
		return "", 0, fmt.Errorf("tenant id: %w", err)
	}
	if err := validateSegment(documentID); err != nil {
		return "", 0, fmt.Errorf("document id: %w", err)
	}
	baseName := filepath.Base(filepath.Clean(filename))
	if err := validateSegment(baseName); err != nil {
		return "", 0, fmt.Errorf("filename: %w", err)
	}

	relPath := filepath.Join(tenantID, documentID+"_"+baseName)
	absPath, err := s.resolve(relPath)
	if err != nil {
		return "", 0, err
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", 0, fmt.Errorf("creating tenant directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	// Copy one byte past the limit so oversized uploads are detected
	// without buffering the whole stream.
	written, err := io.Copy(tmp, io.LimitReader(r, s.config.MaxFileSize+1))
	if err != nil {
		cleanup()
		return "", 0, fmt.Errorf("writing upload: %w", err)
	}
	if written > s.config.MaxFileSize {
		cleanup()
		return "", 0, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.config.MaxFileSize)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", 0, fmt.Errorf("syncing upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("closing upload: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("setting upload permissions: %w", err)
	}
	if err := os.Rename(tmpPath, absPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("storing upload: %w", err)
	}

	s.logger.Debug(ctx, "stored upload",
		zap.String("path", relPath),
		zap.Int64("size_bytes", written))
	return relPath, written, nil
}

// DownloadTemp copies a stored file into a temp file and returns its
// path plus a cleanup function. Callers must always run the cleanup.
func (s *Store) DownloadTemp(ctx context.Context, relPath string) (string, func(), error) {
	absPath, err := s.resolve(relPath)
	if err != nil {
		return "", nil, err
	}

	src, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("%w: %s", ErrNotFound, relPath)
		}
		return "", nil, fmt.Errorf("opening stored file: %w", err)
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp("", "docchat-*"+filepath.Ext(relPath))
	if err != nil {
		return "", nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("copying stored file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing temp file: %w", err)
	}

	s.logger.Debug(ctx, "downloaded stored file",
		zap.String("path", relPath),
		zap.String("temp", tmpPath))
	return tmpPath, cleanup, nil
}

// Delete removes a stored file.
func (s *Store) Delete(ctx context.Context, relPath string) error {
	absPath, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(absPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, relPath)
		}
		return fmt.Errorf("deleting stored file: %w", err)
	}
	s.logger.Debug(ctx, "deleted stored file", zap.String("path", relPath))
	return nil
}

// resolve joins relPath to the root and rejects anything escaping it.
func (s *Store) resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("%w: absolute path: %s", ErrInvalidPath, relPath)
	}
	abs := filepath.Join(s.root, filepath.Clean(relPath))
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: escapes storage root: %s", ErrInvalidPath, relPath)
	}
	return abs, nil
}

// validateSegment rejects path separators and traversal in a single
// path segment.
func validateSegment(segment string) error {
	if segment == "" || segment == "." || segment == ".." {
		return fmt.Errorf("%w: empty or reserved segment", ErrInvalidPath)
	}
	if strings.ContainsAny(segment, "/\\") || strings.ContainsRune(segment, 0) {
		return fmt.Errorf("%w: unsafe segment %q", ErrInvalidPath, segment)
	}
	return nil
}
