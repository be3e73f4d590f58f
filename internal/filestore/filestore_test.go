package filestore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docchatd/internal/logging"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Config{Root: t.TempDir()}, logging.NewNop())
	require.NoError(t, err)
	return store
}

func TestConfigValidate(t *testing.T) {
	err := (&Config{}).Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	require.NoError(t, (&Config{Root: "./data/uploads"}).Validate())
}

func TestNewStoreCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "uploads")
	_, err := NewStore(Config{Root: root}, logging.NewNop())
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewStoreRejectsTraversalRoot(t *testing.T) {
	_, err := NewStore(Config{Root: "uploads/../../etc"}, logging.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestSaveAndDownload(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	content := []byte("quarterly revenue grew 12%")

	relPath, size, err := store.Save(ctx, "tenant-a", "doc-1", "report.txt", bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("tenant-a", "doc-1_report.txt"), relPath)
	assert.Equal(t, int64(len(content)), size)

	tmpPath, cleanup, err := store.DownloadTemp(ctx, relPath)
	require.NoError(t, err)

	got, err := os.ReadFile(tmpPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.True(t, strings.HasSuffix(tmpPath, ".txt"))

	cleanup()
	_, err = os.Stat(tmpPath)
	assert.True(t, os.IsNotExist(err))
}

func TestSaveFilePermissions(t *testing.T) {
	store := testStore(t)

	relPath, _, err := store.Save(context.Background(), "tenant-a", "doc-1", "report.txt", strings.NewReader("body"))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(store.root, relPath))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSaveStripsClientPath(t *testing.T) {
	store := testStore(t)

	relPath, _, err := store.Save(context.Background(), "tenant-a", "doc-1",
		"uploads/../../secret/passwd.txt", strings.NewReader("body"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("tenant-a", "doc-1_passwd.txt"), relPath)
}

func TestSaveRejectsBadSegments(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		tenantID   string
		documentID string
		filename   string
	}{
		{"tenant with separator", "a/b", "doc-1", "report.txt"},
		{"empty tenant", "", "doc-1", "report.txt"},
		{"document traversal", "tenant-a", "..", "report.txt"},
		{"filename traversal only", "tenant-a", "doc-1", ".."},
		{"empty filename", "tenant-a", "doc-1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := store.Save(ctx, tt.tenantID, tt.documentID, tt.filename, strings.NewReader("body"))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestSaveTooLarge(t *testing.T) {
	store, err := NewStore(Config{Root: t.TempDir(), MaxFileSize: 8}, logging.NewNop())
	require.NoError(t, err)

	_, _, err = store.Save(context.Background(), "tenant-a", "doc-1", "report.txt",
		strings.NewReader("more than eight bytes"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)

	// The rejected upload must not leave a partial file behind.
	entries, err := os.ReadDir(filepath.Join(store.root, "tenant-a"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDelete(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	relPath, _, err := store.Save(ctx, "tenant-a", "doc-1", "report.txt", strings.NewReader("body"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, relPath))

	err = store.Delete(ctx, relPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDownloadTempMissing(t *testing.T) {
	store := testStore(t)

	_, _, err := store.DownloadTemp(context.Background(), "tenant-a/doc-9_gone.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveRejectsEscapes(t *testing.T) {
	store := testStore(t)

	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"absolute", "/etc/passwd"},
		{"parent traversal", "../outside.txt"},
		{"nested traversal", "tenant-a/../../outside.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.resolve(tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}
