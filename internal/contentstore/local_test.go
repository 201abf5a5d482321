package contentstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSaveOpenStat(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save(ctx, "My App.apk", strings.NewReader("first"))
	require.NoError(t, err)
	assert.Equal(t, "My_App.apk", name)

	name, err = store.Save(ctx, "My App.apk", strings.NewReader("second version"))
	require.NoError(t, err)

	obj, err := store.Open(ctx, name)
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "second version", string(data))
	assert.Equal(t, int64(len("second version")), obj.Size)
	_, seekable := obj.Body.(io.ReadSeeker)
	assert.True(t, seekable, "local objects should support seeking")

	info, err := store.Stat(ctx, "My App.apk")
	require.NoError(t, err)
	assert.Equal(t, "My_App.apk", info.Name)
	assert.Equal(t, obj.Size, info.Size)

	entries, err := os.ReadDir(filepath.Join(store.Root(), tmpDirName))
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files should be renamed or removed")
}

func TestLocalMissing(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(ctx, "nope.apk")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Stat(ctx, "nope.apk")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Open(ctx, ".tmp")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalTraversalStaysInsideRoot(t *testing.T) {
	ctx := context.Background()
	parent := t.TempDir()
	root := filepath.Join(parent, "apk")
	store, err := NewLocal(root)
	require.NoError(t, err)

	secret := filepath.Join(parent, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0o600))

	name, err := store.Save(ctx, "../secret.txt", strings.NewReader("overwrite attempt"))
	require.NoError(t, err)
	assert.Equal(t, "secret.txt", name)

	data, err := os.ReadFile(secret)
	require.NoError(t, err)
	assert.Equal(t, "top secret", string(data), "file outside the store must be untouched")

	_, err = os.Stat(filepath.Join(root, "secret.txt"))
	require.NoError(t, err)

	for _, raw := range []string{"../secret.txt", "../../secret.txt", "/../secret.txt"} {
		obj, err := store.Open(ctx, raw)
		require.NoError(t, err, raw)
		got, err := io.ReadAll(obj.Body)
		require.NoError(t, obj.Body.Close())
		require.NoError(t, err)
		assert.Equal(t, "overwrite attempt", string(got), raw)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestLocalSaveFailureLeavesPreviousContent(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save(ctx, "app.apk", bytes.NewReader([]byte("good")))
	require.NoError(t, err)

	_, err = store.Save(ctx, "app.apk", io.MultiReader(strings.NewReader("partial"), failingReader{}))
	require.Error(t, err)

	obj, err := store.Open(ctx, "app.apk")
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "good", string(data))
}

func TestNewLocalRequiresRoot(t *testing.T) {
	_, err := NewLocal("  ")
	assert.Error(t, err)
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, Options{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	st, err = Open(ctx, Options{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, st)

	_, err = Open(ctx, Options{Backend: "ftp"})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Backend: "s3"})
	assert.Error(t, err, "bucket is required")
}
