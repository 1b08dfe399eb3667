package convert

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ConvertsNewFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "existing"), 0o755))

	conv, err := New(Options{})
	require.NoError(t, err)
	w, err := NewWatcher(conv)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Watch(root))
	assert.Equal(t, 2, w.Watched())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeDataset(t, filepath.Join(root, "existing", "a.spx"))
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(root, "existing", "a.spz"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	// New directories are picked up.
	newDir := filepath.Join(root, "day2")
	require.NoError(t, os.Mkdir(newDir, 0o755))
	require.Eventually(t, func() bool { return w.Watched() == 3 }, 5*time.Second, 20*time.Millisecond)

	writeDataset(t, filepath.Join(newDir, "b.spx"))
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(newDir, "b.spz"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	converted, _, _ := conv.Counts()
	assert.Equal(t, int64(2), converted)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	conv, err := New(Options{})
	require.NoError(t, err)
	w, err := NewWatcher(conv)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Watch(root))

	notes := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o644))
	w.handleEvent(fsnotify.Event{Name: notes, Op: fsnotify.Create})
	w.handleEvent(fsnotify.Event{Name: notes, Op: fsnotify.Write})
	converted, skipped, failed := conv.Counts()
	assert.Zero(t, converted+skipped+failed)
}

func TestWatcher_ForgetsRemovedDirectories(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub", "deeper")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	conv, err := New(Options{})
	require.NoError(t, err)
	w, err := NewWatcher(conv)
	require.NoError(t, err)
	require.NoError(t, w.Watch(root))
	assert.Equal(t, 3, w.Watched())

	w.forget(filepath.Join(root, "sub"))
	assert.Equal(t, 1, w.Watched())

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Zero(t, w.Watched())
}

func TestWatch_NonDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	conv, err := New(Options{})
	require.NoError(t, err)
	w, err := NewWatcher(conv)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Watch(file))
	assert.Zero(t, w.Watched())
	assert.Error(t, w.Watch(filepath.Join(root, "missing")))
}
