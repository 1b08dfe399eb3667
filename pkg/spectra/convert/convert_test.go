package convert

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/spectra/pkg/spectra/archive"
	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

func writeDataset(t *testing.T, path string) {
	t.Helper()
	ds, err := dataset.New(dataset.Metadata{
		Name:         filepath.Base(path),
		HardwareType: types.HardwareSimulated,
		Date:         time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	}, []float64{100, 101, 102}, dataset.Options{})
	require.NoError(t, err)
	require.NoError(t, ds.Append(0, 0, []float64{1, 2, 3}))
	require.NoError(t, ds.Append(1, 0, []float64{4, 5, 6}))
	ds.Close()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, archive.WriteDataset(path, ds))
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, filepath.Join(root, "a.spx"))
	writeDataset(t, filepath.Join(root, "day1", "b.spx"))
	writeDataset(t, filepath.Join(root, "day1", "deep", "c.spx"))
	writeDataset(t, filepath.Join(root, "done.spx"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "done.spz"), []byte("existing"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "day1", "broken.spx"), []byte("garbage"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	var mu sync.Mutex
	var seen []string
	conv, err := New(Options{OnResult: func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, filepath.Base(r.Source))
	}})
	require.NoError(t, err)

	rep, err := conv.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Converted)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 5, rep.Total())
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, filepath.Join(root, "day1", "broken.spx"), rep.Failures[0].Source)
	assert.Error(t, rep.Failures[0].Err)
	assert.ElementsMatch(t, []string{"a.spx", "b.spx", "c.spx", "done.spx", "broken.spx"}, seen)

	a, err := archive.ReadArrays(filepath.Join(root, "day1", "deep", "c.spz"))
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6}, a.Intensities[1])

	existing, err := os.ReadFile(filepath.Join(root, "done.spz"))
	require.NoError(t, err)
	assert.Equal(t, "existing", string(existing), "existing output is never overwritten")

	// A second run finds everything done except the broken file.
	rep, err = conv.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Converted)
	assert.Equal(t, 4, rep.Skipped)
	assert.Equal(t, 1, rep.Failed)

	converted, skipped, failed := conv.Counts()
	assert.Equal(t, int64(3), converted)
	assert.Equal(t, int64(5), skipped)
	assert.Equal(t, int64(2), failed)
}

func TestRun_YAML(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, filepath.Join(root, "a.spx"))

	conv, err := New(Options{Format: "yaml"})
	require.NoError(t, err)
	assert.Equal(t, archive.YAMLExt, conv.Ext())

	rep, err := conv.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Converted)

	a, err := archive.ReadYAMLArrays(filepath.Join(root, "a.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 101, 102}, a.Masses)
}

func TestRun_SingleFileAndErrors(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.spx")
	writeDataset(t, src)

	conv, err := New(Options{})
	require.NoError(t, err)
	rep, err := conv.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Converted)

	_, err = conv.Run(context.Background(), filepath.Join(root, "missing"))
	assert.Error(t, err)

	_, err = New(Options{Format: "csv"})
	assert.Error(t, err)
}

func TestRun_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, filepath.Join(root, "a.spx"))

	conv, err := New(Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := conv.Run(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, rep.Converted)
}

func TestIsSource(t *testing.T) {
	assert.True(t, IsSource("/data/run.spx"))
	assert.True(t, IsSource("RUN.SPX"))
	assert.False(t, IsSource("/data/run.spz"))
	assert.False(t, IsSource("/data/.run.spx.1234.tmp"))
	assert.False(t, IsSource("/data/.hidden.spx"))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "converted", StatusConverted.String())
	assert.Equal(t, "skipped", StatusSkipped.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", Status(9).String())
}
