// Package archive reads and writes datasets on disk.
//
// Two gzip-compressed JSON formats are used: a full dataset file (.spx)
// holding metadata, spectra and sidecars, and an arrays file (.spz) holding
// only masses, retention times and intensities. Arrays can also be
// exported as plain YAML.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
)

// File extensions.
const (
	DatasetExt = ".spx"
	ArraysExt  = ".spz"
	YAMLExt    = ".yaml"
)

// Format versions written by this package.
const (
	datasetVersion = 1
	arraysVersion  = 1
)

type datasetFile struct {
	Format  string          `json:"format"`
	Version int             `json:"version"`
	Dataset *dataset.Record `json:"dataset"`
}

type arraysFile struct {
	Format  string         `json:"format"`
	Version int            `json:"version"`
	Arrays  dataset.Arrays `json:"arrays"`
}

// WriteDataset writes the full dataset to path atomically.
func WriteDataset(path string, ds *dataset.Dataset) error {
	return writeGzipJSON(path, gzip.DefaultCompression, &datasetFile{
		Format:  "spectra-dataset",
		Version: datasetVersion,
		Dataset: ds.Record(),
	})
}

// ReadDataset loads a dataset written by WriteDataset. The result is
// closed.
func ReadDataset(path string, opts dataset.Options) (*dataset.Dataset, error) {
	var f datasetFile
	if err := readGzipJSON(path, &f); err != nil {
		return nil, err
	}
	if f.Format != "spectra-dataset" {
		return nil, fmt.Errorf("%w: %s: not a dataset file", errcode.ErrOpenDatasetFailed, path)
	}
	if f.Version > datasetVersion {
		return nil, fmt.Errorf("%w: %s: version %d", errcode.ErrDataVersionTooHigh, path, f.Version)
	}
	return dataset.FromRecord(f.Dataset, opts)
}

// Persister writes arrays files. It implements dataset.Persister.
type Persister struct {
	// Level is the gzip level. Zero means gzip.DefaultCompression.
	Level int
}

// Persist implements dataset.Persister.
func (p Persister) Persist(dest string, a dataset.Arrays) error {
	level := p.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return writeGzipJSON(dest, level, &arraysFile{
		Format:  "spectra-arrays",
		Version: arraysVersion,
		Arrays:  a,
	})
}

// ReadArrays loads an arrays file and checks its shape.
func ReadArrays(path string) (dataset.Arrays, error) {
	var f arraysFile
	if err := readGzipJSON(path, &f); err != nil {
		return dataset.Arrays{}, err
	}
	if f.Format != "spectra-arrays" {
		return dataset.Arrays{}, fmt.Errorf("%w: %s: not an arrays file", errcode.ErrOpenDatasetFailed, path)
	}
	if f.Version > arraysVersion {
		return dataset.Arrays{}, fmt.Errorf("%w: %s: version %d", errcode.ErrDataVersionTooHigh, path, f.Version)
	}
	if err := f.Arrays.Validate(); err != nil {
		return dataset.Arrays{}, fmt.Errorf("%w: %s: %v", errcode.ErrOpenDatasetFailed, path, err)
	}
	return f.Arrays, nil
}

// YAMLPersister writes arrays as uncompressed YAML.
type YAMLPersister struct{}

// Persist implements dataset.Persister.
func (YAMLPersister) Persist(dest string, a dataset.Arrays) error {
	return writeAtomic(dest, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(a); err != nil {
			return err
		}
		return enc.Close()
	})
}

// ReadYAMLArrays loads arrays written by YAMLPersister.
func ReadYAMLArrays(path string) (dataset.Arrays, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dataset.Arrays{}, fmt.Errorf("%w: %v", errcode.ErrFileOpenFailed, err)
	}
	var a dataset.Arrays
	if err := yaml.Unmarshal(data, &a); err != nil {
		return dataset.Arrays{}, fmt.Errorf("%w: %s: %v", errcode.ErrDataParsingFailed, path, err)
	}
	return a, a.Validate()
}

// PersisterFor returns the persister and file extension of an export
// format ("spz" or "yaml").
func PersisterFor(format string) (dataset.Persister, string, error) {
	switch strings.ToLower(format) {
	case "", "spz":
		return Persister{}, ArraysExt, nil
	case "yaml", "yml":
		return YAMLPersister{}, YAMLExt, nil
	}
	return nil, "", fmt.Errorf("unknown export format %q", format)
}

// SwapExt replaces the extension of path.
func SwapExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func writeGzipJSON(path string, level int, v any) error {
	return writeAtomic(path, func(w io.Writer) error {
		zw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return err
		}
		if err := json.NewEncoder(zw).Encode(v); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	})
}

func readGzipJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", errcode.ErrFileOpenFailed, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errcode.ErrDataParsingFailed, path, err)
	}
	defer zr.Close()

	if err := json.NewDecoder(zr).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", errcode.ErrDataParsingFailed, path, err)
	}
	return nil
}

// writeAtomic writes through a temp file in the destination directory and
// renames it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", errcode.ErrFileWriteFailed, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", errcode.ErrFileWriteFailed, err)
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	werr := write(bw)
	if werr == nil {
		werr = bw.Flush()
	}
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", errcode.ErrFileWriteFailed, werr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", errcode.ErrFileWriteFailed, err)
	}
	return nil
}
