// Package convert exports recorded datasets to arrays files in bulk.
//
// Every *.spx file under a root is loaded and written next to itself as
// .spz (or .yaml). Files whose destination already exists are skipped, and
// a file that fails to convert is logged and counted without stopping the
// run.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/spectra/pkg/spectra/archive"
	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
	"github.com/jamesainslie/spectra/pkg/spectra/logging"
)

// Status is the outcome of converting one file.
type Status int

// Outcomes.
const (
	StatusConverted Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConverted:
		return "converted"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes one file.
type Result struct {
	Source string
	Dest   string
	Status Status
	Err    error
}

// Report summarises a run.
type Report struct {
	Converted int
	Skipped   int
	Failed    int
	Failures  []Result
}

// Total returns the number of dataset files seen.
func (r Report) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// Options configures a Converter.
type Options struct {
	// Format is "spz" (default) or "yaml".
	Format string

	// Dataset is used when loading source files.
	Dataset dataset.Options

	// OnResult is called for every file, possibly from several goroutines.
	OnResult func(Result)
}

// Converter converts dataset files.
type Converter struct {
	opts      Options
	persister dataset.Persister
	ext       string

	converted atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// New returns a converter for opts.Format.
func New(opts Options) (*Converter, error) {
	p, ext, err := archive.PersisterFor(opts.Format)
	if err != nil {
		return nil, err
	}
	return &Converter{opts: opts, persister: p, ext: ext}, nil
}

// Ext returns the destination extension.
func (c *Converter) Ext() string {
	return c.ext
}

// Counts returns the running totals across every Run and ConvertFile call.
func (c *Converter) Counts() (converted, skipped, failed int64) {
	return c.converted.Load(), c.skipped.Load(), c.failed.Load()
}

// IsSource reports whether path names a dataset file.
func IsSource(path string) bool {
	return strings.EqualFold(filepath.Ext(path), archive.DatasetExt) &&
		!strings.HasPrefix(filepath.Base(path), ".")
}

// Run converts every dataset file under root. The walk stops early when ctx
// is cancelled; the report then covers the files seen so far.
func (c *Converter) Run(ctx context.Context, root string) (Report, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Report{}, err
	}
	if !info.IsDir() {
		return c.report([]Result{c.ConvertFile(root)}), nil
	}

	var (
		mu      sync.Mutex
		results []Result
	)
	conf := fastwalk.Config{Follow: false}
	walkErr := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fastwalk.ErrSkipFiles
		}
		if err != nil {
			logging.Get("convert").Warn("walk error", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || !IsSource(path) {
			return nil
		}
		res := c.ConvertFile(path)
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fastwalk.ErrSkipFiles) {
		return c.report(results), walkErr
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Source < results[j].Source })
	rep := c.report(results)
	logging.Get("convert").Info("conversion finished", "root", root,
		"converted", rep.Converted, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, ctx.Err()
}

func (c *Converter) report(results []Result) Report {
	var rep Report
	for _, r := range results {
		switch r.Status {
		case StatusConverted:
			rep.Converted++
		case StatusSkipped:
			rep.Skipped++
		case StatusFailed:
			rep.Failed++
			rep.Failures = append(rep.Failures, r)
		}
	}
	return rep
}

// ConvertFile converts one dataset file unless its destination exists.
func (c *Converter) ConvertFile(src string) Result {
	res := Result{Source: src, Dest: archive.SwapExt(src, c.ext)}
	log := logging.Get("convert")

	switch _, err := os.Stat(res.Dest); {
	case err == nil:
		res.Status = StatusSkipped
	case !errors.Is(err, fs.ErrNotExist):
		res.Status, res.Err = StatusFailed, err
	default:
		if err := c.convert(res.Source, res.Dest); err != nil {
			res.Status, res.Err = StatusFailed, err
		} else {
			res.Status = StatusConverted
		}
	}

	switch res.Status {
	case StatusConverted:
		c.converted.Add(1)
		log.Info("converted", "source", res.Source, "dest", res.Dest)
	case StatusSkipped:
		c.skipped.Add(1)
		log.Debug("skipped, destination exists", "source", res.Source)
	case StatusFailed:
		c.failed.Add(1)
		log.Error("conversion failed", "source", res.Source, "error", res.Err)
	}

	if c.opts.OnResult != nil {
		c.opts.OnResult(res)
	}
	return res
}

func (c *Converter) convert(src, dest string) error {
	ds, err := archive.ReadDataset(src, c.opts.Dataset)
	if err != nil {
		return fmt.Errorf("loading %s: %w", src, err)
	}
	return ds.Save(dest, c.persister)
}
