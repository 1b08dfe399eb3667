package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jamesainslie/spectra/pkg/daemon/store"
	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(dataset.Metadata{Name: "run1", InstrumentID: "SIM-0001"}, []float64{10, 11, 12}, dataset.Options{})
	if err != nil {
		t.Fatalf("dataset.New failed: %v", err)
	}
	for i, row := range [][]float64{{1, 2, 3}, {4, 5, 6}} {
		if err := ds.Append(float64(i), 0, row); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	ds.Close()
	return ds
}

func TestStoreBasicOperations(t *testing.T) {
	s := openStore(t)

	entry := &store.Entry{
		SessionID:  "abc",
		Name:       "run1",
		Path:       "/data/run1.spx",
		NumSpectra: 12,
		Reason:     "completed",
		FinishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := s.Put(entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get("abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if diff := cmp.Diff(entry, got); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}

	if err := s.Put(&store.Entry{Name: "nameless"}); err == nil {
		t.Error("expected error for entry without session id")
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := openStore(t)

	_, err := s.Get("nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	_, err = s.Record("/nope.spx")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreList(t *testing.T) {
	s := openStore(t)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		if err := s.Put(&store.Entry{SessionID: id, FinishedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := s.PutDataset("/data/x.spx", testDataset(t)); err != nil {
		t.Fatalf("PutDataset failed: %v", err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.SessionID)
	}
	if diff := cmp.Diff([]string{"third", "second", "first"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}

func TestStoreDatasetRoundTrip(t *testing.T) {
	s := openStore(t)
	ds := testDataset(t)

	if err := s.PutDataset("/data/run1.spx", ds); err != nil {
		t.Fatalf("PutDataset failed: %v", err)
	}
	loaded, err := s.LoadDataset("/data/run1.spx", dataset.Options{})
	if err != nil {
		t.Fatalf("LoadDataset failed: %v", err)
	}
	if diff := cmp.Diff(ds.Arrays(), loaded.Arrays()); diff != "" {
		t.Errorf("arrays mismatch (-want +got):\n%s", diff)
	}
	if loaded.Metadata().InstrumentID != "SIM-0001" {
		t.Errorf("InstrumentID = %q", loaded.Metadata().InstrumentID)
	}
}

func TestStorePersister(t *testing.T) {
	s := openStore(t)
	ds := testDataset(t)

	var p dataset.Persister = s
	if err := ds.Save("exports/run1", p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := s.Arrays("exports/run1")
	if err != nil {
		t.Fatalf("Arrays failed: %v", err)
	}
	if diff := cmp.Diff(ds.Arrays(), got); diff != "" {
		t.Errorf("arrays mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreDelete(t *testing.T) {
	s := openStore(t)

	if err := s.Put(&store.Entry{SessionID: "gone", Path: "/data/gone.spx"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.PutDataset("/data/gone.spx", testDataset(t)); err != nil {
		t.Fatalf("PutDataset failed: %v", err)
	}

	if err := s.Delete("gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get("gone"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected entry to be gone, got %v", err)
	}
	if _, err := s.Record("/data/gone.spx"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected record to be gone, got %v", err)
	}
	if err := s.Delete("gone"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Delete: expected ErrNotFound, got %v", err)
	}
}

func TestStoreReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Put(&store.Entry{SessionID: "kept"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = store.Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	if _, err := s.Get("kept"); err != nil {
		t.Errorf("entry lost across reopen: %v", err)
	}
}
