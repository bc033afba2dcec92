package wcs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newDownloader(t *testing.T, handler http.HandlerFunc) *Downloader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(ClientOptions{
		BaseURL: srv.URL,
		Version: "2.0.1",
		Timeout: time.Second,
		Retry:   RetryPolicy{MaxAttempts: 1, Backoff: time.Millisecond},
	})
	return &Downloader{Client: client, Path: "/wcs/GetCoverage"}
}

func mustWindow(t *testing.T, start, end string) Window {
	t.Helper()
	s, err := ParseSubsetTime(start)
	if err != nil {
		t.Fatalf("ParseSubsetTime(%q): %v", start, err)
	}
	e, err := ParseSubsetTime(end)
	if err != nil {
		t.Fatalf("ParseSubsetTime(%q): %v", end, err)
	}
	w, err := NewWindow(s, e)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	return w
}

func TestDownloader_DownloadRun(t *testing.T) {
	var mu sync.Mutex
	var subsets []string
	var coverageIDs []string
	var formats []string

	d := newDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		subsets = append(subsets, r.URL.Query().Get("subset"))
		coverageIDs = append(coverageIDs, r.URL.Query().Get("coverageid"))
		formats = append(formats, r.URL.Query().Get("format"))
		mu.Unlock()
		fmt.Fprintf(w, "GRIB:%s", r.URL.Query().Get("subset"))
	})

	var progress []string
	d.OnProgress = func(done, total int, subsetTime string) {
		progress = append(progress, fmt.Sprintf("%d/%d %s", done, total, subsetTime))
	}

	dt := DataType{Name: "rain", Template: "RAIN___{run_time}"}
	run := mustRun(t, "2024-11-17T15.00.00Z")
	window := mustWindow(t, "2024-11-17T15:00:00Z", "2024-11-17T18:00:00Z")
	outputDir := filepath.Join(t.TempDir(), "grib_files")

	artifact, err := d.DownloadRun(context.Background(), dt, run, window, outputDir)
	if err != nil {
		t.Fatalf("DownloadRun: %v", err)
	}

	wantSubsets := []string{
		"time(2024-11-17T15:00:00Z)",
		"time(2024-11-17T16:00:00Z)",
		"time(2024-11-17T17:00:00Z)",
		"time(2024-11-17T18:00:00Z)",
	}
	if len(subsets) != len(wantSubsets) {
		t.Fatalf("issued %d requests, want %d", len(subsets), len(wantSubsets))
	}
	for i, want := range wantSubsets {
		if subsets[i] != want {
			t.Errorf("request %d subset = %q, want %q", i, subsets[i], want)
		}
		if coverageIDs[i] != "RAIN___2024-11-17T15.00.00Z" {
			t.Errorf("request %d coverageid = %q", i, coverageIDs[i])
		}
		if formats[i] != "application/wmo-grib" {
			t.Errorf("request %d format = %q", i, formats[i])
		}
	}

	wantFiles := []string{
		"rain_2024-11-17T15.00.00Z_2024-11-17T15:00:00Z.grib",
		"rain_2024-11-17T15.00.00Z_2024-11-17T16:00:00Z.grib",
		"rain_2024-11-17T15.00.00Z_2024-11-17T17:00:00Z.grib",
		"rain_2024-11-17T15.00.00Z_2024-11-17T18:00:00Z.grib",
	}
	if len(artifact.Files) != len(wantFiles) {
		t.Fatalf("artifact has %d files, want %d", len(artifact.Files), len(wantFiles))
	}
	for i, want := range wantFiles {
		if artifact.Files[i] != want {
			t.Errorf("file %d = %q, want %q", i, artifact.Files[i], want)
		}
		data, err := os.ReadFile(filepath.Join(outputDir, want))
		if err != nil {
			t.Fatalf("reading %s: %v", want, err)
		}
		if string(data) != "GRIB:"+wantSubsets[i] {
			t.Errorf("file %s content = %q", want, data)
		}
	}

	meta, err := ReadMetadata(outputDir)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.RunTime != "2024-11-17T15.00.00Z" {
		t.Errorf("metadata run_time = %q", meta.RunTime)
	}
	if meta.StartTime != "2024-11-17T15:00:00Z" || meta.EndTime != "2024-11-17T18:00:00Z" {
		t.Errorf("metadata window = %q..%q", meta.StartTime, meta.EndTime)
	}
	if meta.DownloadID == "" {
		t.Errorf("metadata download_id is empty")
	}
	if meta.DownloadedAt == "" {
		t.Errorf("metadata downloaded_at is empty")
	}

	if len(progress) != 4 {
		t.Fatalf("progress callbacks = %d, want 4", len(progress))
	}
	if progress[0] != "1/4 2024-11-17T15:00:00Z" || progress[3] != "4/4 2024-11-17T18:00:00Z" {
		t.Errorf("progress = %v", progress)
	}
}

func TestDownloader_DownloadRun_SingleHourWindow(t *testing.T) {
	var requests int
	d := newDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte("GRIB"))
	})

	dt := DataType{Name: "rain", Template: "RAIN___{run_time}"}
	run := mustRun(t, "2024-11-17T15.00.00Z")
	window := mustWindow(t, "2024-11-17T15:00:00Z", "2024-11-17T15:00:00Z")

	artifact, err := d.DownloadRun(context.Background(), dt, run, window, filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("DownloadRun: %v", err)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1", requests)
	}
	if len(artifact.Files) != 1 {
		t.Errorf("files = %d, want 1", len(artifact.Files))
	}
}

func TestDownloader_DownloadRun_ClearsPriorContents(t *testing.T) {
	d := newDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("GRIB"))
	})

	outputDir := filepath.Join(t.TempDir(), "out")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	stale := filepath.Join(outputDir, "rain_2024-11-16T15.00.00Z_2024-11-16T15:00:00Z.grib")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatalf("write stale file: %v", err)
	}

	dt := DataType{Name: "rain", Template: "RAIN___{run_time}"}
	run := mustRun(t, "2024-11-17T15.00.00Z")
	window := mustWindow(t, "2024-11-17T15:00:00Z", "2024-11-17T15:00:00Z")

	if _, err := d.DownloadRun(context.Background(), dt, run, window, outputDir); err != nil {
		t.Fatalf("DownloadRun: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale file survived the download")
	}
}

func TestDownloader_DownloadRun_Idempotent(t *testing.T) {
	d := newDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "GRIB:%s", r.URL.Query().Get("subset"))
	})

	dt := DataType{Name: "rain", Template: "RAIN___{run_time}"}
	run := mustRun(t, "2024-11-17T15.00.00Z")
	window := mustWindow(t, "2024-11-17T15:00:00Z", "2024-11-17T17:00:00Z")
	outputDir := filepath.Join(t.TempDir(), "out")

	first, err := d.DownloadRun(context.Background(), dt, run, window, outputDir)
	if err != nil {
		t.Fatalf("first DownloadRun: %v", err)
	}
	second, err := d.DownloadRun(context.Background(), dt, run, window, outputDir)
	if err != nil {
		t.Fatalf("second DownloadRun: %v", err)
	}

	if len(first.Files) != len(second.Files) {
		t.Fatalf("file counts differ: %d vs %d", len(first.Files), len(second.Files))
	}
	for i := range first.Files {
		if first.Files[i] != second.Files[i] {
			t.Errorf("file %d differs: %q vs %q", i, first.Files[i], second.Files[i])
		}
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	// 3 GRIB files plus run_info.json
	if len(entries) != 4 {
		t.Errorf("directory has %d entries, want 4", len(entries))
	}
}

func TestDownloader_DownloadRun_AbortsOnFetchFailure(t *testing.T) {
	var requests int
	d := newDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 3 {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Write([]byte("GRIB"))
	})

	dt := DataType{Name: "rain", Template: "RAIN___{run_time}"}
	run := mustRun(t, "2024-11-17T15.00.00Z")
	window := mustWindow(t, "2024-11-17T15:00:00Z", "2024-11-17T18:00:00Z")
	outputDir := filepath.Join(t.TempDir(), "out")

	_, err := d.DownloadRun(context.Background(), dt, run, window, outputDir)
	if err == nil {
		t.Fatalf("expected error when a subset fetch fails")
	}
	if requests != 3 {
		t.Errorf("requests = %d, want 3 (abort on first failure)", requests)
	}

	// The run metadata must not exist for an aborted download.
	if _, err := ReadMetadata(outputDir); !os.IsNotExist(err) {
		t.Errorf("expected no metadata record, got err=%v", err)
	}
}
