package wcs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nwp-tools/gribfetch/internal/logging"
)

// gribFormat is the response format requested for coverage subsets.
const gribFormat = "application/wmo-grib"

// metadataFile is the per-run metadata record written next to the GRIB files.
const metadataFile = "run_info.json"

// RunMetadata is the record persisted alongside a run's GRIB files. One
// record per run; a reused output directory gets its record overwritten.
type RunMetadata struct {
	DownloadID   string `json:"download_id"`
	RunTime      string `json:"run_time"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	DownloadedAt string `json:"downloaded_at"`
}

// RunArtifact describes the files produced for one (data type, run) pair.
type RunArtifact struct {
	Dir      string
	Files    []string
	Metadata RunMetadata
}

// Downloader drives the hourly fetch loop for one run. Downloads are fully
// sequential; one subset request is in flight at a time.
type Downloader struct {
	// Client executes the coverage requests.
	Client *Client

	// Path is the GetCoverage endpoint path.
	Path string

	// Logger receives optional diagnostic output.
	Logger *logging.Logger

	// OnProgress, when set, is called after each hourly file is written.
	OnProgress func(done, total int, subsetTime string)
}

// DownloadRun fetches one GRIB file per hour of the window into outputDir
// and writes the run metadata record.
//
// The output directory is cleared and recreated first: a prior artifact in
// the same directory is destroyed rather than appended to, so a rerun never
// leaves stale hours from an older, longer window behind. Any single-hour
// fetch failure aborts the download; the partially populated directory must
// be treated as untrusted.
func (d *Downloader) DownloadRun(ctx context.Context, dt DataType, run RunTime, window Window, outputDir string) (*RunArtifact, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}

	if err := os.RemoveAll(outputDir); err != nil {
		return nil, fmt.Errorf("clearing output directory %s: %w", outputDir, err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", outputDir, err)
	}

	coverageID := dt.CoverageID(run)
	total := window.Hours()

	artifact := &RunArtifact{Dir: outputDir}

	for current, done := window.Start, 0; !current.After(window.End); current = current.Add(time.Hour) {
		subsetTime := FormatSubsetTime(current)

		body, err := d.Client.Fetch(ctx, d.Path, url.Values{
			"coverageid": {coverageID},
			"subset":     {fmt.Sprintf("time(%s)", subsetTime)},
			"format":     {gribFormat},
		})
		if err != nil {
			return nil, fmt.Errorf("downloading subset %s of %s: %w", subsetTime, coverageID, err)
		}

		name := fmt.Sprintf("%s_%s_%s.grib", dt.Name, run, subsetTime)
		path := filepath.Join(outputDir, name)
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}

		d.Logger.Logf(coverageID, "downloaded %s (%d bytes)", name, len(body))
		artifact.Files = append(artifact.Files, name)

		done++
		if d.OnProgress != nil {
			d.OnProgress(done, total, subsetTime)
		}
	}

	meta := RunMetadata{
		DownloadID:   uuid.New().String(),
		RunTime:      run.String(),
		StartTime:    window.StartString(),
		EndTime:      window.EndString(),
		DownloadedAt: time.Now().UTC().Format(SubsetTimeLayout),
	}
	if err := writeMetadata(outputDir, meta); err != nil {
		return nil, err
	}

	artifact.Metadata = meta
	d.Logger.Logf(coverageID, "run metadata saved (%d file(s))", len(artifact.Files))
	return artifact, nil
}

func writeMetadata(outputDir string, meta RunMetadata) error {
	data, err := json.MarshalIndent(meta, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding run metadata: %w", err)
	}
	path := filepath.Join(outputDir, metadataFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadMetadata reads the metadata record of a previously downloaded run.
func ReadMetadata(outputDir string) (RunMetadata, error) {
	var meta RunMetadata
	data, err := os.ReadFile(filepath.Join(outputDir, metadataFile))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parsing %s: %w", metadataFile, err)
	}
	return meta, nil
}
