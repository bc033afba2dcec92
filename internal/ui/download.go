package ui

import (
	"fmt"
	"io"
	"time"
)

// Fixed task indexes in the download workflow.
const (
	taskDiscover = iota
	taskResolve
	taskFetch
	taskMetadata
)

// DownloadUI provides a rich UI for the download command
type DownloadUI struct {
	writer    io.Writer
	quiet     bool
	workflow  *Workflow
	startTime time.Time
}

// NewDownloadUI creates a new UI handler for the download command
func NewDownloadUI(w io.Writer, quiet bool) *DownloadUI {
	return &DownloadUI{
		writer:    w,
		quiet:     quiet,
		startTime: time.Now(),
	}
}

// StartWorkflow initializes and displays the workflow for a run download
func (d *DownloadUI) StartWorkflow(dataType string) {
	if d.quiet {
		return
	}

	d.startTime = time.Now()
	d.workflow = NewWorkflow(d.writer)
	d.workflow.AddTask(fmt.Sprintf("Discovering latest %s run", dataType))
	d.workflow.AddTask("Resolving forecast window")
	d.workflow.AddTask("Downloading GRIB files")
	d.workflow.AddTask("Writing run metadata")
	d.workflow.Start()
}

// StartDiscover marks run discovery as running
func (d *DownloadUI) StartDiscover(server string) {
	if d.quiet || d.workflow == nil {
		return
	}
	d.workflow.StartTask(taskDiscover, Dim.Render(server))
}

// CompleteDiscover marks run discovery as complete
func (d *DownloadUI) CompleteDiscover(run string) {
	if d.quiet || d.workflow == nil {
		return
	}
	d.workflow.CompleteTask(taskDiscover, run)
}

// SkipDiscover marks run discovery as skipped (run given on the command line)
func (d *DownloadUI) SkipDiscover(run string) {
	if d.quiet || d.workflow == nil {
		return
	}
	d.workflow.SkipTask(taskDiscover, fmt.Sprintf("using %s", run))
}

// StartResolve marks window resolution as running
func (d *DownloadUI) StartResolve(strategy string) {
	if d.quiet || d.workflow == nil {
		return
	}
	d.workflow.StartTask(taskResolve, Dim.Render(strategy))
}

// CompleteResolve marks window resolution as complete
func (d *DownloadUI) CompleteResolve(start, end string, hours int) {
	if d.quiet || d.workflow == nil {
		return
	}
	d.workflow.CompleteTask(taskResolve, fmt.Sprintf("%s → %s (%d file(s))", start, end, hours))
}

// StartFetch marks the hourly fetch loop as running
func (d *DownloadUI) StartFetch(total int) {
	if d.quiet || d.workflow == nil {
		return
	}
	d.workflow.StartTask(taskFetch, Dim.Render(fmt.Sprintf("0/%d", total)))
}

// UpdateFetch updates the fetch progress message
func (d *DownloadUI) UpdateFetch(done, total int, subsetTime string) {
	if d.quiet || d.workflow == nil {
		return
	}
	d.workflow.UpdateMessage(taskFetch, Dim.Render(fmt.Sprintf("%d/%d %s", done, total, subsetTime)))
}

// CompleteFetch marks the hourly fetch loop as complete
func (d *DownloadUI) CompleteFetch(total int) {
	if d.quiet || d.workflow == nil {
		return
	}
	d.workflow.CompleteTask(taskFetch, fmt.Sprintf("%d file(s)", total))
}

// StartMetadata marks the metadata write as running
func (d *DownloadUI) StartMetadata() {
	if d.quiet || d.workflow == nil {
		return
	}
	d.workflow.StartTask(taskMetadata, "")
}

// CompleteMetadata marks the metadata write as complete
func (d *DownloadUI) CompleteMetadata(path string) {
	if d.quiet || d.workflow == nil {
		return
	}
	d.workflow.CompleteTask(taskMetadata, path)
}

// Fail marks the given task as failed and stops the workflow
func (d *DownloadUI) Fail(task int, err error) {
	if d.quiet || d.workflow == nil {
		return
	}
	d.workflow.FailTask(task, err.Error())
	d.workflow.Stop()
}

// FailDiscover, FailResolve, FailFetch and FailMetadata report a failure of
// the corresponding workflow step.
func (d *DownloadUI) FailDiscover(err error) { d.Fail(taskDiscover, err) }
func (d *DownloadUI) FailResolve(err error)  { d.Fail(taskResolve, err) }
func (d *DownloadUI) FailFetch(err error)    { d.Fail(taskFetch, err) }
func (d *DownloadUI) FailMetadata(err error) { d.Fail(taskMetadata, err) }

// LogStep prints a one-line status message outside the workflow display
func (d *DownloadUI) LogStep(status, message string) {
	if d.quiet {
		return
	}
	var icon string
	switch status {
	case "success":
		icon = GetCheckMark()
	case "error":
		icon = GetCrossMark()
	case "warning":
		icon = GetWarnMark()
	case "info":
		icon = GetInfoMark()
	default:
		icon = GetBullet()
	}
	fmt.Fprintf(d.writer, "%s %s\n", icon, message)
}

// PrintSummary prints the final download summary
func (d *DownloadUI) PrintSummary(files int, outputDir string) {
	if d.workflow != nil {
		d.workflow.Stop()
	}
	if d.quiet {
		return
	}
	elapsed := time.Since(d.startTime).Round(time.Second)
	fmt.Fprintln(d.writer)
	fmt.Fprintf(d.writer, "%s Downloaded %s to %s %s\n",
		GetCheckMark(),
		Bold.Render(fmt.Sprintf("%d file(s)", files)),
		Secondary.Render(outputDir),
		Dim.Render(fmt.Sprintf("in %s", elapsed)),
	)
}
