// Package wcs implements the coverage-download protocol spoken by WCS-style
// forecast services: discovering the most recent model run from the
// capabilities listing, resolving the forecast-hour window for a run, and
// fetching one GRIB file per hour of that window.
package wcs

import (
	"fmt"
	"strings"
	"time"
)

// The service uses two wire formats for timestamps: run identifiers embedded
// in coverage ids carry dots, subset parameters and envelope positions carry
// colons. Both are UTC.
const (
	RunTimeLayout    = "2006-01-02T15.04.05Z"
	SubsetTimeLayout = "2006-01-02T15:04:05Z"
)

// RunTimePlaceholder is substituted with the run identifier when a
// coverage-id template is instantiated.
const RunTimePlaceholder = "{run_time}"

// RunTime identifies one model execution by its reference time.
type RunTime struct {
	t time.Time
}

// ParseRunTime parses a run identifier in the coverage-id wire format.
func ParseRunTime(s string) (RunTime, error) {
	t, err := time.Parse(RunTimeLayout, s)
	if err != nil {
		return RunTime{}, fmt.Errorf("parsing run time %q: %w", s, err)
	}
	return RunTime{t: t}, nil
}

func (r RunTime) String() string { return r.t.Format(RunTimeLayout) }

// Time returns the run's reference time.
func (r RunTime) Time() time.Time { return r.t }

func (r RunTime) IsZero() bool { return r.t.IsZero() }

// After reports whether r is a more recent run than o.
func (r RunTime) After(o RunTime) bool { return r.t.After(o.t) }

// FormatSubsetTime formats a forecast-hour timestamp in the subset wire format.
func FormatSubsetTime(t time.Time) string { return t.UTC().Format(SubsetTimeLayout) }

// ParseSubsetTime parses a timestamp in the subset wire format.
func ParseSubsetTime(s string) (time.Time, error) {
	t, err := time.Parse(SubsetTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing subset time %q: %w", s, err)
	}
	return t, nil
}

// DataType identifies one downloadable variable family of a model.
type DataType struct {
	// Name is the user-facing data-type name ("rain", "wind", …). It is
	// part of the output file names.
	Name string

	// Template is the coverage-id template containing RunTimePlaceholder.
	Template string

	// Offsets, when non-nil, is the static [start, end] forecast-hour
	// window relative to the run time.
	Offsets *[2]int
}

// split cuts the template around the run-time placeholder. The prefix must
// be non-empty; an empty suffix is legal (several services put the run time
// at the end of the coverage id).
func (d DataType) split() (prefix, suffix string, err error) {
	if strings.Count(d.Template, RunTimePlaceholder) != 1 {
		return "", "", fmt.Errorf("coverage-id template %q must contain exactly one %s placeholder", d.Template, RunTimePlaceholder)
	}
	prefix, suffix, _ = strings.Cut(d.Template, RunTimePlaceholder)
	if prefix == "" {
		return "", "", fmt.Errorf("coverage-id template %q must not start with the %s placeholder", d.Template, RunTimePlaceholder)
	}
	return prefix, suffix, nil
}

// CoverageID instantiates the template with the given run.
func (d DataType) CoverageID(run RunTime) string {
	return strings.Replace(d.Template, RunTimePlaceholder, run.String(), 1)
}

// RunFromCoverageID extracts the run identifier from a concrete coverage id
// matching this data type's template. The second return is false when the id
// does not match the template's prefix/suffix or the embedded run time does
// not parse.
func (d DataType) RunFromCoverageID(id string) (RunTime, bool) {
	prefix, suffix, err := d.split()
	if err != nil {
		return RunTime{}, false
	}
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return RunTime{}, false
	}
	middle, ok := strings.CutSuffix(rest, suffix)
	if !ok {
		return RunTime{}, false
	}
	run, err := ParseRunTime(middle)
	if err != nil {
		return RunTime{}, false
	}
	return run, true
}

// Validate checks the template invariant without instantiating it.
func (d DataType) Validate() error {
	_, _, err := d.split()
	return err
}

// Window is the closed interval of forecast hours retrievable for one
// run/data-type pair. Both bounds are aligned to whole hours.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow validates the window invariants: start <= end and both bounds on
// whole-hour boundaries.
func NewWindow(start, end time.Time) (Window, error) {
	if end.Before(start) {
		return Window{}, fmt.Errorf("window start %s is after end %s", FormatSubsetTime(start), FormatSubsetTime(end))
	}
	if !start.Truncate(time.Hour).Equal(start) {
		return Window{}, fmt.Errorf("window start %s is not on a whole-hour boundary", FormatSubsetTime(start))
	}
	if !end.Truncate(time.Hour).Equal(end) {
		return Window{}, fmt.Errorf("window end %s is not on a whole-hour boundary", FormatSubsetTime(end))
	}
	return Window{Start: start, End: end}, nil
}

// Hours returns the number of hourly subsets in the window, both bounds
// included. A window with start == end has one subset.
func (w Window) Hours() int {
	return int(w.End.Sub(w.Start)/time.Hour) + 1
}

func (w Window) StartString() string { return FormatSubsetTime(w.Start) }

func (w Window) EndString() string { return FormatSubsetTime(w.End) }

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", w.StartString(), w.EndString())
}
