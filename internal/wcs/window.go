package wcs

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"time"

	"github.com/nwp-tools/gribfetch/internal/logging"
)

// WindowResolver determines the forecast-hour window available for a
// run/data-type pair. Two interchangeable strategies exist: StaticWindow
// computes the window from configured offsets without a network call,
// DescribeWindow queries the service's DescribeCoverage endpoint.
type WindowResolver interface {
	ResolveWindow(ctx context.Context, dt DataType, run RunTime) (Window, error)

	// Strategy names the resolution strategy for diagnostics.
	Strategy() string
}

// StaticWindow resolves the window by adding the data type's configured
// offsets to the run time. It requires the data type to carry offsets.
type StaticWindow struct{}

func (StaticWindow) Strategy() string { return "static offsets" }

func (StaticWindow) ResolveWindow(_ context.Context, dt DataType, run RunTime) (Window, error) {
	if dt.Offsets == nil {
		return Window{}, fmt.Errorf("data type %q has no configured time offsets", dt.Name)
	}
	start := run.Time().Add(time.Duration(dt.Offsets[0]) * time.Hour)
	end := run.Time().Add(time.Duration(dt.Offsets[1]) * time.Hour)
	return NewWindow(start, end)
}

// describeDoc captures the time-period envelope of a DescribeCoverage
// response.
type describeDoc struct {
	XMLName      xml.Name
	Descriptions []struct {
		BoundedBy struct {
			Envelope *timePeriodEnvelope `xml:"http://www.opengis.net/gml/3.2 EnvelopeWithTimePeriod"`
		} `xml:"http://www.opengis.net/gml/3.2 boundedBy"`
	} `xml:"http://www.opengis.net/wcs/2.0 CoverageDescription"`
}

type timePeriodEnvelope struct {
	BeginPosition string `xml:"http://www.opengis.net/gml/3.2 beginPosition"`
	EndPosition   string `xml:"http://www.opengis.net/gml/3.2 endPosition"`
}

// DescribeWindow resolves the window by asking the service to describe the
// concrete coverage id. A response without a time-period envelope means the
// server does not recognize the coverage, typically because the run does not
// exist or has expired.
type DescribeWindow struct {
	// Client executes the description requests.
	Client *Client

	// Path is the DescribeCoverage endpoint path.
	Path string

	// Logger receives optional diagnostic output.
	Logger *logging.Logger
}

func (d *DescribeWindow) Strategy() string { return "describe coverage" }

func (d *DescribeWindow) ResolveWindow(ctx context.Context, dt DataType, run RunTime) (Window, error) {
	coverageID := dt.CoverageID(run)

	body, err := d.Client.Fetch(ctx, d.Path, url.Values{"coverageID": {coverageID}})
	if err != nil {
		return Window{}, err
	}

	var doc describeDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return Window{}, fmt.Errorf("parsing coverage description for %s: %w", coverageID, err)
	}

	var envelope *timePeriodEnvelope
	for _, desc := range doc.Descriptions {
		if desc.BoundedBy.Envelope != nil {
			envelope = desc.BoundedBy.Envelope
			break
		}
	}
	if envelope == nil {
		return Window{}, fmt.Errorf("no time period in description of coverage %s (run may not exist or has expired)", coverageID)
	}

	start, err := ParseSubsetTime(envelope.BeginPosition)
	if err != nil {
		return Window{}, fmt.Errorf("coverage %s: %w", coverageID, err)
	}
	end, err := ParseSubsetTime(envelope.EndPosition)
	if err != nil {
		return Window{}, fmt.Errorf("coverage %s: %w", coverageID, err)
	}

	w, err := NewWindow(start, end)
	if err != nil {
		return Window{}, fmt.Errorf("coverage %s: %w", coverageID, err)
	}

	d.Logger.Logf(coverageID, "window %s", w)
	return w, nil
}

// ResolverFor picks the resolution strategy for a data type: static when
// offsets are configured, describe otherwise.
func ResolverFor(dt DataType, describe *DescribeWindow) WindowResolver {
	if dt.Offsets != nil {
		return StaticWindow{}
	}
	return describe
}
