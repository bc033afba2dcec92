package wcs

import (
	"context"
	"encoding/xml"
	"errors"
	"net/url"

	"github.com/nwp-tools/gribfetch/internal/logging"
)

// ErrNoRun is returned by LatestRun when the capabilities listing holds no
// coverage matching the data type. It is a normal "no data published yet"
// outcome, not a failure; callers distinguish it with errors.Is.
var ErrNoRun = errors.New("no matching run found")

// capabilitiesDoc captures the part of a GetCapabilities response the
// catalog cares about: the flat list of coverage ids.
type capabilitiesDoc struct {
	XMLName  xml.Name `xml:"Capabilities"`
	Contents struct {
		Summaries []struct {
			CoverageID string `xml:"http://www.opengis.net/wcs/2.0 CoverageId"`
		} `xml:"http://www.opengis.net/wcs/2.0 CoverageSummary"`
	} `xml:"http://www.opengis.net/wcs/2.0 Contents"`
}

// Catalog queries the service's capabilities listing to discover runs.
type Catalog struct {
	// Client executes the capabilities requests.
	Client *Client

	// Path is the GetCapabilities endpoint path.
	Path string

	// Logger receives optional diagnostic output.
	Logger *logging.Logger
}

// LatestRun returns the most recent run for which the service lists a
// coverage matching the data type's template. It returns ErrNoRun when no
// coverage matches or when the listing is empty or malformed; transport
// failures propagate as-is.
func (cat *Catalog) LatestRun(ctx context.Context, dt DataType) (RunTime, error) {
	if err := dt.Validate(); err != nil {
		return RunTime{}, err
	}

	body, err := cat.Client.Fetch(ctx, cat.Path, url.Values{"language": {"eng"}})
	if err != nil {
		return RunTime{}, err
	}

	var doc capabilitiesDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		// A listing we cannot parse carries no runs. Treated the same as
		// an empty listing rather than surfaced as a failure.
		cat.Logger.Logf(dt.Template, "unparseable capabilities document: %v", err)
		return RunTime{}, ErrNoRun
	}

	var latest RunTime
	var found bool
	for _, summary := range doc.Contents.Summaries {
		run, ok := dt.RunFromCoverageID(summary.CoverageID)
		if !ok {
			continue
		}
		if !found || run.After(latest) {
			latest = run
			found = true
		}
	}

	if !found {
		return RunTime{}, ErrNoRun
	}

	cat.Logger.Logf(dt.CoverageID(latest), "latest run %s", latest)
	return latest, nil
}
