package cmd

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nwp-tools/gribfetch/internal/ui"
	"github.com/nwp-tools/gribfetch/internal/wcs"
)

// statusCmd probes the coverage service with a single GetCapabilities request.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the model's coverage service is reachable",
	Long:  "Issues one GetCapabilities request against the selected model's server and reports whether it answered. The request is never retried; a timeout counts as offline.",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Int("timeout", 5, "Per-request timeout in seconds")

	viper.BindPFlag("status.timeout", statusCmd.Flags().Lookup("timeout"))
}

func runStatus(cmd *cobra.Command, args []string) error {
	settings, model, name, err := loadModel()
	if err != nil {
		return err
	}

	timeout := time.Duration(viper.GetInt("status.timeout")) * time.Second

	// A status probe must answer promptly, so the retry loop is capped at
	// one attempt regardless of the download defaults.
	client := newWCSClient(settings, model, name, timeout, wcs.RetryPolicy{MaxAttempts: 1, Backoff: time.Second}, nil)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", ui.FormatKeyValue("Model", name))
	fmt.Fprintf(out, "%s\n", ui.FormatKeyValue("Server", model.Server))

	if _, err := client.Fetch(cmd.Context(), model.GetCapabilitiesPath, url.Values{"language": {"eng"}}); err != nil {
		fmt.Fprintf(out, "%s Service is %s: %s\n", ui.GetCrossMark(), ui.Error.Render("offline"), ui.Dim.Render(err.Error()))
		return nil
	}

	fmt.Fprintf(out, "%s Service is %s\n", ui.GetCheckMark(), ui.Success.Render("online"))
	return nil
}
