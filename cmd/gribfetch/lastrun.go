package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nwp-tools/gribfetch/internal/apperr"
	"github.com/nwp-tools/gribfetch/internal/ui"
	"github.com/nwp-tools/gribfetch/internal/wcs"
)

// lastrunCmd reports the most recent run published for a data type.
var lastrunCmd = &cobra.Command{
	Use:   "lastrun",
	Short: "Show the most recent published run for a data type",
	Long:  "Queries GetCapabilities for the selected model and reports the most recent run whose coverage id matches the data type's template. A service with no matching coverage yet is reported as such, not as an error.",
	RunE:  runLastrun,
}

func init() {
	lastrunCmd.Flags().StringP("data-type", "d", "", "Data type to query (as named in the model settings)")
	lastrunCmd.Flags().Int("timeout", 5, "Per-request timeout in seconds")
	lastrunCmd.Flags().Int("max-retries", 1, "Attempts per request before giving up")

	lastrunCmd.MarkFlagRequired("data-type")

	viper.BindPFlag("lastrun.data-type", lastrunCmd.Flags().Lookup("data-type"))
	viper.BindPFlag("lastrun.timeout", lastrunCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("lastrun.max-retries", lastrunCmd.Flags().Lookup("max-retries"))
}

func runLastrun(cmd *cobra.Command, args []string) error {
	settings, model, name, err := loadModel()
	if err != nil {
		return err
	}

	dtName := viper.GetString("lastrun.data-type")
	dtConfig, ok := model.DataTypes[dtName]
	if !ok {
		return apperr.Userf("unknown data type %q for model %s (known data types: %s)",
			dtName, name, strings.Join(model.DataTypeNames(), ", "))
	}
	dt := dataTypeFromConfig(dtName, dtConfig)

	retry := wcs.RetryPolicy{
		MaxAttempts: viper.GetInt("lastrun.max-retries"),
		Backoff:     wcs.DefaultBackoff,
	}
	timeout := time.Duration(viper.GetInt("lastrun.timeout")) * time.Second
	client := newWCSClient(settings, model, name, timeout, retry, nil)

	catalog := &wcs.Catalog{Client: client, Path: model.GetCapabilitiesPath}

	out := cmd.OutOrStdout()

	run, err := catalog.LatestRun(cmd.Context(), dt)
	if errors.Is(err, wcs.ErrNoRun) {
		fmt.Fprintf(out, "%s No %s run published yet on %s\n", ui.GetWarnMark(), dtName, model.Server)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\n", ui.FormatKeyValue("Data type", dtName))
	fmt.Fprintf(out, "%s\n", ui.FormatKeyValue("Latest run", run.String()))
	fmt.Fprintf(out, "%s\n", ui.FormatKeyValue("Coverage id", dt.CoverageID(run)))
	return nil
}
