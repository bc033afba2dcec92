package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nwp-tools/gribfetch/internal/apperr"
	"github.com/nwp-tools/gribfetch/internal/config"
	"github.com/nwp-tools/gribfetch/internal/logging"
	"github.com/nwp-tools/gribfetch/internal/ui"
	"github.com/nwp-tools/gribfetch/internal/wcs"
)

// downloadCmd runs the full pipeline: discover the latest run (unless one is
// given), resolve its forecast window, fetch one GRIB file per hour and write
// the run metadata record.
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the GRIB files of a forecast run",
	Long:  "Downloads a complete forecast run for one data type: discovers the most recent run from GetCapabilities (or uses --run), resolves the forecast-hour window from static offsets or DescribeCoverage, and fetches one GRIB file per hour into the output directory. The directory is cleared before downloading.",
	RunE:  runDownload,
}

func init() {
	downloadCmd.Flags().StringP("data-type", "d", "", "Data type to download (as named in the model settings)")
	downloadCmd.Flags().String("run", "", "Run to download instead of the latest (e.g. 2024-11-17T15.00.00Z)")
	downloadCmd.Flags().StringP("output", "o", "grib_files", "Output directory (cleared before downloading)")
	downloadCmd.Flags().String("window", "auto", "Window resolution: auto, static or describe")
	downloadCmd.Flags().Int("timeout", 5, "Per-request timeout in seconds")
	downloadCmd.Flags().Int("max-retries", 0, "Attempts per request before giving up (0 = retry timeouts forever)")
	downloadCmd.Flags().Int("backoff", 2, "Wait between timed-out attempts in seconds")
	downloadCmd.Flags().String("log-level", "standard", "Output detail: quiet, standard or debug")
	downloadCmd.Flags().BoolP("yes", "y", false, "Clear a non-empty output directory without asking")
	downloadCmd.Flags().BoolP("interactive", "i", false, "Pick the data type interactively")

	viper.BindPFlag("download.data-type", downloadCmd.Flags().Lookup("data-type"))
	viper.BindPFlag("download.run", downloadCmd.Flags().Lookup("run"))
	viper.BindPFlag("download.output", downloadCmd.Flags().Lookup("output"))
	viper.BindPFlag("download.window", downloadCmd.Flags().Lookup("window"))
	viper.BindPFlag("download.timeout", downloadCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("download.max-retries", downloadCmd.Flags().Lookup("max-retries"))
	viper.BindPFlag("download.backoff", downloadCmd.Flags().Lookup("backoff"))
	viper.BindPFlag("download.log-level", downloadCmd.Flags().Lookup("log-level"))
	viper.BindPFlag("download.yes", downloadCmd.Flags().Lookup("yes"))
	viper.BindPFlag("download.interactive", downloadCmd.Flags().Lookup("interactive"))
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	logLevel := viper.GetString("download.log-level")
	switch logLevel {
	case "quiet", "standard", "debug":
	default:
		return apperr.Userf("unknown log level %q (expected quiet, standard or debug)", logLevel)
	}
	quiet := logLevel == "quiet"

	var logger *logging.Logger
	if logLevel == "debug" {
		logger = &logging.Logger{
			Writer:      cmd.ErrOrStderr(),
			PrefixText:  "Debug:",
			PrefixColor: ui.FgMagenta,
		}
	}

	settings, model, name, err := loadModel()
	if err != nil {
		return err
	}

	dtName, err := resolveDataTypeName(model, name)
	if err != nil {
		return err
	}
	dtConfig, ok := model.DataTypes[dtName]
	if !ok {
		return apperr.Userf("unknown data type %q for model %s (known data types: %s)",
			dtName, name, strings.Join(model.DataTypeNames(), ", "))
	}
	dt := dataTypeFromConfig(dtName, dtConfig)

	outputDir := viper.GetString("download.output")
	if outputDir == "" {
		return apperr.User("output directory must not be empty")
	}

	// The directory is cleared before downloading, so ask before touching a
	// non-empty one. Ordered before any network traffic so a declined prompt
	// costs nothing.
	if !viper.GetBool("download.yes") && !quiet {
		if entries, err := os.ReadDir(outputDir); err == nil && len(entries) > 0 {
			if err := ui.ConfirmClearDir(outputDir); err != nil {
				return err
			}
		}
	}

	retry := wcs.RetryPolicy{
		MaxAttempts: viper.GetInt("download.max-retries"),
		Backoff:     time.Duration(viper.GetInt("download.backoff")) * time.Second,
	}
	timeout := time.Duration(viper.GetInt("download.timeout")) * time.Second
	client := newWCSClient(settings, model, name, timeout, retry, logger)

	dui := ui.NewDownloadUI(out, quiet)
	dui.StartWorkflow(dtName)

	// Run discovery, unless a run was pinned on the command line.
	var run wcs.RunTime
	if pinned := viper.GetString("download.run"); pinned != "" {
		run, err = wcs.ParseRunTime(pinned)
		if err != nil {
			dui.FailDiscover(err)
			return apperr.Userf("invalid --run %q: expected the %s layout", pinned, wcs.RunTimeLayout)
		}
		dui.SkipDiscover(run.String())
	} else {
		dui.StartDiscover(model.Server)
		catalog := &wcs.Catalog{Client: client, Path: model.GetCapabilitiesPath, Logger: logger}
		run, err = catalog.LatestRun(ctx, dt)
		if errors.Is(err, wcs.ErrNoRun) {
			dui.FailDiscover(err)
			dui.LogStep("warning", fmt.Sprintf("No %s run published yet on %s", dtName, model.Server))
			return nil
		}
		if err != nil {
			dui.FailDiscover(err)
			return err
		}
		dui.CompleteDiscover(run.String())
	}

	// Window resolution.
	resolver, err := windowResolverFor(dt, model, client, logger)
	if err != nil {
		dui.FailResolve(err)
		return err
	}
	dui.StartResolve(resolver.Strategy())
	window, err := resolver.ResolveWindow(ctx, dt, run)
	if err != nil {
		dui.FailResolve(err)
		return err
	}
	dui.CompleteResolve(window.StartString(), window.EndString(), window.Hours())

	// Hourly fetch loop.
	total := window.Hours()
	dui.StartFetch(total)
	downloader := &wcs.Downloader{
		Client: client,
		Path:   model.GetCoveragePath,
		Logger: logger,
		OnProgress: func(done, total int, subsetTime string) {
			dui.UpdateFetch(done, total, subsetTime)
		},
	}
	artifact, err := downloader.DownloadRun(ctx, dt, run, window, outputDir)
	if err != nil {
		dui.FailFetch(err)
		return err
	}
	dui.CompleteFetch(len(artifact.Files))

	dui.StartMetadata()
	dui.CompleteMetadata(filepath.Join(artifact.Dir, "run_info.json"))

	dui.PrintSummary(len(artifact.Files), artifact.Dir)
	return nil
}

// resolveDataTypeName picks the data type from the flag or, with
// --interactive, from the selector. The two are mutually exclusive.
func resolveDataTypeName(model config.Model, modelName string) (string, error) {
	flagged := viper.GetString("download.data-type")
	interactive := viper.GetBool("download.interactive")

	if interactive && flagged != "" {
		return "", apperr.User("--data-type and --interactive are mutually exclusive")
	}

	if !interactive {
		if flagged == "" {
			return "", apperr.User("a data type is required: pass --data-type or use --interactive")
		}
		return flagged, nil
	}

	choices := make([]ui.DataTypeChoice, 0, len(model.DataTypes))
	for _, name := range model.DataTypeNames() {
		dt := model.DataTypes[name]
		choice := ui.DataTypeChoice{Name: name, CoverageID: dt.CoverageID}
		if dt.HasOffsets() {
			choice.Offsets = fmt.Sprintf("[%d, %d]", dt.TimeOffsets[0], dt.TimeOffsets[1])
		}
		choices = append(choices, choice)
	}

	return ui.RunDataTypeSelector(modelName, choices)
}

// windowResolverFor honors the --window flag, falling back to automatic
// selection: static offsets when configured, DescribeCoverage otherwise.
func windowResolverFor(dt wcs.DataType, model config.Model, client *wcs.Client, logger *logging.Logger) (wcs.WindowResolver, error) {
	describe := &wcs.DescribeWindow{Client: client, Path: model.DescribeCoveragePath, Logger: logger}

	switch mode := viper.GetString("download.window"); mode {
	case "auto":
		return wcs.ResolverFor(dt, describe), nil
	case "static":
		if dt.Offsets == nil {
			return nil, apperr.Userf("data type %s has no static time offsets configured", dt.Name)
		}
		return wcs.StaticWindow{}, nil
	case "describe":
		if model.DescribeCoveragePath == "" {
			return nil, apperr.User("the model settings define no describe_coverage_path")
		}
		return describe, nil
	default:
		return nil, apperr.Userf("unknown window mode %q (expected auto, static or describe)", mode)
	}
}
