package cmd

import (
	"os"
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

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gribfetch",
	Short: "Download NWP forecast runs in GRIB format from WCS coverage services",
	Long:  longDescription,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initBanner(cmd)
	},

	// When invoked without a subcommand, show help (with banner) instead of
	// printing a plain usage output.
	RunE: func(cmd *cobra.Command, args []string) error {
		initBanner(cmd)
		return cmd.Help()
	},
}

var (
	modelSettingsPath string
	userSettingsPath  string
	modelName         string

	version string
)

// SetVersion sets the version for the CLI
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// GetRootCmd returns the root command for use with fang
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().StringVar(&modelSettingsPath, "model-settings", "settings/model_settings.json", "Path to the model settings JSON file")
	rootCmd.PersistentFlags().StringVar(&userSettingsPath, "user-settings", "settings/user_settings.json", "Path to the user settings JSON file")
	rootCmd.PersistentFlags().StringVarP(&modelName, "model", "m", "arome001", "Model entry to use from the model settings file")

	viper.BindPFlag("model-settings", rootCmd.PersistentFlags().Lookup("model-settings"))
	viper.BindPFlag("user-settings", rootCmd.PersistentFlags().Lookup("user-settings"))
	viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))

	// Ensure `--help` (and help subcommands) show the banner consistently.
	defaultHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		initBanner(cmd)
		defaultHelp(cmd, args)
	})

	// Add subcommands
	rootCmd.AddCommand(statusCmd, datatypesCmd, lastrunCmd, downloadCmd)
}

// initEnv enables environment variable support (e.g. GRIBFETCH_MODEL,
// GRIBFETCH_DOWNLOAD_OUTPUT). Dots in viper keys map to underscores:
// download.output -> GRIBFETCH_DOWNLOAD_OUTPUT.
func initEnv() {
	viper.SetEnvPrefix("GRIBFETCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	ui.Init(os.Getenv("NO_COLOR") != "")
}

const longDescription = "Download numerical-weather-prediction forecast runs in GRIB format from WCS-style coverage services (GetCapabilities / DescribeCoverage / GetCoverage), such as the Météo-France AROME endpoints. Discovers the most recent run, resolves its forecast-hour window, and fetches one file per hour."

func initBanner(cmd *cobra.Command) {
	if cmd == nil {
		return
	}
	cmd.Root().Long = ui.RenderBanner(ui.BannerASCII) + "\n" + longDescription
}

// loadModel loads both settings files and returns the selected model entry.
// Unknown models surface as UserErrors so usage help is not repeated.
func loadModel() (*config.Settings, config.Model, string, error) {
	name := viper.GetString("model")

	settings, err := config.Load(viper.GetString("model-settings"), viper.GetString("user-settings"))
	if err != nil {
		return nil, config.Model{}, "", err
	}

	model, err := settings.Model(name)
	if err != nil {
		return nil, config.Model{}, "", apperr.User(err.Error())
	}

	return settings, model, name, nil
}

// dataTypeFromConfig maps a configured data type into the wcs domain type.
func dataTypeFromConfig(name string, c config.DataType) wcs.DataType {
	dt := wcs.DataType{Name: name, Template: c.CoverageID}
	if c.HasOffsets() {
		offsets := [2]int{c.TimeOffsets[0], c.TimeOffsets[1]}
		dt.Offsets = &offsets
	}
	return dt
}

// wcsVersionOf returns the model's WCS protocol version, defaulting to the
// only version the services in the wild speak.
func wcsVersionOf(model config.Model) string {
	if model.WCSVersion != "" {
		return model.WCSVersion
	}
	return "2.0.1"
}

// newWCSClient builds the request executor for the selected model, with the
// API key from the user settings attached.
func newWCSClient(settings *config.Settings, model config.Model, name string, timeout time.Duration, retry wcs.RetryPolicy, logger *logging.Logger) *wcs.Client {
	return wcs.NewClient(wcs.ClientOptions{
		BaseURL: model.Server,
		Version: wcsVersionOf(model),
		APIKey:  settings.APIKey(name),
		Timeout: timeout,
		Retry:   retry,
		Logger:  logger,
	})
}
