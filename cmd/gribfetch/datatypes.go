package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/nwp-tools/gribfetch/internal/apperr"
	"github.com/nwp-tools/gribfetch/internal/ui"
)

// datatypesCmd lists the data types configured for the selected model.
var datatypesCmd = &cobra.Command{
	Use:   "datatypes",
	Short: "List the data types configured for the selected model",
	RunE:  runDatatypes,
}

func init() {
	datatypesCmd.Flags().StringP("format", "f", "table", "Output format: table, json or yaml")

	viper.BindPFlag("datatypes.format", datatypesCmd.Flags().Lookup("format"))
}

// dataTypeListing is the machine-readable shape of one data type entry.
type dataTypeListing struct {
	Name        string `json:"name" yaml:"name"`
	CoverageID  string `json:"coverage_id" yaml:"coverage_id"`
	TimeOffsets []int  `json:"time_offsets,omitempty" yaml:"time_offsets,omitempty"`
	Window      string `json:"window" yaml:"window"`
}

func runDatatypes(cmd *cobra.Command, args []string) error {
	_, model, name, err := loadModel()
	if err != nil {
		return err
	}

	listings := make([]dataTypeListing, 0, len(model.DataTypes))
	for _, dtName := range model.DataTypeNames() {
		dt := model.DataTypes[dtName]
		l := dataTypeListing{Name: dtName, CoverageID: dt.CoverageID, Window: "describe coverage"}
		if dt.HasOffsets() {
			l.TimeOffsets = dt.TimeOffsets
			l.Window = fmt.Sprintf("static [%d, %d]", dt.TimeOffsets[0], dt.TimeOffsets[1])
		}
		listings = append(listings, l)
	}

	out := cmd.OutOrStdout()

	switch format := viper.GetString("datatypes.format"); format {
	case "table":
		fmt.Fprintf(out, "%s\n\n", ui.FormatKeyValue("Model", name))
		for _, l := range listings {
			fmt.Fprintf(out, "%s %s\n", ui.GetBullet(), ui.Bold.Render(l.Name))
			fmt.Fprintf(out, "    %s\n", ui.FormatKeyValue("coverage", l.CoverageID))
			fmt.Fprintf(out, "    %s\n", ui.FormatKeyValue("window", l.Window))
		}
		fmt.Fprintf(out, "\n%d data type(s)\n", len(listings))
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "    ")
		if err := enc.Encode(listings); err != nil {
			return err
		}
	case "yaml":
		data, err := yaml.Marshal(listings)
		if err != nil {
			return err
		}
		fmt.Fprint(out, string(data))
	default:
		return apperr.Userf("unknown format %q (expected table, json or yaml)", format)
	}

	return nil
}
