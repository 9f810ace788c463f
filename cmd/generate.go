package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/obsched/internal/dataset"
)

var generateFlags struct {
	out  string
	name string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a random dataset",
	Long: `Generate a random dataset. Defaults come from the generator section of
the configuration; flags override them.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&generateFlags.out, "out", "o", "", "output file (yaml or json); stdout as yaml when empty")
	f.StringVar(&generateFlags.name, "name", "generated", "dataset name")
	f.Int64("seed", 0, "random seed")
	f.Int("observations", 0, "number of observations")
	f.Int("slots", 0, "slots per site")
	f.Duration("slot-length", 0, "slot length")
	f.Int("min-slots", 0, "minimum observation length in slots")
	f.Int("max-slots", 0, "maximum observation length in slots, exclusive")
	f.Float64("allowance-min", 0, "minimum share of the grid offered as candidates")
	f.Float64("allowance-max", 0, "maximum share of the grid offered as candidates")
	f.Bool("random-affinity", false, "pin observations to a random site")
	f.Float64("window-probability", 0, "chance of each time window bound being set")
	rootCmd.AddCommand(generateCmd)
}

// applyGenerateFlags overrides o with the flags set on the command line.
func applyGenerateFlags(cmd *cobra.Command, o *dataset.GenerateOptions) error {
	f := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err == nil && f.Changed(name) {
			err = apply()
		}
	}
	set("seed", func() (e error) { o.Seed, e = f.GetInt64("seed"); return })
	set("observations", func() (e error) { o.Observations, e = f.GetInt("observations"); return })
	set("slots", func() (e error) { o.SlotsPerResource, e = f.GetInt("slots"); return })
	set("slot-length", func() (e error) { o.SlotLength, e = f.GetDuration("slot-length"); return })
	set("min-slots", func() (e error) { o.MinSlots, e = f.GetInt("min-slots"); return })
	set("max-slots", func() (e error) { o.MaxSlots, e = f.GetInt("max-slots"); return })
	set("allowance-min", func() (e error) { o.AllowanceMin, e = f.GetFloat64("allowance-min"); return })
	set("allowance-max", func() (e error) { o.AllowanceMax, e = f.GetFloat64("allowance-max"); return })
	set("random-affinity", func() (e error) { o.RandomAffinity, e = f.GetBool("random-affinity"); return })
	set("window-probability", func() (e error) { o.WindowProbability, e = f.GetFloat64("window-probability"); return })
	return err
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := cfg.Generator
	if err := applyGenerateFlags(cmd, &opts); err != nil {
		return err
	}
	f, err := dataset.Generate(opts)
	if err != nil {
		return err
	}
	f.Name = generateFlags.name
	if generateFlags.out == "" {
		return dataset.Encode(cmd.OutOrStdout(), "yaml", f)
	}
	return dataset.Save(generateFlags.out, f)
}
