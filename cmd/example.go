package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kilianp07/obsched/internal/dataset"
)

var exampleFormat string

var exampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Built-in example datasets",
}

var exampleLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the built-in examples",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("NAME", "DESCRIPTION")
		for _, f := range dataset.Examples() {
			t.Row(f.Name, f.Description)
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), t.String())
		return err
	},
}

var exampleShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Print a built-in example as a dataset file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := dataset.Example(args[0])
		if err != nil {
			return err
		}
		return dataset.Encode(cmd.OutOrStdout(), exampleFormat, f)
	},
}

func init() {
	exampleShowCmd.Flags().StringVarP(&exampleFormat, "format", "f", "yaml", "yaml or json")
	exampleCmd.AddCommand(exampleLsCmd, exampleShowCmd)
	rootCmd.AddCommand(exampleCmd)
}
