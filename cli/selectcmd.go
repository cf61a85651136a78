package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolflow"
	"github.com/petal-labs/toolflow/config"
)

// NewSelectCmd creates the "select" subcommand.
func NewSelectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <task>",
		Short: "Rank catalog tools against a task description",
		Args:  cobra.ExactArgs(1),
		RunE:  runSelect,
	}

	cmd.Flags().StringP("config", "c", "", "Path to a config file (default: discovered)")
	cmd.Flags().String("strategy", "", "Scoring strategy: keyword | capability | historical | hybrid | adaptive")
	cmd.Flags().Float64("min-score", 0, "Minimum score to include a tool")
	cmd.Flags().Int("max-tools", 0, "Maximum number of tools to return")
	cmd.Flags().Bool("json", false, "Emit the selection as JSON")

	return cmd
}

func runSelect(cmd *cobra.Command, args []string) error {
	task := args[0]

	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	catalog, err := builtinCatalog()
	if err != nil {
		return exitError(exitRuntime, "building catalog: %v", err)
	}
	selector := toolflow.NewSelector(catalog, toolflow.SelectorConfig{
		CacheTTL:      cfg.Selector.CacheTTL.Std(),
		CacheCapacity: cfg.Selector.CacheCapacity,
	})

	opts := selectOptions(cmd, cfg)
	selection, err := selector.SelectTools(cmd.Context(), task, opts)
	if err != nil {
		return exitError(exitInputParse, "%v", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(selection, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "marshaling selection: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "RANK\tTOOL\tSCORE\tREASON")
	for i, name := range selection.SelectedTools {
		fmt.Fprintf(writer, "%d\t%s\t%.3f\t%s\n", i+1, name, selection.Scores[name], selection.Reasons[name])
	}
	if err := writer.Flush(); err != nil {
		return exitError(exitRuntime, "writing output: %v", err)
	}
	if len(selection.SelectedTools) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no tools matched")
	}
	return nil
}

func selectOptions(cmd *cobra.Command, cfg config.Config) toolflow.SelectOptions {
	opts := toolflow.SelectOptions{
		Strategy: toolflow.Strategy(cfg.Selector.Strategy),
		MinScore: cfg.Selector.MinScore,
		MaxTools: cfg.Selector.MaxTools,
	}
	if strategy, _ := cmd.Flags().GetString("strategy"); strategy != "" {
		opts.Strategy = toolflow.Strategy(strategy)
	}
	if minScore, _ := cmd.Flags().GetFloat64("min-score"); minScore > 0 {
		opts.MinScore = minScore
	}
	if maxTools, _ := cmd.Flags().GetInt("max-tools"); maxTools > 0 {
		opts.MaxTools = maxTools
	}
	return opts
}
