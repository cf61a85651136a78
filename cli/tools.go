package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect available tools",
	}

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsInspectCmd())

	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE:  runToolsList,
	}
}

func runToolsList(cmd *cobra.Command, args []string) error {
	catalog, err := builtinCatalog()
	if err != nil {
		return exitError(exitRuntime, "building catalog: %v", err)
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tVERSION\tCAPABILITIES\tDESCRIPTION")
	for _, meta := range catalog.AllMetadata() {
		caps := strings.Join(meta.Capabilities, ",")
		if caps == "" {
			caps = "-"
		}
		version := meta.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", meta.Name, version, caps, meta.Description)
	}
	return writer.Flush()
}

func newToolsInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <name>",
		Short: "Show full metadata for one tool",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsInspect,
	}
}

func runToolsInspect(cmd *cobra.Command, args []string) error {
	catalog, err := builtinCatalog()
	if err != nil {
		return exitError(exitRuntime, "building catalog: %v", err)
	}

	meta, ok := catalog.Metadata(args[0])
	if !ok {
		return exitError(exitFileNotFound, "unknown tool: %s", args[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:         %s\n", meta.Name)
	fmt.Fprintf(out, "Description:  %s\n", meta.Description)
	fmt.Fprintf(out, "Version:      %s\n", meta.Version)
	fmt.Fprintf(out, "Capabilities: %s\n", strings.Join(meta.Capabilities, ", "))
	if len(meta.Tags) > 0 {
		fmt.Fprintf(out, "Tags:         %s\n", strings.Join(meta.Tags, ", "))
	}
	if meta.UseCount > 0 {
		fmt.Fprintf(out, "Uses:         %d (avg %s)\n", meta.UseCount, meta.AvgDuration)
	}
	return nil
}
