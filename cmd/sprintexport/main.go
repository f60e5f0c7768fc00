// Command sprintexport exports a Jira sprint's issues and subtasks as CSV.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/drewfead/sprintexport/internal/config"
	"github.com/drewfead/sprintexport/internal/logging"
)

// Version is set at build time
var Version = "dev"

var (
	cfg        *config.Config
	configPath string
	direct     bool
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sprintexport",
	Short: "Export Jira sprint issues and subtasks to CSV",
	Long: `sprintexport lists the issues in a Jira sprint, pulls in their subtasks,
and writes one CSV row per issue and subtask:

  Ticket ID,Parent Ticket ID,Ticket URL,Ticket Title

Commands talk to sprintexportd over its control socket unless --direct is
given, in which case Jira is queried from this process.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		if err := logging.Init(logging.Config{Level: level, Output: os.Stderr}); err != nil {
			return err
		}

		var err error
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a sprint to CSV",
	Long: `Export a sprint to CSV.

The sprint is named with --sprint, or resolved from a project with --project
(first board, first future sprint, else the active one).

Examples:
  sprintexport export --sprint 42
  sprintexport export --project PROJ -o -
  sprintexport export --sprint 42 --direct --quote text`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sprint, _ := cmd.Flags().GetString("sprint")
		project, _ := cmd.Flags().GetString("project")
		output, _ := cmd.Flags().GetString("output")
		quote, _ := cmd.Flags().GetString("quote")
		return runExport(cmd.Context(), sprint, project, output, quote)
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show a sprint's export rows in the terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sprint, _ := cmd.Flags().GetString("sprint")
		format, _ := cmd.Flags().GetString("format")
		return runPreview(cmd.Context(), sprint, format)
	},
}

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Choose one of a project's active or future sprints and export it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		output, _ := cmd.Flags().GetString("output")
		return runPick(cmd.Context(), project, output)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the sprint a project export would use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		return runResolve(cmd.Context(), project)
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Daemon management commands",
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemonStatus(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&direct, "direct", false, "Query Jira from this process instead of the daemon")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging to stderr")

	exportCmd.Flags().StringP("sprint", "s", "", "Sprint ID")
	exportCmd.Flags().StringP("project", "p", "", "Project key; exports its next sprint")
	exportCmd.Flags().StringP("output", "o", "", `Output file ("-" for stdout, default sprint_<id>_export.csv)`)
	exportCmd.Flags().String("quote", "", "Quote policy for --direct: all|text (default from config)")
	exportCmd.MarkFlagsMutuallyExclusive("sprint", "project")
	exportCmd.MarkFlagsOneRequired("sprint", "project")

	previewCmd.Flags().StringP("sprint", "s", "", "Sprint ID")
	previewCmd.Flags().StringP("format", "f", "table", "Output format: table, markdown")
	previewCmd.MarkFlagRequired("sprint")

	pickCmd.Flags().StringP("project", "p", "", "Project key")
	pickCmd.Flags().StringP("output", "o", "", `Output file ("-" for stdout)`)
	pickCmd.MarkFlagRequired("project")

	resolveCmd.Flags().StringP("project", "p", "", "Project key")
	resolveCmd.MarkFlagRequired("project")

	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(exportCmd, previewCmd, pickCmd, resolveCmd, daemonCmd)
}
