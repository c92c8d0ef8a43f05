package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/stickyflow/internal/config"
	"github.com/rendis/stickyflow/internal/logging"
	"github.com/rendis/stickyflow/internal/pipeline"
	"github.com/rendis/stickyflow/pkg/schema"
)

// app is the state shared by all subcommands once flags are parsed.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "stickyflow",
		Short: "Compile sticky-note text into swim-laned flow graphs",
		Long: `stickyflow reads labelled sticky notes (S: steps, D: decisions, E: edges,
SYS: system steps, FG: flow groups ...) and compiles them into a validated,
acyclic flow graph organised in swimlanes.

Input is either a JSON array of {id, name, text} records or plain text in
which blank lines separate records and a "# name" first line names one.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion", "__complete", "version":
				return nil
			}
			return a.load(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./stickyflow.yaml)")
	config.RegisterFlags(root.PersistentFlags())

	_ = root.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{logging.FormatText, logging.FormatJSON}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = root.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newParseCmd(a),
		newCompileCmd(a),
		newValidateCmd(a),
		newQueryCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

// load resolves configuration and the logger for cmd.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	if cfg.File != "" {
		logger.Debug("using config file", "path", cfg.File)
	}
	return nil
}

// pipelineOptions builds run options from the loaded configuration.
func (a *app) pipelineOptions() (pipeline.Options, error) {
	return pipeline.OptionsFromConfig(a.cfg, a.logger)
}

// readInput returns the contents of the named file, or of stdin when the
// name is empty or "-".
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeInvalidInput, "failed to read stdin").WithCause(err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidInput, "failed to read %s", args[0]).WithCause(err)
	}
	return data, nil
}

func readRecords(cmd *cobra.Command, args []string) ([]schema.Record, error) {
	data, err := readInput(cmd, args)
	if err != nil {
		return nil, err
	}
	return pipeline.DecodeRecords(data)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// printIssues writes a one-line summary per issue.
func printIssues(w io.Writer, report *schema.ValidationResult) {
	if report == nil {
		return
	}
	for _, list := range [][]schema.ValidationIssue{report.Errors, report.Warnings} {
		for _, is := range list {
			loc := is.Path
			if loc == "" {
				loc = "graph"
			}
			_, _ = fmt.Fprintf(w, "%-7s %-28s %s: %s\n", is.Severity, is.Code, loc, is.Message)
		}
	}
}
