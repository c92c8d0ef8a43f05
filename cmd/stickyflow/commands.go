package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/stickyflow/internal/grammar"
	"github.com/rendis/stickyflow/internal/pipeline"
	"github.com/rendis/stickyflow/internal/query"
	"github.com/rendis/stickyflow/internal/validation"
	"github.com/rendis/stickyflow/pkg/mcp"
	"github.com/rendis/stickyflow/pkg/schema"
)

func newParseCmd(_ *app) *cobra.Command {
	var withLines bool

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse notes into a flow spec without expanding them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(cmd, args)
			if err != nil {
				return err
			}
			spec, lines := grammar.ParseDetailed(records)
			if !withLines {
				return writeJSON(cmd.OutOrStdout(), spec)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"spec": spec, "lines": lines})
		},
	}
	cmd.Flags().BoolVar(&withLines, "lines", false, "include the per-line classification")
	return cmd
}

func newCompileCmd(a *app) *cobra.Command {
	var (
		outPath    string
		reportPath string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "compile [file]",
		Short: "Compile notes into a validated flow graph",
		Long: `Compile parses the notes, expands them into a flow graph and validates it.
The graph is written to stdout or --out. In strict mode a graph with
validation errors is not written and the command fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(cmd, args)
			if err != nil {
				return err
			}
			opts, err := a.pipelineOptions()
			if err != nil {
				return err
			}
			if outPath != "" {
				opts.Sink = pipeline.NewFileSink(outPath)
			} else {
				opts.Sink = pipeline.NewWriterSink(cmd.OutOrStdout(), "stdout")
			}

			res, runErr := pipeline.Run(cmd.Context(), records, opts)
			if res != nil && res.Report != nil {
				if !quiet {
					printIssues(cmd.ErrOrStderr(), res.Report)
				}
				if reportPath != "" {
					if err := writeReport(reportPath, res.Report); err != nil {
						return err
					}
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the graph to this file instead of stdout")
	cmd.Flags().StringVar(&reportPath, "report", "", "write the validation report as JSON to this file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print validation issues")
	return cmd
}

func writeReport(path string, report *schema.ValidationResult) error {
	var buf bytes.Buffer
	if err := writeJSON(&buf, report); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return schema.NewErrorf(schema.ErrCodeSink, "failed to write report to %s", path).WithCause(err)
	}
	return nil
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [graph.json]",
		Short: "Validate a compiled flow graph",
		Long: `Validate checks a FlowGraph JSON document: first against the FlowGraph
schema, then the graph checks and any configured policies. The report is
written to stdout; the command fails when the report is not valid.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			v, err := validation.NewGraphValidator(a.cfg.ValidationOptions(), a.cfg.Validation.Policies)
			if err != nil {
				return err
			}
			_, report := v.ValidateJSON(data)
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			return report.ToError()
		},
	}
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		vars map[string]string
		raw  bool
	)

	cmd := &cobra.Command{
		Use:   "query <expression|preset> [file]",
		Short: "Run a jq expression over a flow graph",
		Long: fmt.Sprintf(`Query evaluates a jq expression over a FlowGraph. The input is either a
compiled graph (a JSON object) or notes, which are compiled first.

Presets: %s`, strings.Join(query.PresetNames(), ", ")),
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[1:])
			if err != nil {
				return err
			}
			doc, err := a.queryDocument(cmd, data)
			if err != nil {
				return err
			}

			bound := make(map[string]any, len(vars))
			for k, v := range vars {
				bound[k] = v
			}
			results, err := query.New().Run(cmd.Context(), query.Resolve(args[0]), doc, bound)
			if err != nil {
				return err
			}
			for _, r := range results {
				if s, ok := r.(string); ok && raw {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), s)
					continue
				}
				if err := writeJSON(cmd.OutOrStdout(), r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&vars, "var", nil, "bind a jq variable, e.g. --var lane=Host")
	cmd.Flags().BoolVarP(&raw, "raw", "r", false, "print string results without quotes")
	return cmd
}

// queryDocument returns the JSON value to query: data itself when it is a
// graph document, otherwise the graph compiled from data.
func (a *app) queryDocument(cmd *cobra.Command, data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var doc any
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, schema.NewError(schema.ErrCodeInvalidInput, "graph is not valid JSON").WithCause(err)
		}
		return doc, nil
	}

	records, err := pipeline.DecodeRecords(data)
	if err != nil {
		return nil, err
	}
	opts, err := a.pipelineOptions()
	if err != nil {
		return nil, err
	}
	res, err := pipeline.Run(cmd.Context(), records, opts)
	if res == nil || res.Graph == nil {
		return nil, err
	}
	var fe *schema.FlowError
	if err != nil && !errors.As(err, &fe) {
		return nil, err
	}
	return query.Document(res.Graph)
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the stickyflow tools over MCP (stdio)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := a.pipelineOptions()
			if err != nil {
				return err
			}
			srv, err := mcp.NewServer(mcp.ServerDeps{
				Pipeline: opts,
				Logger:   a.logger,
				Version:  version,
			})
			if err != nil {
				return err
			}
			a.logger.Info("serving MCP over stdio", "version", version)
			return srv.ServeIO(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
