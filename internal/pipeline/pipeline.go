// Package pipeline sequences the compiler stages: parse the records, expand
// the flow spec into a graph, validate the graph and hand accepted graphs to a
// Sink.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/stickyflow/internal/config"
	"github.com/rendis/stickyflow/internal/expander"
	"github.com/rendis/stickyflow/internal/grammar"
	"github.com/rendis/stickyflow/internal/logging"
	"github.com/rendis/stickyflow/internal/validation"
	"github.com/rendis/stickyflow/pkg/schema"
)

// sourceNamespace scopes the name-based UUIDs derived from input records.
var sourceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://stickyflow.dev/records"))

// Options configures a run.
type Options struct {
	Project string
	Feature string
	// EntryRule triggers multi-entry start synthesis. Nil disables it.
	EntryRule *expander.EntryRule
	// Validator checks the graph. Nil uses a non-strict validator without
	// policies.
	Validator *validation.GraphValidator
	// Sink receives accepted graphs. Nil skips persistence.
	Sink   Sink
	Logger *slog.Logger
	// Now stamps the graph. Defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig builds run options from loaded configuration.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) (Options, error) {
	rule, err := cfg.EntryRule()
	if err != nil {
		return Options{}, err
	}
	v, err := validation.NewGraphValidator(cfg.ValidationOptions(), cfg.Validation.Policies)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Project:   cfg.Project,
		Feature:   cfg.Feature,
		EntryRule: rule,
		Validator: v,
		Logger:    logger,
	}, nil
}

// Result holds every artifact of a run. Fields are set as far as the run
// got: a strict validation failure still returns Spec, Graph and Report.
type Result struct {
	RunID   string                   `json:"runId"`
	Spec    *schema.FlowSpec         `json:"spec"`
	Graph   *schema.FlowGraph        `json:"graph"`
	Report  *schema.ValidationResult `json:"report"`
	Receipt *Receipt                 `json:"receipt,omitempty"`
}

// SourceID derives a stable identifier for a record list. The same records
// always yield the same ID.
func SourceID(records []schema.Record) string {
	if records == nil {
		records = []schema.Record{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return ""
	}
	return uuid.NewSHA1(sourceNamespace, b).String()
}

// Run compiles records. When the report is not valid (strict mode with
// errors) the sink is skipped and the error is the report's FlowError,
// carrying the issue lists in its details.
func Run(ctx context.Context, records []schema.Record, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{RunID: uuid.NewString()}
	ctx = logging.WithRunID(ctx, res.RunID)
	logger := logging.LogWith(ctx, opts.Logger)

	v := opts.Validator
	if v == nil {
		var err error
		if v, err = validation.NewGraphValidator(validation.Options{}, nil); err != nil {
			return nil, err
		}
	}

	started := time.Now()
	logger.Info("compiling records", "records", len(records))

	t := time.Now()
	spec, lines := grammar.ParseDetailed(records)
	res.Spec = spec
	logRecords(ctx, opts.Logger, records, lines)
	logger.Info("stage finished", "stage", "parse", "lines", len(lines), "duration", time.Since(t))

	t = time.Now()
	x := expander.New(expander.Config{EntryRule: opts.EntryRule, Logger: logger, Now: opts.Now})
	res.Graph = x.Expand(spec, expander.Meta{
		Project: opts.Project,
		Feature: opts.Feature,
		Source:  SourceID(records),
	})
	logger.Info("stage finished", "stage", "expand",
		"nodes", len(res.Graph.Nodes), "edges", len(res.Graph.Edges), "duration", time.Since(t))

	t = time.Now()
	res.Report = v.Validate(res.Graph)
	logger.Info("stage finished", "stage", "validate",
		"valid", res.Report.Valid, "errors", len(res.Report.Errors), "warnings", len(res.Report.Warnings),
		"duration", time.Since(t))

	if !res.Report.Valid {
		logger.Warn("graph rejected, skipping sink", "errors", len(res.Report.Errors))
		return res, res.Report.ToError()
	}

	if opts.Sink != nil {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		t = time.Now()
		receipt, err := opts.Sink.Save(ctx, res.Graph, SaveOptions{RunID: res.RunID, Report: res.Report})
		if err != nil {
			logger.Error("sink failed", "error", err)
			var fe *schema.FlowError
			if !errors.As(err, &fe) {
				err = schema.NewError(schema.ErrCodeSink, "failed to save flow graph").WithCause(err)
			}
			return res, err
		}
		res.Receipt = receipt
		logger.Info("stage finished", "stage", "sink", "location", receipt.Location, "duration", time.Since(t))
	}

	logger.Info("compilation finished", "duration", time.Since(started))
	return res, nil
}

// logRecords logs per-record line counts at debug level.
func logRecords(ctx context.Context, base *slog.Logger, records []schema.Record, lines []schema.ParsedLine) {
	counts := make(map[string]int, len(records))
	for _, pl := range lines {
		counts[pl.SourceNodeID]++
	}
	for _, r := range records {
		logging.LogWith(logging.WithRecordID(ctx, r.ID), base).
			Debug("parsed record", "name", r.Name, "lines", counts[r.ID])
	}
}
