// Package config loads stickyflow settings from defaults, an optional
// stickyflow.yaml, STICKYFLOW_ environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/rendis/stickyflow/internal/expander"
	"github.com/rendis/stickyflow/internal/logging"
	"github.com/rendis/stickyflow/internal/validation"
	"github.com/rendis/stickyflow/pkg/schema"
)

// EnvPrefix prefixes every environment variable. A double underscore
// separates nesting levels: STICKYFLOW_VALIDATION__STRICT=true sets
// validation.strict.
const EnvPrefix = "STICKYFLOW_"

// DefaultFiles are looked up in the working directory when no explicit
// config file is given.
var DefaultFiles = []string{"stickyflow.yaml", "stickyflow.yml"}

// FlagKeys maps command-line flag names to config keys. Flags not listed
// here are not configuration.
var FlagKeys = map[string]string{
	"project":                 "project",
	"feature":                 "feature",
	"log-level":               "log_level",
	"log-format":              "log_format",
	"entry-rule":              "expander.entry_rule",
	"entry-lanes":             "expander.entry_lanes",
	"strict":                  "validation.strict",
	"allow-disconnected":      "validation.allow_disconnected",
	"allow-empty-system-lane": "validation.allow_empty_system_lane",
	"max-label-length":        "validation.max_label_length",
}

// Config holds all stickyflow settings.
type Config struct {
	Project    string           `koanf:"project"`
	Feature    string           `koanf:"feature"`
	LogLevel   string           `koanf:"log_level"`
	LogFormat  string           `koanf:"log_format"`
	Expander   ExpanderConfig   `koanf:"expander"`
	Validation ValidationConfig `koanf:"validation"`

	// File is the config file that was loaded, or "".
	File string `koanf:"-"`
}

// ExpanderConfig configures graph expansion.
type ExpanderConfig struct {
	// EntryRule is an expr expression over question, lane and group.
	// Empty disables multi-entry synthesis.
	EntryRule  string   `koanf:"entry_rule"`
	EntryLanes []string `koanf:"entry_lanes"`
}

// ValidationConfig configures the validator.
type ValidationConfig struct {
	Strict               bool                      `koanf:"strict"`
	AllowDisconnected    bool                      `koanf:"allow_disconnected"`
	AllowEmptySystemLane bool                      `koanf:"allow_empty_system_lane"`
	MaxLabelLength       int                       `koanf:"max_label_length"`
	Policies             []validation.PolicyConfig `koanf:"policies"`
}

func defaults() map[string]any {
	return map[string]any{
		"project":                            "",
		"feature":                            "",
		"log_level":                          "info",
		"log_format":                         logging.FormatText,
		"expander.entry_rule":                expander.DefaultEntryExpression,
		"expander.entry_lanes":               expander.DefaultEntryLanes,
		"validation.strict":                  false,
		"validation.allow_disconnected":      false,
		"validation.allow_empty_system_lane": false,
		"validation.max_label_length":        validation.DefaultMaxLabelLength,
	}
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	cfg, err := load("", nil, false)
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Load reads configuration. Priority: flags > env > file > defaults.
// path names an explicit config file that must exist; when empty the first
// of DefaultFiles present in the working directory is used, if any.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	return load(path, flags, true)
}

func load(path string, flags *pflag.FlagSet, external bool) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	var used string
	if external {
		used = findConfigFile(path)
		if path != "" && used == "" {
			return nil, schema.NewErrorf(schema.ErrCodeConfig, "config file %s not found", path)
		}
		if used != "" {
			if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeConfig, "error reading config file %s: %s", used, err.Error()).WithCause(err)
			}
		}

		if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
			return nil, fmt.Errorf("failed to load env vars: %w", err)
		}

		if flags != nil {
			if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
				key, ok := FlagKeys[f.Name]
				if !ok || !f.Changed {
					return "", nil
				}
				return key, posflag.FlagVal(flags, f)
			}), nil); err != nil {
				return nil, fmt.Errorf("failed to load flags: %w", err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "unable to decode config").WithCause(err)
	}
	cfg.File = used
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns STICKYFLOW_VALIDATION__MAX_LABEL_LENGTH into
// validation.max_label_length.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return ""
		}
		return explicit
	}
	for _, name := range DefaultFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return schema.NewErrorf(schema.ErrCodeConfig, "log_format must be %q or %q, got %q",
			logging.FormatText, logging.FormatJSON, c.LogFormat)
	}
	if c.Validation.MaxLabelLength < 0 {
		return schema.NewErrorf(schema.ErrCodeConfig, "validation.max_label_length must not be negative, got %d",
			c.Validation.MaxLabelLength)
	}
	return nil
}

// EntryRule compiles the configured entry rule. It returns nil, nil when
// the rule is disabled.
func (c *Config) EntryRule() (*expander.EntryRule, error) {
	return expander.NewEntryRule(c.Expander.EntryRule, c.Expander.EntryLanes)
}

// ValidationOptions converts the validation section into validator options.
func (c *Config) ValidationOptions() validation.Options {
	return validation.Options{
		Strict:               c.Validation.Strict,
		AllowDisconnected:    c.Validation.AllowDisconnected,
		AllowEmptySystemLane: c.Validation.AllowEmptySystemLane,
		MaxLabelLength:       c.Validation.MaxLabelLength,
	}
}

// RegisterFlags adds the configuration flags to fs. Their defaults are
// informational only: unset flags never override other layers.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("project", "", "project name stamped into graph metadata")
	fs.String("feature", "", "feature name stamped into graph metadata")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", logging.FormatText, "log format (text, json)")
	fs.String("entry-rule", expander.DefaultEntryExpression, "expr rule that triggers one start per entry lane; empty disables")
	fs.StringSlice("entry-lanes", expander.DefaultEntryLanes, "lanes that receive a start when the entry rule fires")
	fs.Bool("strict", false, "fail when the graph has validation errors")
	fs.Bool("allow-disconnected", false, "report disconnected nodes as warnings")
	fs.Bool("allow-empty-system-lane", false, "report an empty System lane as a warning")
	fs.Int("max-label-length", validation.DefaultMaxLabelLength, "longest node label before a warning")
}
