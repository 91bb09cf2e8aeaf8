// Package cli parses the espalier command line and runs a materialization.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jacentio/espalier/graph"
	"github.com/jacentio/espalier/store"
)

// ExitError is an error that carries a process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Config is the parsed command line.
type Config struct {
	// InputPath is the JSON document to read; "" or "-" means stdin.
	InputPath string

	Graph       graph.Config
	FilterEmpty bool

	// Save writes the materialized graph to DynamoDB.
	Save    bool
	Store   store.Config
	Profile string

	// SchemaPath is an optional HCL file with table overrides and
	// ownership declarations.
	SchemaPath string

	LogFormat string
	LogLevel  string
}

// NeedsDynamo reports whether the run reads or writes DynamoDB.
func (c *Config) NeedsDynamo() bool {
	return c.Save || c.Graph.AllowLoad
}

// Parse processes command-line arguments. It returns the config, whether the
// program should exit cleanly (help was requested), or an ExitError.
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	flagSet := flag.NewFlagSet("espalier", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
espalier - materialize a JSON document into a record graph.

Usage:
  espalier [options] [FILE]

Arguments:
  FILE
    JSON document to read. Reads stdin when omitted or "-".

Options:
`)
		flagSet.PrintDefaults()
	}

	defaults := graph.DefaultConfig()
	storeDefaults := store.DefaultConfig()

	allowLoad := flagSet.Bool("allow-load", false, "Load records named by an 'identifier' key.")
	nullEmpty := flagSet.Bool("null-empty", false, "Store empty strings as null.")
	filterEmpty := flagSet.Bool("filter-empty", false, "Drop empty records from collections.")
	maxDepth := flagSet.Int("max-depth", defaults.MaxDepth, "Maximum nesting depth of the input.")
	maxNodes := flagSet.Int("max-nodes", defaults.MaxNodes, "Maximum number of records and collections in the input.")
	save := flagSet.Bool("save", false, "Save the graph to DynamoDB.")
	tablePrefix := flagSet.String("table-prefix", "", "Prefix for per-kind table names.")
	relTable := flagSet.String("relationship-table", storeDefaults.RelationshipTable, "Relationship table name.")
	seqTable := flagSet.String("sequence-table", storeDefaults.SequenceTable, "Sequence table name.")
	shards := flagSet.Int("shards", storeDefaults.NumShards, "Relationship table shards per owner (1-256).")
	profile := flagSet.String("profile", "", "AWS shared config profile.")
	schema := flagSet.String("schema", "", "HCL schema file with table overrides and ownership.")
	logFormat := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevel := flagSet.String("log-level", "warn", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: "expected at most one input file"}
	}

	format := strings.ToLower(*logFormat)
	if format != "text" && format != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	level := strings.ToLower(*logLevel)
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	if *maxDepth < 1 || *maxNodes < 1 {
		return nil, false, &ExitError{Code: 2, Message: "max-depth and max-nodes must be positive"}
	}
	if *shards < 1 || *shards > 256 {
		return nil, false, &ExitError{Code: 2, Message: "shards must be between 1 and 256"}
	}

	return &Config{
		InputPath: flagSet.Arg(0),
		Graph: graph.Config{
			AllowLoad:          *allowLoad,
			NullForEmptyString: *nullEmpty,
			MaxDepth:           *maxDepth,
			MaxNodes:           *maxNodes,
		},
		FilterEmpty: *filterEmpty,
		Save:        *save,
		Store: store.Config{
			RelationshipTable: *relTable,
			SequenceTable:     *seqTable,
			TablePrefix:       *tablePrefix,
			NumShards:         *shards,
		},
		Profile:    *profile,
		SchemaPath: *schema,
		LogFormat:  format,
		LogLevel:   level,
	}, false, nil
}

// StoreConfigFromEnv reads the store configuration used by the cascade
// Lambda. Unset variables keep their defaults.
func StoreConfigFromEnv(getenv func(string) string) (store.Config, error) {
	cfg := store.DefaultConfig()
	if v := getenv("ESPALIER_RELATIONSHIP_TABLE"); v != "" {
		cfg.RelationshipTable = v
	}
	if v := getenv("ESPALIER_SEQUENCE_TABLE"); v != "" {
		cfg.SequenceTable = v
	}
	cfg.TablePrefix = getenv("ESPALIER_TABLE_PREFIX")
	if v := getenv("ESPALIER_NUM_SHARDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("ESPALIER_NUM_SHARDS: %w", err)
		}
		cfg.NumShards = n
	}
	return cfg, nil
}

// NewLogger builds a slog logger for the given level and format.
func NewLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}

// Run reads the input document, materializes it, optionally saves it and
// writes the resulting graph to out as indented JSON. client may be nil
// when the config needs no DynamoDB access.
func Run(ctx context.Context, cfg *Config, client store.Client, in io.Reader, out io.Writer, logger *slog.Logger) error {
	logger = logger.With("request", uuid.NewString())

	if cfg.InputPath != "" && cfg.InputPath != "-" {
		f, err := os.Open(cfg.InputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	st := store.New(client, cfg.Store)
	if cfg.SchemaPath != "" {
		reg, err := LoadSchema(cfg.SchemaPath)
		if err != nil {
			return err
		}
		st.SetRegistry(reg)
		logger.Debug("loaded schema", "path", cfg.SchemaPath, "relationships", len(reg.AllRelationships()))
	}

	node, err := graph.Decode(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	m := graph.New(st, cfg.Graph, logger)

	v, err := m.Materialize(ctx, node, cfg.FilterEmpty)
	if err != nil {
		return err
	}
	logger.Info("materialized input", "result", v.Kind().String())

	if cfg.Save {
		if err := st.Save(ctx, v); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		logger.Info("saved graph")
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
