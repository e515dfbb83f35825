package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nugget/mcptok/internal/config"
	"github.com/nugget/mcptok/internal/report"
	"github.com/nugget/mcptok/internal/tokenizer"
)

// options holds every flag value for one command tree.
type options struct {
	configPath string
	logLevel   string
	output     string
	token      string
	timeout    time.Duration
	insecure   bool
	encoding   string

	toolsConfig string
	cost        float64
	model       string
	record      bool
	dbPath      string

	server string
	limit  int
	runID  string
}

func (o *options) addGlobalFlags(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.StringVar(&o.configPath, "config", "", "Path to settings file (default: auto-discover "+config.FileName+")")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error (default warn)")
	fs.StringVarP(&o.output, "output", "o", "", "Output format: "+strings.Join(report.Formats(), ", ")+" (default text)")
	fs.StringVar(&o.token, "token", "", "Bearer token for the MCP server (default $"+config.TokenEnv+")")
	fs.DurationVar(&o.timeout, "timeout", 0, "Per-request timeout (default 30s)")
	fs.BoolVar(&o.insecure, "insecure", false, "Skip TLS certificate verification")
	fs.StringVarP(&o.encoding, "encoding", "e", "", "Tokenizer: "+strings.Join(tokenizer.Encodings(), ", ")+" (default "+tokenizer.DefaultEncoding+")")
}

func (o *options) addEstimateFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.toolsConfig, "tools-config", "t", "", "JSON, YAML or TOML file mapping tool names to arguments")
	fs.Float64VarP(&o.cost, "cost", "c", 0, "Price per million input tokens")
	fs.StringVarP(&o.model, "model", "m", "", "Model whose pricing entry prices the report")
	fs.BoolVar(&o.record, "record", false, "Append the run to the history database")
	fs.StringVar(&o.dbPath, "db", "", "History database path (default from settings)")
}

// settings loads the settings file, applies every flag the user set on
// top of it, and validates the result.
func (o *options) settings(cmd *cobra.Command) (*config.Config, error) {
	path, err := config.FindConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("token") {
		cfg.Token = o.token
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv(config.TokenEnv)
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("insecure") {
		cfg.Insecure = o.insecure
	}
	if flags.Changed("encoding") {
		cfg.Encoding = o.encoding
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("cost") {
		c := o.cost
		cfg.CostPerMillion = &c
	}
	if flags.Changed("model") {
		cfg.Model = o.model
	}
	if flags.Changed("db") {
		cfg.HistoryDB = o.dbPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

// logger builds the stderr logger for cfg.
func logger(cfg *config.Config, stderr io.Writer) *slog.Logger {
	level, _ := config.ParseLogLevel(cfg.LogLevel) // validated by settings
	return config.NewLogger(stderr, level)
}

func (o *options) format() (report.Format, error) {
	return report.ParseFormat(o.output)
}
