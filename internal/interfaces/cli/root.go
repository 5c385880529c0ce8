// Package cli implements the licenseiq command line. Commands talk to a
// running API server when --server is set and otherwise assemble the
// services in-process from the loaded configuration.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/LicenseIQ-Royalty/internal/app"
	"github.com/turtacn/LicenseIQ-Royalty/internal/config"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/client"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration
	ServerAddr   string
	APIKey       string
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration

	serverAddr string
	apiKey     string

	mu      sync.Mutex
	backend Backend
	local   *app.App
}

// Backend returns the contract operations, connecting on first use.
func (c *CLIContext) Backend(ctx context.Context) (Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil {
		return c.backend, nil
	}

	if c.serverAddr != "" {
		opts := []client.Option{client.WithTimeout(c.Timeout), client.WithLogger(sdkLogger{c.Logger})}
		if c.apiKey != "" {
			opts = append(opts, client.WithAPIKey(c.apiKey))
		}
		cl, err := client.NewClient(c.serverAddr, opts...)
		if err != nil {
			return nil, err
		}
		c.Logger.Debug("using remote backend", logging.String("server", c.serverAddr))
		c.backend = cl.Contracts()
		return c.backend, nil
	}

	a, err := app.New(ctx, c.Config, c.Logger)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("using in-process backend", logging.String("database", c.Config.Database.Driver))
	c.local = a
	c.backend = &localBackend{app: a}
	return c.backend, nil
}

// Close releases the in-process services, if any were built.
func (c *CLIContext) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local != nil {
		c.local.Close()
		c.local = nil
	}
}

// RootOption customizes NewRootCommand.
type RootOption func(*rootSettings)

type rootSettings struct {
	backend Backend
	config  *config.Config
}

// WithBackend makes every command use b instead of building one.
func WithBackend(b Backend) RootOption {
	return func(s *rootSettings) { s.backend = b }
}

// WithConfig skips config file discovery.
func WithConfig(cfg *config.Config) RootOption {
	return func(s *rootSettings) { s.config = cfg }
}

// NewRootCommand creates the root cobra command with all global flags and subcommands.
func NewRootCommand(ropts ...RootOption) *cobra.Command {
	opts := &RootOptions{}
	settings := &rootSettings{}
	for _, o := range ropts {
		o(settings)
	}

	cmd := &cobra.Command{
		Use:   "licenseiq",
		Short: "LicenseIQ royalty CLI: extract contract royalty rules and calculate royalties",
		Long: `licenseiq extracts royalty rules from license contracts with AI providers,
manages their review status and calculates royalties for sales batches.

Commands run against the API server given by --server, or in-process using
the configured database and providers when --server is empty.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", app.Version, app.GitCommit, app.BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts, settings)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./licenseiq.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	pf.DurationVar(&opts.Timeout, "timeout", 3*time.Minute, "global operation timeout")
	pf.StringVar(&opts.ServerAddr, "server", "", "API server address; empty runs in-process")
	pf.StringVar(&opts.APIKey, "api-key", "", "bearer token sent to the API server")

	cmd.AddCommand(
		NewExtractCmd(),
		NewAnalyzeCmd(),
		NewMatchesCmd(),
		NewRulesCmd(),
		NewCalculateCmd(),
		NewPreviewCmd(),
		NewMigrateCmd(),
		newVersionCmd(),
	)
	return cmd
}

// persistentPreRun initializes config and logger, then stores CLIContext.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions, settings *rootSettings) error {
	switch strings.ToLower(opts.OutputFormat) {
	case "text", "json", "table":
	default:
		return errors.InvalidParam("invalid output format").WithDetail("output=" + opts.OutputFormat)
	}

	cfg := settings.config
	if cfg == nil {
		var err error
		if cfg, err = initConfig(opts, cmd.ErrOrStderr()); err != nil {
			return fmt.Errorf("config initialization failed: %w", err)
		}
	}

	logger, err := initLogger(opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	cliCtx := &CLIContext{
		Config:       cfg,
		Logger:       logger,
		OutputFormat: strings.ToLower(opts.OutputFormat),
		Verbose:      opts.Verbose,
		Timeout:      opts.Timeout,
		serverAddr:   opts.ServerAddr,
		apiKey:       opts.APIKey,
		backend:      settings.backend,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

// initConfig loads configuration: the --config file, else the first file
// found on the search path, else LICENSEIQ_* environment and defaults.
func initConfig(opts *RootOptions, stderr io.Writer) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath)
	}

	searchPaths := []string{"./licenseiq.yaml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(homeDir, ".licenseiq", "config.yaml"))
	}
	searchPaths = append(searchPaths, "/etc/licenseiq/config.yaml")

	for _, p := range searchPaths {
		if _, statErr := os.Stat(p); statErr == nil {
			return config.Load(p)
		}
	}

	if opts.Verbose {
		fmt.Fprintln(stderr, "no config file found, using environment and defaults")
	}
	return config.LoadFromEnv()
}

// initLogger creates a logger configured for CLI usage (output to stderr).
func initLogger(opts *RootOptions) (logging.Logger, error) {
	level := logging.LevelWarn
	switch strings.ToLower(opts.LogLevel) {
	case "debug":
		level = logging.LevelDebug
	case "info":
		level = logging.LevelInfo
	case "error":
		level = logging.LevelError
	}
	if opts.Verbose {
		level = logging.LevelDebug
	}

	return logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.InvalidState("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.InvalidState("CLIContext not found in command context")
	}
	return cliCtx, nil
}

// commandContext returns the CLI context and a context bounded by --timeout.
func commandContext(cmd *cobra.Command) (*CLIContext, context.Context, context.CancelFunc, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	if cliCtx.Timeout <= 0 {
		ctx, cancel := context.WithCancel(cmd.Context())
		return cliCtx, ctx, cancel, nil
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
	return cliCtx, ctx, cancel, nil
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return PrintResult(cmd, map[string]string{
				"version":   app.Version,
				"gitCommit": app.GitCommit,
				"buildDate": app.BuildDate,
				"sdk":       client.Version,
			})
		},
	}
}

// PrintResult outputs data in the format specified by CLIContext.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return printJSON(cmd, data)
	}

	switch cliCtx.OutputFormat {
	case "json":
		return printJSON(cmd, data)
	case "table":
		return printTable(cmd, data)
	default:
		return printText(cmd, data)
	}
}

// printJSON outputs data as indented JSON to stdout.
func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// printText prints strings and summaries as is. Anything else is rendered
// as a table when one is known for it, and as JSON otherwise.
func printText(cmd *cobra.Command, data interface{}) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	case fmt.Stringer:
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
		return nil
	}
	if tp, ok := asTable(data); ok {
		fmt.Fprint(cmd.OutOrStdout(), FormatTable(tp.TableHeaders(), tp.TableRows()))
		return nil
	}
	return printJSON(cmd, data)
}

// printTable outputs data as a table when one is known for it and falls
// back to text otherwise.
func printTable(cmd *cobra.Command, data interface{}) error {
	if tp, ok := asTable(data); ok {
		fmt.Fprint(cmd.OutOrStdout(), FormatTable(tp.TableHeaders(), tp.TableRows()))
		return nil
	}
	return printText(cmd, data)
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

// PrintSuccess writes a formatted success message to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s\n", msg)
}

// FormatTable renders headers and rows as an aligned ASCII table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if len(row[i]) > colWidths[i] {
				colWidths[i] = len(row[i])
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range headers {
			if i > 0 {
				sb.WriteString("  ")
			}
			val := ""
			if i < len(cells) {
				val = cells[i]
			}
			if i == len(headers)-1 {
				sb.WriteString(val)
			} else {
				sb.WriteString(padRight(val, colWidths[i]))
			}
		}
		sb.WriteString("\n")
	}

	writeRow(headers)
	sep := make([]string, len(colWidths))
	for i, w := range colWidths {
		sep[i] = strings.Repeat("-", w)
	}
	writeRow(sep)
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

// padRight pads s with spaces to the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// sdkLogger routes SDK client logs into the CLI logger.
type sdkLogger struct{ log logging.Logger }

func (l sdkLogger) Debugf(format string, args ...interface{}) { l.log.Debug(fmt.Sprintf(format, args...)) }
func (l sdkLogger) Infof(format string, args ...interface{})  { l.log.Info(fmt.Sprintf(format, args...)) }
func (l sdkLogger) Errorf(format string, args ...interface{}) { l.log.Error(fmt.Sprintf(format, args...)) }
