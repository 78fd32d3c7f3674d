package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"quorum/internal/app"
	qcfg "quorum/internal/config"
	"quorum/internal/logger"
	"quorum/internal/pkg/symbol"
)

var version = "dev"

const defaultConfigPath = "configs/config.yaml"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "quorum",
		Short: "Indicator-vote signal engine with ATR-managed paper positions",
		Long: `quorum polls market data on a fixed interval, lets a panel of technical indicators
vote on each symbol, opens simulated positions with ATR-derived stop and take-profit levels,
and reports every lifecycle event.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	envPath := strings.TrimSpace(os.Getenv("QUORUM_CONFIG"))
	if envPath == "" {
		envPath = defaultConfigPath
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", envPath, "configuration file path")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override app.log_level")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newEvaluateCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func (o *rootOptions) load(logTo io.Writer) (*qcfg.Config, error) {
	cfg, err := qcfg.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.App.LogLevel = o.logLevel
	}
	if logTo != nil {
		logger.SetOutput(logTo)
	}
	logger.SetFormat(cfg.App.LogFormat)
	logger.SetLevel(cfg.App.LogLevel)
	return cfg, nil
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the engine until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(nil)
			if err != nil {
				return err
			}
			logFile, err := setupLogOutput(cfg.App.LogPath, cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			if logFile != nil {
				defer logFile.Close()
			}
			logger.SetFormat(cfg.App.LogFormat)
			logger.Infof("✓ config loaded (env=%s, path=%s)", cfg.App.Env, opts.configPath)

			a, err := app.NewApp(cfg, app.WithConfigPath(opts.configPath))
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			return a.Run(cmd.Context())
		},
	}
}

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "evaluate SYMBOL",
		Short: "Run the indicator panel once for SYMBOL and print the decision",
		Long: `Fetch bars and the current price for SYMBOL, run every configured indicator and the
vote aggregator, and print the result. Nothing is opened or persisted.
Example: quorum evaluate BTCUSDT --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cfg.App.HTTPAddr = ""
			cfg.Store.Enabled = false
			cfg.Notify.Telegram.Enabled = false

			a, err := app.NewApp(cfg)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			defer a.Close()
			ev, err := a.Engine().Evaluate(cmd.Context(), symbol.Normalize(args[0]))
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, ev)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml or json")
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	var output string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults applied and secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, cfg.Redacted())
		},
	}
	show.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml or json")
	configCmd.AddCommand(show)

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := opts.load(cmd.ErrOrStderr()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", opts.configPath)
			return nil
		},
	})
	return configCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quorum %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func writeOutput(w io.Writer, format string, v any) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "", "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func setupLogOutput(path string, console io.Writer) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if dir := filepath.Dir(trimmed); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(io.MultiWriter(console, file))
	return file, nil
}
