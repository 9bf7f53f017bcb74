// Package main is the entry point for the flakeboard CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/boyarskiy/flakeboard/internal/adapters/percy"
	"github.com/boyarskiy/flakeboard/internal/adapters/pixeleagle"
	"github.com/boyarskiy/flakeboard/internal/classify"
	"github.com/boyarskiy/flakeboard/internal/config"
	"github.com/boyarskiy/flakeboard/internal/logging"
	"github.com/boyarskiy/flakeboard/internal/runner"
)

const (
	exitSuccess = 0
	exitError   = 1
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	return exitSuccess
}

// cliFlags holds the parsed CLI flags. Flags that were set override the
// config file and the environment.
type cliFlags struct {
	configPath string
	outDir     string
	window     int
	jsonOutput bool
	logLevel   string
	logFormat  string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	f := &cliFlags{}
	cmd := &cobra.Command{
		Use:   "flakeboard [flags] <root-dir>",
		Short: "Build a flaky-example dashboard from CI run artifacts",
		Long: "Flakeboard reads the newest CI run directories under <root-dir>, resolves\n" +
			"their visual-diff artifacts against Percy and Pixel Eagle, and writes a\n" +
			"static site plus JSON and Markdown reports flagging flaky examples.",
		Args:          cobra.ExactArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return execute(cmd.Context(), cfg, args[0], f.jsonOutput, stdout, stderr)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&f.outDir, "out", "", "Output directory for the site and reports")
	cmd.Flags().IntVar(&f.window, "window", 0, "Number of newest runs to read")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print report JSON to stdout")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format: text or json")
	return cmd
}

// resolveConfig applies flag overrides on top of file, environment and defaults.
func resolveConfig(cmd *cobra.Command, f *cliFlags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.Reporting.OutDir = f.outDir
	}
	if flags.Changed("window") {
		cfg.Window = f.window
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = f.logFormat
	}
	return cfg, cfg.Validate()
}

func execute(parent context.Context, cfg config.Config, root string, jsonOutput bool, stdout, stderr io.Writer) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logging.Init(level, cfg.Logging.Format, stderr)
	log := logging.New("main")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: cfg.Vendors.HTTPTimeout}
	runnerCfg := &runner.Config{
		Root:        root,
		Window:      cfg.Window,
		VendorDelay: cfg.Vendors.Delay,
		Sources: []runner.Source{
			{Kind: percy.Kind, Provider: percy.New(percy.Config{
				BaseURL:    cfg.Vendors.Percy.BaseURL,
				RetryDelay: cfg.Vendors.Percy.RetryDelay,
				HTTPClient: client,
			})},
			{Kind: pixeleagle.Kind, Provider: pixeleagle.New(pixeleagle.Config{
				BaseURL:    cfg.Vendors.PixelEagle.BaseURL,
				HTTPClient: client,
			})},
		},
	}

	log.Info("reading runs", "root", root, "window", cfg.Window)
	result, err := runner.Run(ctx, runnerCfg)
	if err != nil {
		return err
	}

	rpt := classify.BuildReport(result.Runs, result.Registry, result.MobileTags)
	log.Info("aggregated examples", "runs", len(rpt.Runs), "examples", len(rpt.Examples), "flaky", rpt.FlakyCount)

	return writeReports(cfg.Reporting.OutDir, rpt, jsonOutput, stdout)
}
