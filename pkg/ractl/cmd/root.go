package cmd

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/resource-allocator/ractl/pkg/ractl/config"
	"github.com/resource-allocator/ractl/pkg/ractl/metrics"
	"github.com/resource-allocator/ractl/pkg/system"
)

// Config wires the command tree to its environment. Tests replace the
// writers, the input and the browser opener.
type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	ErrWriter    io.Writer
	Input        io.Reader
	DotEnvPaths  []string
	OpenBrowser  func(url string) error
}

type runtimeState struct {
	configPath      string
	cfg             *config.Config
	contextOverride string
	serverOverride  string
	emailOverride   string
	password        string
	interactive     bool
	cacheDir        string
	outputFormat    string
	nonInteractive  bool
	verbose         bool
	metricsFile     string

	dotEnvPaths []string
	writer      io.Writer
	errWriter   io.Writer
	input       io.Reader
	openBrowser func(url string) error
	log         *zap.SugaredLogger
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
		ErrWriter:    os.Stderr,
		Input:        os.Stdin,
		DotEnvPaths:  []string{".env"},
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	root, _ := newRootCommand(cfg)
	return root
}

// Run executes the command tree with args and writes the metrics textfile
// when one was requested, whether or not the command succeeded.
func Run(ctx context.Context, cfg Config, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	root, rt := newRootCommand(cfg)
	root.SetArgs(args)
	err := root.ExecuteContext(context.WithValue(ctx, runtimeKey{}, rt))
	if rt.metricsFile != "" {
		if mErr := metrics.WriteTextfile(rt.metricsFile); mErr != nil {
			rt.logger().Warnw("Failed to write metrics file", "path", rt.metricsFile, "error", mErr)
		}
	}
	return err
}

func newRootCommand(cfg Config) (*cobra.Command, *runtimeState) {
	rt := &runtimeState{
		configPath:  cfg.ConfigPath,
		writer:      cfg.OutputWriter,
		errWriter:   cfg.ErrWriter,
		input:       cfg.Input,
		dotEnvPaths: cfg.DotEnvPaths,
		openBrowser: cfg.OpenBrowser,
	}

	root := &cobra.Command{
		Use:           "ractl",
		Short:         "Resource Allocator CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(rt.dotEnvPaths...); err != nil {
				return err
			}
			rt.applyEnv()
			rt.log = system.NewCLILogger(rt.verbose, rt.ErrWriter())

			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
				return nil
			}
			return rt.loadConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	flags.StringVarP(&rt.contextOverride, "context", "c", "", "Context name override")
	flags.StringVarP(&rt.serverOverride, "server", "s", "", "Server URL (https:// is assumed when no scheme is given)")
	flags.StringVarP(&rt.emailOverride, "email", "e", "", "Account email")
	flags.StringVarP(&rt.password, "password", "p", "", "Account password")
	flags.BoolVarP(&rt.interactive, "interactive", "a", false, "Log in through the browser instead of with a password")
	flags.StringVar(&rt.cacheDir, "cache-dir", "", "Directory holding cached tokens")
	flags.StringVarP(&rt.outputFormat, "output", "o", "", "Output format: json, yaml, table, go-template=<template>")
	flags.BoolVar(&rt.nonInteractive, "non-interactive", false, "Fail instead of prompting")
	flags.BoolVarP(&rt.verbose, "verbose", "v", false, "Enable debug logging on stderr")
	flags.StringVar(&rt.metricsFile, "metrics-file", "", "Write client metrics in Prometheus text format to this file")
	root.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "azure-login" {
			name = "interactive"
		}
		return pflag.NormalizedName(name)
	})

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))
	root.SetOut(rt.Writer())
	root.SetErr(rt.ErrWriter())

	root.AddCommand(
		newLoginCommand(),
		newRegisterCommand(),
		newListCommand(),
		newGetCommand(),
		newQueryCommand(),
		newCreateCommand(),
		newUpdateCommand(),
		newDeleteCommand(),
		newResourcesCommand(),
		NewAuthCommand(),
		NewConfigCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)
	return root, rt
}

func (rt *runtimeState) applyEnv() {
	setFromEnv(&rt.contextOverride, "RACTL_CONTEXT")
	setFromEnv(&rt.serverOverride, "RACTL_SERVER")
	setFromEnv(&rt.emailOverride, "RACTL_EMAIL")
	setFromEnv(&rt.password, "RACTL_PASSWORD")
	setFromEnv(&rt.cacheDir, "RACTL_CACHE_DIR")
	setFromEnv(&rt.outputFormat, "RACTL_OUTPUT")
	setFromEnv(&rt.metricsFile, "RACTL_METRICS_FILE")
	if !rt.interactive {
		rt.interactive = envBool("RACTL_INTERACTIVE")
	}
	if !rt.nonInteractive {
		rt.nonInteractive = envBool("RACTL_NON_INTERACTIVE")
	}
	if !rt.verbose {
		rt.verbose = envBool("RACTL_VERBOSE")
	}
}

func setFromEnv(target *string, key string) {
	if *target == "" {
		*target = os.Getenv(key)
	}
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// loadConfig reads the config file. A missing file is only an error when a
// context was requested by name.
func (rt *runtimeState) loadConfig() error {
	cfg, err := config.Load(rt.configPathValue())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if rt.contextOverride != "" {
			return err
		}
		empty := config.DefaultConfig()
		rt.cfg = &empty
		return nil
	case err != nil:
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	rt.cfg = cfg
	return nil
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) EnsureConfigLoaded() error {
	if rt.cfg != nil {
		return nil
	}
	return rt.loadConfig()
}

func (rt *runtimeState) ResolveContextName() string {
	if rt.contextOverride != "" {
		return rt.contextOverride
	}
	if rt.cfg != nil {
		return rt.cfg.CurrentContextOrDefault()
	}
	return ""
}

// ResolveContext returns the selected context, or nil when none is
// configured.
func (rt *runtimeState) ResolveContext() (*config.Context, error) {
	if rt.cfg == nil {
		return nil, errors.New("config not loaded")
	}
	name := rt.ResolveContextName()
	if name == "" {
		return nil, nil
	}
	return rt.cfg.FindContext(name)
}

func (rt *runtimeState) OutputFormat() string {
	if rt.outputFormat != "" {
		return rt.outputFormat
	}
	if rt.cfg != nil && rt.cfg.Settings.OutputFormat != "" {
		return rt.cfg.Settings.OutputFormat
	}
	return "json"
}

func (rt *runtimeState) CacheDir() string {
	if rt.cacheDir != "" {
		return rt.cacheDir
	}
	if rt.cfg != nil && rt.cfg.Settings.CacheDir != "" {
		return rt.cfg.Settings.CacheDir
	}
	return config.DefaultCacheDir()
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) ErrWriter() io.Writer {
	if rt.errWriter != nil {
		return rt.errWriter
	}
	return os.Stderr
}

func (rt *runtimeState) logger() *zap.SugaredLogger {
	if rt.log != nil {
		return rt.log
	}
	return zap.NewNop().Sugar()
}

func (rt *runtimeState) configPathValue() string {
	if rt.configPath == "" {
		return config.DefaultConfigPath()
	}
	return rt.configPath
}
