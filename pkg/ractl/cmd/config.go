package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/resource-allocator/ractl/pkg/ractl/config"
	"github.com/resource-allocator/ractl/pkg/ractl/output"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ractl configuration",
	}
	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigViewCommand(),
		newConfigContextsCommand(),
		newConfigCurrentContextCommand(),
		newConfigUseContextCommand(),
	)
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		authMode     string
		redirectHost string
		redirectPort int
		caFile       string
		insecure     bool
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file with one context",
		Long: `Create a config file using the global --server, --email and --context flags.
The context is named "default" unless --context is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			path := rt.configPathValue()
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config already exists: %s", path)
				}
			}
			if rt.serverOverride == "" {
				return errors.New("--server is required")
			}
			name := rt.contextOverride
			if name == "" {
				name = "default"
			}
			if authMode == "" && rt.interactive {
				authMode = config.AuthModeInteractive
			}

			cfg := config.DefaultConfig()
			cfg.CurrentContext = name
			cfg.Contexts = []config.Context{{
				Name:                  name,
				Server:                rt.serverOverride,
				Email:                 rt.emailOverride,
				AuthMode:              authMode,
				RedirectHost:          redirectHost,
				RedirectPort:          redirectPort,
				CAFile:                caFile,
				InsecureSkipTLSVerify: insecure,
			}}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Initialized config at %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&authMode, "auth-mode", "", "Login mode for the context: password or interactive")
	cmd.Flags().StringVar(&redirectHost, "redirect-host", "", "Host of the local redirect listener for interactive login")
	cmd.Flags().IntVar(&redirectPort, "redirect-port", 0, "Port of the local redirect listener (default 8080)")
	cmd.Flags().StringVar(&caFile, "ca-file", "", "CA bundle used to verify the server")
	cmd.Flags().BoolVar(&insecure, "insecure-skip-tls-verify", false, "Skip TLS verification")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")
	return cmd
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			return output.WriteObject(rt.Writer(), output.FormatYAML, rt.cfg)
		},
	}
}

func newConfigContextsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-contexts",
		Short: "List configured contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			current := rt.cfg.CurrentContextOrDefault()
			tw := tabwriter.NewWriter(rt.Writer(), 2, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "CURRENT\tNAME\tSERVER\tEMAIL\tAUTH")
			for _, ctx := range rt.cfg.Contexts {
				marker := ""
				if ctx.Name == current {
					marker = "*"
				}
				mode := ctx.AuthMode
				if mode == "" {
					mode = config.AuthModePassword
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", marker, ctx.Name, ctx.Server, ctx.Email, mode)
			}
			return tw.Flush()
		},
	}
}

func newConfigCurrentContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current-context",
		Short: "Show the current context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), rt.cfg.CurrentContextOrDefault())
			return nil
		},
	}
}

func newConfigUseContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "use-context NAME",
		Aliases: []string{"use", "set-context"},
		Short:   "Set the default context",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			if _, err := rt.cfg.FindContext(name); err != nil {
				return err
			}
			rt.cfg.CurrentContext = name
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Switched to context %s\n", name)
			return nil
		},
	}
}
