package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resource-allocator/ractl/pkg/ractl/auth"
)

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and cache the session token",
		Long: `Log in with --email and --password, or through the browser with --interactive.
A cached token that has not expired is reused without contacting the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			t, err := rt.resolveTarget()
			if err != nil {
				return err
			}
			if err := rt.checkLoginMode(t); err != nil {
				return err
			}
			if cached := rt.cachedSession(t); cached != nil {
				printSession(rt, cached, true)
				return nil
			}
			authn, err := rt.newAuthenticator(t)
			if err != nil {
				return err
			}
			session, err := authn.Login(cmd.Context())
			if err != nil {
				return err
			}
			printSession(rt, session, authn.State() == auth.StateCachedValid)
			return nil
		},
	}
}

func newRegisterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "register first_name=VALUE last_name=VALUE",
		Short: "Create an account with --email and --password",
		Example: `  ractl register -s api.example.com -e ada@example.com -p secret first_name=Ada last_name=Lovelace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			data, err := parseData(args)
			if err != nil {
				return err
			}
			t, err := rt.resolveTarget()
			if err != nil {
				return err
			}
			if t.interactive {
				return &auth.ConfigError{Reason: "interactive registration is not supported"}
			}
			authn, err := rt.newAuthenticator(t)
			if err != nil {
				return err
			}
			session, err := authn.Register(cmd.Context(), data["first_name"], data["last_name"])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Registered %s on %s. Token expires at %s\n",
				session.Email, session.Server, auth.FormatTimestamp(session.ExpiresAt))
			return nil
		},
	}
}

func printSession(rt *runtimeState, session *auth.CachedSession, cached bool) {
	source := "Logged in"
	if cached {
		source = "Using cached session"
	}
	_, _ = fmt.Fprintf(rt.Writer(), "%s as %s on %s. Token expires at %s\n",
		source, session.Email, session.Server, auth.FormatTimestamp(session.ExpiresAt))
}
