package cmd

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/cobra"

	"github.com/resource-allocator/ractl/pkg/ractl/auth"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect or remove the cached session",
	}
	cmd.AddCommand(
		newAuthStatusCommand(),
		newAuthLogoutCommand(),
	)
	return cmd
}

// sessionStatus is what `auth status` prints.
type sessionStatus struct {
	Server        string `json:"server" yaml:"server"`
	Email         string `json:"email" yaml:"email"`
	Authenticated bool   `json:"authenticated" yaml:"authenticated"`
	Identity      string `json:"identity,omitempty" yaml:"identity,omitempty"`
	ExpiresAt     string `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	ExpiresIn     string `json:"expiresIn,omitempty" yaml:"expiresIn,omitempty"`
	CacheFile     string `json:"cacheFile" yaml:"cacheFile"`
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a valid cached session exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			t, err := rt.resolveTarget()
			if err != nil {
				return err
			}
			cache := rt.cache(t)
			status := sessionStatus{Server: t.server, Email: t.email, CacheFile: cache.Path}
			session, err := cache.Read()
			if err != nil {
				rt.logger().Debugw("Token cache unavailable", "error", err)
			}
			if session != nil {
				status.Authenticated = true
				status.Identity = identityFromToken(session.Token)
				status.ExpiresAt = auth.FormatTimestamp(session.ExpiresAt)
				status.ExpiresIn = time.Until(session.ExpiresAt).Round(time.Second).String()
			}

			if rt.outputFormat == "" {
				if !status.Authenticated {
					_, _ = fmt.Fprintf(rt.Writer(), "Not authenticated on %s as %s\n", status.Server, status.Email)
					return nil
				}
				who := status.Email
				if status.Identity != "" && status.Identity != status.Email {
					who = fmt.Sprintf("%s (%s)", status.Email, status.Identity)
				}
				_, _ = fmt.Fprintf(rt.Writer(), "Authenticated on %s as %s. Token expires at %s\n", status.Server, who, status.ExpiresAt)
				return nil
			}
			return printResult(rt, status)
		},
	}
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the cached token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			t, err := rt.resolveTarget()
			if err != nil {
				return err
			}
			if err := rt.cache(t).Delete(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), "Logged out")
			return nil
		},
	}
}

// identityFromToken reads the user claim of a JWT without verifying it.
// Opaque tokens yield an empty string.
func identityFromToken(token string) string {
	if token == "" {
		return ""
	}
	parser := jwt.Parser{}
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, key := range []string{"email", "preferred_username", "sub"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
