package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/resource-allocator/ractl/pkg/ractl/auth"
	"github.com/resource-allocator/ractl/pkg/ractl/client"
	"github.com/resource-allocator/ractl/pkg/ractl/config"
	"github.com/resource-allocator/ractl/pkg/system"
	"github.com/resource-allocator/ractl/pkg/version"
)

// target is the server and account a command talks to after flags,
// environment and the selected context have been merged.
type target struct {
	server       string
	email        string
	interactive  bool
	redirectHost string
	redirectPort int
	caFile       string
	insecure     bool
}

func (rt *runtimeState) resolveTarget() (target, error) {
	ctxCfg, err := rt.ResolveContext()
	if err != nil {
		return target{}, err
	}
	t := target{
		server:       rt.serverOverride,
		email:        rt.emailOverride,
		interactive:  rt.interactive,
		redirectPort: auth.DefaultRedirectPort,
	}
	if ctxCfg != nil {
		if t.server == "" {
			t.server = ctxCfg.Server
		}
		if t.email == "" {
			t.email = ctxCfg.Email
		}
		if !t.interactive && rt.password == "" {
			t.interactive = ctxCfg.Interactive()
		}
		t.redirectHost = ctxCfg.RedirectHost
		if ctxCfg.RedirectPort != 0 {
			t.redirectPort = ctxCfg.RedirectPort
		}
		t.caFile = ctxCfg.CAFile
		t.insecure = ctxCfg.InsecureSkipTLSVerify
	}
	if strings.TrimSpace(t.server) == "" {
		return target{}, errors.New("server is required (use --server, RACTL_SERVER or a config context)")
	}
	if strings.TrimSpace(t.email) == "" {
		return target{}, errors.New("email is required (use --email, RACTL_EMAIL or a config context)")
	}
	t.server = client.NormalizeServer(t.server)
	return t, nil
}

func (rt *runtimeState) timeouts() (request, callback time.Duration, err error) {
	settings := rt.settings()
	request, err = config.ParseDuration("timeout", settings.Timeout, client.DefaultTimeout)
	if err != nil {
		return 0, 0, err
	}
	callback, err = config.ParseDuration("callback-timeout", settings.CallbackTimeout, auth.DefaultCallbackTimeout)
	if err != nil {
		return 0, 0, err
	}
	return request, callback, nil
}

func (rt *runtimeState) settings() config.Settings {
	if rt.cfg == nil {
		return config.Settings{}
	}
	return rt.cfg.Settings
}

func (rt *runtimeState) cache(t target) *auth.Cache {
	return auth.NewCache(rt.CacheDir(), t.server, t.email)
}

func (rt *runtimeState) newClient(t target, src oauth2.TokenSource) (*client.Client, error) {
	timeout, _, err := rt.timeouts()
	if err != nil {
		return nil, err
	}
	opts := []client.Option{
		client.WithServer(t.server),
		client.WithUserAgent(version.UserAgent()),
		client.WithTimeout(timeout),
		client.WithTLSConfig(t.caFile, t.insecure),
		client.WithRateLimit(rt.settings().RateLimit),
		client.WithLogger(rt.logger()),
	}
	if src != nil {
		opts = append(opts, client.WithTokenSource(src))
	}
	return client.New(opts...)
}

// newAuthenticator builds the login state machine for t, prompting for the
// password when password login is needed and none was given.
func (rt *runtimeState) newAuthenticator(t target) (*auth.Authenticator, error) {
	if err := rt.checkLoginMode(t); err != nil {
		return nil, err
	}
	if t.interactive && rt.nonInteractive {
		return nil, &auth.ConfigError{Reason: "interactive login is not possible with --non-interactive"}
	}
	password := rt.password
	if !t.interactive && password == "" {
		var err error
		if password, err = rt.promptPassword(t.email); err != nil {
			return nil, err
		}
	}

	loginClient, err := rt.newClient(t, nil)
	if err != nil {
		return nil, err
	}
	_, callbackTimeout, err := rt.timeouts()
	if err != nil {
		return nil, err
	}
	return auth.NewAuthenticator(auth.Options{
		Server:          t.server,
		Email:           t.email,
		Password:        password,
		Interactive:     t.interactive,
		Store:           rt.cache(t),
		API:             loginClient,
		RedirectHost:    t.redirectHost,
		RedirectPort:    t.redirectPort,
		CallbackTimeout: callbackTimeout,
		OpenBrowser:     rt.openBrowser,
		Out:             rt.ErrWriter(),
		Log:             rt.logger().With(system.ServerFields(t.server, t.email)...),
	})
}

func (rt *runtimeState) checkLoginMode(t target) error {
	if t.interactive && rt.password != "" {
		return &auth.ConfigError{Reason: "--password and --interactive are mutually exclusive"}
	}
	return nil
}

// cachedSession returns the valid cached session for t in either login
// mode, or nil when a login is needed.
func (rt *runtimeState) cachedSession(t target) *auth.CachedSession {
	cached, err := rt.cache(t).Read()
	if err != nil {
		rt.logger().Debugw("Token cache unavailable", "error", err)
		return nil
	}
	return cached
}

func (rt *runtimeState) promptPassword(email string) (string, error) {
	if rt.nonInteractive || rt.input == nil {
		return "", &auth.ConfigError{Reason: "password is required (use --password, RACTL_PASSWORD or --interactive)"}
	}
	_, _ = fmt.Fprintf(rt.ErrWriter(), "Password for %s: ", email)
	password, err := readPassword(rt.input)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return "", &auth.ConfigError{Reason: "empty password"}
	}
	return password, nil
}

// readPassword reads without echo from a terminal and falls back to a plain
// line read for pipes and tests.
func readPassword(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// apiClient returns a client authenticated for t. A valid cached token is
// used as is, without prompting or opening a browser; otherwise a login runs
// first so failures surface before any API call.
func (rt *runtimeState) apiClient(ctx context.Context) (*client.Client, error) {
	t, err := rt.resolveTarget()
	if err != nil {
		return nil, err
	}
	if err := rt.checkLoginMode(t); err != nil {
		return nil, err
	}
	if cached := rt.cachedSession(t); cached != nil {
		rt.logger().Debugw("Using cached token", "expiresAt", auth.FormatTimestamp(cached.ExpiresAt))
		return rt.newClient(t, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cached.Token,
			TokenType:   "Bearer",
			Expiry:      cached.ExpiresAt,
		}))
	}
	authn, err := rt.newAuthenticator(t)
	if err != nil {
		return nil, err
	}
	if _, err := authn.Login(ctx); err != nil {
		return nil, err
	}
	return rt.newClient(t, authn)
}
