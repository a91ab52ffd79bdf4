package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/resource-allocator/ractl/pkg/ractl/metrics"
)

// State is a step of the login state machine.
type State string

const (
	StateNoSession   State = "NoSession"
	StateCacheCheck  State = "CacheCheck"
	StateCachedValid State = "CachedValid"
	StateNeedsLogin  State = "NeedsLogin"
	StateLoggingIn   State = "LoggingIn"
	StateLoggedIn    State = "LoggedIn"
	StateLoginFailed State = "LoginFailed"
)

const (
	ModePassword    = "password"
	ModeInteractive = "interactive"
)

// RegisterRequest is the body of a registration call.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LoginAPI is the part of the server API the Authenticator talks to.
type LoginAPI interface {
	PasswordLogin(ctx context.Context, email, password string) (LoginResponse, error)
	AuthorizationURL(ctx context.Context, redirectURI string) (string, error)
	ExchangeCode(ctx context.Context, code, email, redirectURI string) (LoginResponse, error)
	Register(ctx context.Context, req RegisterRequest) (LoginResponse, error)
}

// SessionStore persists sessions between invocations. *Cache implements it.
type SessionStore interface {
	Read() (*CachedSession, error)
	Write(session CachedSession) error
}

type Options struct {
	Server      string
	Email       string
	Password    string
	Interactive bool

	Store SessionStore
	API   LoginAPI

	// RedirectPort 0 binds a free port; the CLI passes DefaultRedirectPort
	// unless configured otherwise.
	RedirectHost    string
	RedirectPort    int
	CallbackTimeout time.Duration

	// OpenBrowser defaults to OpenBrowser; tests replace it with a function
	// that follows the URL themselves.
	OpenBrowser func(url string) error
	Out         io.Writer
	Log         *zap.SugaredLogger
	Now         func() time.Time
}

// Authenticator hands out a valid session, reusing the cached one when
// possible and logging in otherwise.
type Authenticator struct {
	opts Options

	mu      sync.Mutex
	state   State
	session *CachedSession

	// loginCtx is the context of the last Login call. Token reuses it so a
	// re-login stops when the command is cancelled.
	loginCtx context.Context
}

// NewAuthenticator validates opts. Exactly one of Password and Interactive
// must be set.
func NewAuthenticator(opts Options) (*Authenticator, error) {
	hasPassword := opts.Password != ""
	if hasPassword == opts.Interactive {
		return nil, &ConfigError{Reason: "exactly one of password or interactive login must be set"}
	}
	if strings.TrimSpace(opts.Server) == "" {
		return nil, &ConfigError{Reason: "server is required"}
	}
	if strings.TrimSpace(opts.Email) == "" {
		return nil, &ConfigError{Reason: "email is required"}
	}
	if opts.Store == nil {
		return nil, &ConfigError{Reason: "session store is required"}
	}
	if opts.API == nil {
		return nil, &ConfigError{Reason: "login API is required"}
	}
	if opts.RedirectHost == "" {
		opts.RedirectHost = DefaultRedirectHost
	}
	if opts.CallbackTimeout <= 0 {
		opts.CallbackTimeout = DefaultCallbackTimeout
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = OpenBrowser
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Authenticator{opts: opts, state: StateNoSession}, nil
}

// Mode is ModePassword or ModeInteractive.
func (a *Authenticator) Mode() string {
	if a.opts.Interactive {
		return ModeInteractive
	}
	return ModePassword
}

// State returns the last state the login state machine reached.
func (a *Authenticator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Login returns a usable session. A valid cached session short-circuits
// without any network call; otherwise a fresh login is performed and cached.
func (a *Authenticator) Login(ctx context.Context) (*CachedSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loginCtx = ctx
	return a.login(ctx)
}

func (a *Authenticator) login(ctx context.Context) (*CachedSession, error) {
	log := a.opts.Log.With("server", a.opts.Server, "email", a.opts.Email)

	a.state = StateCacheCheck
	cached, err := a.opts.Store.Read()
	switch {
	case err != nil:
		metrics.TokenCacheLookups.WithLabelValues("miss").Inc()
		log.Debugw("Token cache unavailable", "error", err)
	case cached == nil:
		metrics.TokenCacheLookups.WithLabelValues("stale").Inc()
		log.Infow("Cached token expired or invalid")
	default:
		metrics.TokenCacheLookups.WithLabelValues("hit").Inc()
		log.Debugw("Using cached token", "expiresAt", FormatTimestamp(cached.ExpiresAt))
		a.state = StateCachedValid
		a.session = cached
		return cached, nil
	}

	a.state = StateNeedsLogin
	var resp LoginResponse
	if a.opts.Interactive {
		resp, err = a.interactiveLogin(ctx)
	} else {
		resp, err = a.passwordLogin(ctx)
	}
	if err != nil {
		return nil, a.fail(err)
	}
	return a.finish("login", resp)
}

func (a *Authenticator) passwordLogin(ctx context.Context) (LoginResponse, error) {
	a.state = StateLoggingIn
	resp, err := a.opts.API.PasswordLogin(ctx, a.opts.Email, a.opts.Password)
	if err != nil {
		return LoginResponse{}, &AuthError{Op: "password login", Err: err}
	}
	return resp, nil
}

func (a *Authenticator) interactiveLogin(ctx context.Context) (LoginResponse, error) {
	a.state = StateLoggingIn
	listener, err := NewCallbackListener(a.opts.RedirectHost, a.opts.RedirectPort,
		WithCallbackTimeout(a.opts.CallbackTimeout),
		WithCallbackLogger(a.opts.Log),
	)
	if err != nil {
		return LoginResponse{}, &AuthError{Op: "interactive login", Err: err}
	}
	defer func() {
		_ = listener.Close()
	}()
	redirectURI := listener.RedirectURI()

	authURL, err := a.opts.API.AuthorizationURL(ctx, redirectURI)
	if err != nil {
		return LoginResponse{}, &AuthError{Op: "interactive login", Err: err}
	}
	if authURL == "" {
		return LoginResponse{}, &AuthError{Op: "interactive login", Err: errors.New("response does not contain auth_url")}
	}

	if err := a.opts.OpenBrowser(authURL); err != nil {
		a.opts.Log.Debugw("Could not open browser", "error", err)
		_, _ = fmt.Fprintf(a.opts.Out, "Please visit the following URL: %s\n", authURL)
	}

	code, err := listener.Wait(ctx)
	if err != nil {
		return LoginResponse{}, &AuthError{Op: "interactive login", Err: err}
	}

	resp, err := a.opts.API.ExchangeCode(ctx, code, a.opts.Email, redirectURI)
	if err != nil {
		return LoginResponse{}, &AuthError{Op: "code exchange", Err: err}
	}
	return resp, nil
}

// Register creates the account on the server and caches the issued token.
// Only password registration is supported.
func (a *Authenticator) Register(ctx context.Context, firstName, lastName string) (*CachedSession, error) {
	if a.opts.Interactive {
		return nil, &ConfigError{Reason: "interactive registration is not supported"}
	}
	if firstName == "" || lastName == "" {
		return nil, &ConfigError{Reason: "registration requires first_name and last_name"}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateLoggingIn
	resp, err := a.opts.API.Register(ctx, RegisterRequest{
		Email:     a.opts.Email,
		Password:  a.opts.Password,
		FirstName: firstName,
		LastName:  lastName,
	})
	if err != nil {
		return nil, a.fail(&AuthError{Op: "registration", Err: err})
	}
	return a.finish("registration", resp)
}

func (a *Authenticator) finish(op string, resp LoginResponse) (*CachedSession, error) {
	session, err := SessionFromLogin(a.opts.Server, a.opts.Email, resp, a.opts.Now())
	if err != nil {
		return nil, a.fail(&AuthError{Op: op, Err: err})
	}
	if err := a.opts.Store.Write(session); err != nil {
		return nil, a.fail(&AuthError{Op: op, Err: fmt.Errorf("failed to cache token: %w", err)})
	}
	metrics.LoginAttempts.WithLabelValues(a.Mode(), "success").Inc()
	a.opts.Log.Infow("Logged in", "server", a.opts.Server, "email", a.opts.Email, "expiresAt", FormatTimestamp(session.ExpiresAt))
	a.state = StateLoggedIn
	a.session = &session
	return &session, nil
}

func (a *Authenticator) fail(err error) error {
	metrics.LoginAttempts.WithLabelValues(a.Mode(), "failure").Inc()
	a.state = StateLoginFailed
	a.session = nil
	return err
}

// Token implements oauth2.TokenSource. The session obtained by the first
// call is reused while it stays valid. A re-login runs under the context of
// the last Login call, so cancelling that context aborts it.
func (a *Authenticator) Token() (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	session := a.session
	if !session.ValidAt(a.opts.Now()) {
		ctx := a.loginCtx
		if ctx == nil {
			ctx = context.Background()
		}
		var err error
		session, err = a.login(ctx)
		if err != nil {
			return nil, err
		}
	}
	return &oauth2.Token{
		AccessToken: session.Token,
		TokenType:   "Bearer",
		Expiry:      session.ExpiresAt,
	}, nil
}
