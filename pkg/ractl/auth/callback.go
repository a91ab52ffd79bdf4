package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	DefaultRedirectHost    = "localhost"
	DefaultRedirectPort    = 8080
	DefaultCallbackTimeout = 60 * time.Second
)

var ginModeOnce sync.Once

// CallbackListener is a loopback HTTP endpoint that accepts exactly one
// redirect carrying an authorization code and then stops serving.
type CallbackListener struct {
	host     string
	timeout  time.Duration
	log      *zap.SugaredLogger
	listener net.Listener
	server   *http.Server

	codeOnce sync.Once
	codeCh   chan string
	serveErr chan error
	stopOnce sync.Once
}

type CallbackOption func(*CallbackListener)

func WithCallbackTimeout(timeout time.Duration) CallbackOption {
	return func(l *CallbackListener) {
		if timeout > 0 {
			l.timeout = timeout
		}
	}
}

func WithCallbackLogger(log *zap.SugaredLogger) CallbackOption {
	return func(l *CallbackListener) {
		if log != nil {
			l.log = log
		}
	}
}

// NewCallbackListener binds host:port and starts serving in the background.
// Port 0 picks a free port; RedirectURI reports the bound address.
func NewCallbackListener(host string, port int, opts ...CallbackOption) (*CallbackListener, error) {
	if host == "" {
		host = DefaultRedirectHost
	}
	l := &CallbackListener{
		host:     host,
		timeout:  DefaultCallbackTimeout,
		log:      zap.NewNop().Sugar(),
		codeCh:   make(chan string, 1),
		serveErr: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(l)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener: %w", err)
	}
	l.listener = listener

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})
	engine := gin.New()
	engine.Use(
		redactCode,
		ginzap.Ginzap(l.log.Desugar(), time.RFC3339, true),
		ginzap.RecoveryWithZap(l.log.Desugar(), true),
	)
	engine.GET("/", l.handleRedirect)
	// Identity providers are free to append a path to the redirect URI.
	engine.NoRoute(l.handleRedirect)

	l.server = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := l.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.serveErr <- err
		}
	}()
	l.log.Debugw("Callback listener started", "address", listener.Addr().String())
	return l, nil
}

// redactCode masks the authorization code before the request is logged.
// GetQuery fills gin's query cache first, so handlers still read the code.
func redactCode(c *gin.Context) {
	if _, ok := c.GetQuery("code"); ok {
		query := c.Request.URL.Query()
		query.Set("code", "REDACTED")
		c.Request.URL.RawQuery = query.Encode()
	}
	c.Next()
}

func (l *CallbackListener) handleRedirect(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		c.String(http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	code := c.Query("code")
	if code == "" {
		if providerErr := c.Query("error"); providerErr != "" {
			l.log.Warnw("Identity provider returned an error", "error", providerErr, "description", c.Query("error_description"))
		} else {
			l.log.Debugw("Ignoring redirect without code", "path", c.Request.URL.Path)
		}
		c.String(http.StatusBadRequest, "missing code")
		return
	}
	accepted := false
	l.codeOnce.Do(func() {
		l.codeCh <- code
		accepted = true
	})
	if !accepted {
		c.String(http.StatusGone, "authorization code already received")
		return
	}
	c.String(http.StatusOK, "Authentication complete. You can close this window.")
}

// Addr is the bound listener address.
func (l *CallbackListener) Addr() net.Addr {
	return l.listener.Addr()
}

// RedirectURI is the URL the identity provider must redirect the browser to.
func (l *CallbackListener) RedirectURI() string {
	port := l.listener.Addr().(*net.TCPAddr).Port
	return "http://" + net.JoinHostPort(l.host, strconv.Itoa(port))
}

// Wait blocks until a redirect with a code arrives, the timeout elapses or
// ctx is done. The listener is shut down before Wait returns.
func (l *CallbackListener) Wait(ctx context.Context) (string, error) {
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case code := <-l.codeCh:
		l.shutdown()
		return code, nil
	case err := <-l.serveErr:
		l.shutdown()
		return "", fmt.Errorf("callback listener failed: %w", err)
	case <-timer.C:
		l.shutdown()
		return "", fmt.Errorf("%w after %s", ErrTimeout, l.timeout)
	case <-ctx.Done():
		l.shutdown()
		return "", ctx.Err()
	}
}

// Close stops the listener without waiting for a redirect.
func (l *CallbackListener) Close() error {
	l.shutdown()
	return nil
}

func (l *CallbackListener) shutdown() {
	l.stopOnce.Do(func() {
		// Shutdown lets the handler that delivered the code finish its response.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.server.Shutdown(ctx); err != nil {
			_ = l.server.Close()
		}
		l.log.Debugw("Callback listener stopped")
	})
}

// RunCallbackServer listens on host:port and returns the first authorization
// code delivered to it.
func RunCallbackServer(ctx context.Context, host string, port int, opts ...CallbackOption) (string, error) {
	l, err := NewCallbackListener(host, port, opts...)
	if err != nil {
		return "", err
	}
	return l.Wait(ctx)
}
