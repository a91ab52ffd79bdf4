package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/resource-allocator/ractl/pkg/ractl/metrics"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "ractl"
	RequestIDHeader  = "X-Request-ID"
)

// Client talks to a Resource Allocator server. Login endpoints are called
// without credentials; every other call carries the bearer token of the
// configured token source.
type Client struct {
	baseURL     *url.URL
	tokenSource oauth2.TokenSource
	userAgent   string
	timeout     time.Duration
	tlsConfig   *tls.Config
	limiter     *rate.Limiter
	log         *zap.SugaredLogger

	anonymous *http.Client
	authed    *http.Client
}

type Option func(*Client) error

func New(opts ...Option) (*Client, error) {
	c := &Client{
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
		tlsConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		log:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.baseURL == nil {
		return nil, errors.New("server is required")
	}

	base := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: c.tlsConfig,
	}
	c.anonymous = &http.Client{Transport: base, Timeout: c.timeout}
	if c.tokenSource != nil {
		c.authed = &http.Client{
			Transport: &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, c.tokenSource), Base: base},
			Timeout:   c.timeout,
		}
	} else {
		c.authed = c.anonymous
	}
	return c, nil
}

// NormalizeServer adds an https scheme when none is given and strips
// trailing slashes.
func NormalizeServer(server string) string {
	server = strings.TrimSpace(server)
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		server = "https://" + server
	}
	return strings.TrimRight(server, "/")
}

func WithServer(server string) Option {
	return func(c *Client) error {
		if strings.TrimSpace(server) == "" {
			return errors.New("server is required")
		}
		parsed, err := url.Parse(NormalizeServer(server))
		if err != nil {
			return fmt.Errorf("invalid server: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("invalid server: %q has no host", server)
		}
		c.baseURL = parsed
		return nil
	}
}

// WithToken authenticates every call with a fixed bearer token.
func WithToken(token string) Option {
	return func(c *Client) error {
		if token == "" {
			return nil
		}
		c.tokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		return nil
	}
}

// WithTokenSource authenticates calls with tokens from src, typically an
// *auth.Authenticator.
func WithTokenSource(src oauth2.TokenSource) Option {
	return func(c *Client) error {
		c.tokenSource = src
		return nil
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.userAgent = userAgent
		return nil
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("invalid timeout: %s", timeout)
		}
		c.timeout = timeout
		return nil
	}
}

func WithTLSConfig(caFile string, insecureSkipTLSVerify bool) Option {
	return func(c *Client) error {
		tlsConfig, err := loadTLSConfig(caFile, insecureSkipTLSVerify)
		if err != nil {
			return err
		}
		c.tlsConfig = tlsConfig
		return nil
	}
}

// WithRateLimit caps outgoing requests at rps per second. Zero disables
// the limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) error {
		if rps < 0 {
			return fmt.Errorf("invalid rate limit: %v", rps)
		}
		if rps == 0 {
			c.limiter = nil
			return nil
		}
		burst := int(math.Ceil(rps))
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) error {
		if log != nil {
			c.log = log
		}
		return nil
	}
}

func loadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure}
	if caFile == "" {
		return tlsConfig, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, errors.New("failed to parse CA file")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// Server returns the normalized server URL.
func (c *Client) Server() string {
	return c.baseURL.String()
}

type request struct {
	method    string
	endpoint  string
	id        string
	query     url.Values
	body      any
	anonymous bool
}

// URL builds <server>/<endpoint>/ or <server>/<endpoint>/<id>.
func (c *Client) URL(endpoint, id string, query url.Values) string {
	target := strings.TrimRight(c.baseURL.String(), "/") + "/" + strings.Trim(endpoint, "/") + "/"
	if id != "" {
		target += url.PathEscape(id)
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	target := c.URL(r.endpoint, r.id, r.query)
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	var payload io.Reader
	if r.body != nil {
		encoded, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, payload)
	if err != nil {
		return err
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	httpClient := c.authed
	if r.anonymous {
		httpClient = c.anonymous
	}

	endpoint := strings.Trim(r.endpoint, "/")
	log := c.log.With("method", r.method, "url", target, "requestID", requestID)
	log.Debugw("Sending request")
	start := time.Now()
	resp, err := httpClient.Do(req)
	metrics.APIRequestDuration.WithLabelValues(r.method, endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequests.WithLabelValues(r.method, endpoint, "error").Inc()
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	metrics.APIRequests.WithLabelValues(r.method, endpoint, fmt.Sprint(resp.StatusCode)).Inc()
	log.Debugw("Received response", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	var compacted bytes.Buffer
	if len(body) > 0 && json.Compact(&compacted, body) == nil {
		apiErr.Body = compacted.String()
	}
	if apiErr.Body == "" {
		apiErr.Body = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request returned a non-ok status: %d: %s", e.StatusCode, e.Body)
}
