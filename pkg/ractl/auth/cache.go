package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTokenLifetime is assumed when the server does not report an expiry.
const DefaultTokenLifetime = time.Hour

// timestampLayout keeps an explicit numeric offset so the stored value is
// never ambiguous, e.g. 2026-10-17T09:30:00.123456+00:00.
const timestampLayout = "2006-01-02T15:04:05.999999-07:00"

var fileNameReplacer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	"/", "_",
	`\`, "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// CachedSession is a bearer token issued to one identity by one server.
type CachedSession struct {
	Server    string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// ValidAt reports whether the session can be used at the given instant.
func (s *CachedSession) ValidAt(now time.Time) bool {
	return s != nil && s.Token != "" && s.ExpiresAt.After(now.UTC())
}

type cacheRecord struct {
	Server    string `json:"server"`
	Email     string `json:"email"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Cache stores the session of a single (server, email) pair in its own
// JSON file. There is no locking: the last writer wins.
type Cache struct {
	Server string
	Email  string
	Path   string

	now func() time.Time
}

func NewCache(dir, server, email string) *Cache {
	return &Cache{
		Server: server,
		Email:  email,
		Path:   CachePath(dir, server, email),
		now:    time.Now,
	}
}

// CachePath returns the file that holds the session for server and email.
// The sanitized name keeps the file recognizable; the digest of the raw pair
// keeps pairs apart that sanitize to the same text.
func CachePath(dir, server, email string) string {
	name := SanitizeFileName(server)
	if email != "" {
		name += "_" + SanitizeFileName(email)
	}
	sum := sha256.Sum256([]byte(server + "\x00" + email))
	return filepath.Join(dir, name+"-"+hex.EncodeToString(sum[:6])+".json")
}

// SanitizeFileName replaces every character that is not allowed in file
// names on common platforms with an underscore.
func SanitizeFileName(s string) string {
	return fileNameReplacer.Replace(s)
}

func (c *Cache) clock() time.Time {
	if c.now == nil {
		return time.Now().UTC()
	}
	return c.now().UTC()
}

// Read returns the cached session if it belongs to this cache's server and
// email and has not expired. A nil session with a nil error means the file
// exists but holds nothing usable. Missing or corrupt files yield an error
// wrapping ErrCacheMiss.
func (c *Cache) Read() (*CachedSession, error) {
	content, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheMiss, err)
	}
	var record cacheRecord
	if err := json.Unmarshal(content, &record); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrCacheMiss, c.Path, err)
	}
	expiresAt, err := ParseTimestamp(record.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCacheMiss, c.Path, err)
	}
	session := &CachedSession{
		Server:    record.Server,
		Email:     record.Email,
		Token:     record.Token,
		ExpiresAt: expiresAt,
	}
	if session.Server != c.Server || session.Email != c.Email {
		return nil, nil
	}
	if !session.ValidAt(c.clock()) {
		return nil, nil
	}
	return session, nil
}

// Write replaces the cache file with session. The file is written next to
// its final location and renamed into place.
func (c *Cache) Write(session CachedSession) error {
	if session.Server == "" {
		session.Server = c.Server
	}
	if session.Email == "" {
		session.Email = c.Email
	}
	if session.Server != c.Server || session.Email != c.Email {
		return fmt.Errorf("session for %s (%s) does not belong to cache %s", session.Email, session.Server, c.Path)
	}
	if session.Token == "" {
		return errors.New("refusing to cache an empty token")
	}
	content, err := json.MarshalIndent(cacheRecord{
		Server:    session.Server,
		Email:     session.Email,
		Token:     session.Token,
		ExpiresAt: FormatTimestamp(session.ExpiresAt),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}

	dir := filepath.Dir(c.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, c.Path); err != nil {
		return fmt.Errorf("failed to replace token cache: %w", err)
	}
	return nil
}

// Delete removes the cache file. A missing file is not an error.
func (c *Cache) Delete() error {
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// FormatTimestamp renders t in UTC with an explicit +00:00 offset.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp accepts RFC 3339 timestamps and ISO-8601 timestamps without
// a zone, which are taken to be UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

// LoginResponse is the body returned by the server's login endpoints.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// SessionFromLogin turns a login response into a session. The expiry falls
// back to now plus DefaultTokenLifetime when the server omits it.
func SessionFromLogin(server, email string, resp LoginResponse, now time.Time) (CachedSession, error) {
	if resp.Token == "" {
		return CachedSession{}, errors.New("response does not contain a token")
	}
	expiresAt := now.UTC().Add(DefaultTokenLifetime)
	if resp.ExpiresAt != "" {
		parsed, err := ParseTimestamp(resp.ExpiresAt)
		if err != nil {
			return CachedSession{}, fmt.Errorf("malformed expires_at: %w", err)
		}
		expiresAt = parsed
	}
	return CachedSession{
		Server:    server,
		Email:     email,
		Token:     resp.Token,
		ExpiresAt: expiresAt,
	}, nil
}
