package auth

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir, "https://allocator.example.com", "user@example.com")
	expires := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Microsecond)

	require.NoError(t, cache.Write(CachedSession{Token: "abc", ExpiresAt: expires}))

	session, err := cache.Read()
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "abc", session.Token)
	assert.True(t, expires.Equal(session.ExpiresAt))
	assert.Equal(t, "https://allocator.example.com", session.Server)
	assert.Equal(t, "user@example.com", session.Email)
}

func TestCacheReadMissingFile(t *testing.T) {
	cache := NewCache(t.TempDir(), "https://allocator.example.com", "user@example.com")

	session, err := cache.Read()
	require.Error(t, err)
	assert.Nil(t, session)
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestCacheReadCorruptFile(t *testing.T) {
	cache := NewCache(t.TempDir(), "https://allocator.example.com", "user@example.com")
	require.NoError(t, os.WriteFile(cache.Path, []byte("{bad json"), 0o600))

	_, err := cache.Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCacheMiss))
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestCacheReadBadTimestamp(t *testing.T) {
	cache := NewCache(t.TempDir(), "https://allocator.example.com", "user@example.com")
	content, err := json.Marshal(map[string]string{
		"server":     cache.Server,
		"email":      cache.Email,
		"token":      "abc",
		"expires_at": "tomorrow",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cache.Path, content, 0o600))

	_, err = cache.Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestCacheReadExpired(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	cache := NewCache(t.TempDir(), "https://allocator.example.com", "user@example.com")
	cache.now = fixedClock(now)

	require.NoError(t, cache.Write(CachedSession{Token: "old", ExpiresAt: now.Add(-time.Minute)}))
	session, err := cache.Read()
	require.NoError(t, err)
	assert.Nil(t, session)

	// Expiring exactly now is not strictly in the future either.
	require.NoError(t, cache.Write(CachedSession{Token: "edge", ExpiresAt: now}))
	session, err = cache.Read()
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestCacheReadMismatchedIdentity(t *testing.T) {
	dir := t.TempDir()
	expires := time.Now().Add(time.Hour)
	writer := NewCache(dir, "https://allocator.example.com", "alice@example.com")
	require.NoError(t, writer.Write(CachedSession{Token: "alice-token", ExpiresAt: expires}))

	t.Run("different email", func(t *testing.T) {
		reader := &Cache{Server: writer.Server, Email: "bob@example.com", Path: writer.Path}
		session, err := reader.Read()
		require.NoError(t, err)
		assert.Nil(t, session)
	})

	t.Run("different server", func(t *testing.T) {
		reader := &Cache{Server: "https://other.example.com", Email: writer.Email, Path: writer.Path}
		session, err := reader.Read()
		require.NoError(t, err)
		assert.Nil(t, session)
	})
}

func TestCacheWriteOverwrites(t *testing.T) {
	cache := NewCache(t.TempDir(), "https://allocator.example.com", "user@example.com")
	expires := time.Now().Add(time.Hour)

	require.NoError(t, cache.Write(CachedSession{Token: "first", ExpiresAt: expires}))
	require.NoError(t, cache.Write(CachedSession{Token: "second", ExpiresAt: expires}))

	session, err := cache.Read()
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "second", session.Token)

	entries, err := os.ReadDir(filepath.Dir(cache.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestCacheWriteRejectsForeignSession(t *testing.T) {
	cache := NewCache(t.TempDir(), "https://allocator.example.com", "user@example.com")
	err := cache.Write(CachedSession{Server: "https://other.example.com", Token: "abc", ExpiresAt: time.Now()})
	require.Error(t, err)

	err = cache.Write(CachedSession{ExpiresAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty token")
}

func TestCacheFileFormat(t *testing.T) {
	cache := NewCache(t.TempDir(), "http://127.0.0.1:5000", "user@example.com")
	expires := time.Date(2026, 10, 17, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	require.NoError(t, cache.Write(CachedSession{Token: "abc", ExpiresAt: expires}))

	content, err := os.ReadFile(cache.Path)
	require.NoError(t, err)
	var record map[string]string
	require.NoError(t, json.Unmarshal(content, &record))
	assert.Equal(t, "http://127.0.0.1:5000", record["server"])
	assert.Equal(t, "user@example.com", record["email"])
	assert.Equal(t, "abc", record["token"])
	assert.Equal(t, "2026-10-17T07:30:00+00:00", record["expires_at"])

	info, err := os.Stat(cache.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCacheDelete(t *testing.T) {
	cache := NewCache(t.TempDir(), "https://allocator.example.com", "user@example.com")
	require.NoError(t, cache.Delete())

	require.NoError(t, cache.Write(CachedSession{Token: "abc", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, cache.Delete())
	_, err := os.Stat(cache.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:5000/", want: "http___127.0.0.1_5000_"},
		{in: `a<b>c:d/e\f|g?h*i`, want: "a_b_c_d_e_f_g_h_i"},
		{in: "user@example.com", want: "user@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFileName(tt.in))
		})
	}
}

func TestCachePath(t *testing.T) {
	path := CachePath("/tmp/ractl", "http://127.0.0.1:5000/", "user@example.com")
	assert.Equal(t, "/tmp/ractl", filepath.Dir(path))
	assert.Regexp(t, `^http___127\.0\.0\.1_5000__user@example\.com-[0-9a-f]{12}\.json$`, filepath.Base(path))
	assert.Equal(t, path, CachePath("/tmp/ractl", "http://127.0.0.1:5000/", "user@example.com"))

	assert.NotEqual(t,
		CachePath("/tmp/ractl", "https://a.example.com", "user@example.com"),
		CachePath("/tmp/ractl", "https://b.example.com", "user@example.com"))
	assert.NotEqual(t,
		CachePath("/tmp/ractl", "https://a.example.com", "alice@example.com"),
		CachePath("/tmp/ractl", "https://a.example.com", "bob@example.com"))
}

func TestCachePathSeparatesAmbiguousPairs(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	first := NewCache(dir, "https://srv/foo", "bar@x.io")
	second := NewCache(dir, "https://srv", "foo_bar@x.io")
	require.NotEqual(t, first.Path, second.Path)

	first.now = fixedClock(now)
	second.now = fixedClock(now)
	require.NoError(t, first.Write(CachedSession{Token: "first", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, second.Write(CachedSession{Token: "second", ExpiresAt: now.Add(time.Hour)}))

	session, err := first.Read()
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "first", session.Token)
}

func TestCachePathProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("distinct server and email pairs use distinct files", prop.ForAll(
		func(a, b, c, d string) bool {
			if a == c && b == d {
				return true
			}
			return CachePath("/cache", a, b) != CachePath("/cache", c, d)
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestSanitizeFileNameProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("no illegal characters remain", prop.ForAll(
		func(s string) bool {
			return !strings.ContainsAny(SanitizeFileName(s), `<>:/\|?*`)
		},
		gen.AnyString(),
	))
	properties.Property("sanitizing is deterministic and idempotent", prop.ForAll(
		func(s string) bool {
			once := SanitizeFileName(s)
			return once == SanitizeFileName(s) && once == SanitizeFileName(once)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestCacheRoundTripProperties(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	properties := gopter.NewProperties(nil)

	properties.Property("write then read returns the same token and expiry", prop.ForAll(
		func(host, user, token string, lifetime int64) bool {
			server := "https://" + host + ".example.com"
			email := user + "@example.com"
			cache := NewCache(dir, server, email)
			cache.now = fixedClock(now)
			expires := now.Add(time.Duration(lifetime) * time.Second)
			if err := cache.Write(CachedSession{Token: token, ExpiresAt: expires}); err != nil {
				return false
			}
			session, err := cache.Read()
			if err != nil || session == nil {
				return false
			}
			return session.Token == token && session.ExpiresAt.Equal(expires)
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.Int64Range(1, 30*24*3600),
	))
	properties.Property("expired sessions are never usable", prop.ForAll(
		func(user string, age int64) bool {
			cache := NewCache(dir, "https://expired.example.com", user+"@example.com")
			cache.now = fixedClock(now)
			if err := cache.Write(CachedSession{Token: "t", ExpiresAt: now.Add(-time.Duration(age) * time.Second)}); err != nil {
				return false
			}
			session, err := cache.Read()
			return err == nil && session == nil
		},
		gen.Identifier(),
		gen.Int64Range(0, 30*24*3600),
	))

	properties.TestingRun(t)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Time
	}{
		{name: "rfc3339 zulu", value: "2026-10-17T10:00:00Z", want: time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)},
		{name: "explicit offset", value: "2026-10-17T12:00:00+02:00", want: time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)},
		{name: "microseconds with offset", value: "2026-10-17T10:00:00.123456+00:00", want: time.Date(2026, 10, 17, 10, 0, 0, 123456000, time.UTC)},
		{name: "space separator", value: "2026-10-17 10:00:00+00:00", want: time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)},
		{name: "naive is utc", value: "2026-10-17T10:00:00.5", want: time.Date(2026, 10, 17, 10, 0, 0, 500000000, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.value)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseTimestamp("")
	require.Error(t, err)
	_, err = ParseTimestamp("not a time")
	require.Error(t, err)
}

func TestSessionFromLogin(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	t.Run("uses server expiry", func(t *testing.T) {
		session, err := SessionFromLogin("https://s", "e", LoginResponse{Token: "abc", ExpiresAt: "2026-10-17T18:00:00+00:00"}, now)
		require.NoError(t, err)
		assert.Equal(t, "abc", session.Token)
		assert.True(t, time.Date(2026, 10, 17, 18, 0, 0, 0, time.UTC).Equal(session.ExpiresAt))
	})

	t.Run("defaults to one hour", func(t *testing.T) {
		session, err := SessionFromLogin("https://s", "e", LoginResponse{Token: "abc"}, now)
		require.NoError(t, err)
		assert.True(t, now.Add(time.Hour).Equal(session.ExpiresAt))
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := SessionFromLogin("https://s", "e", LoginResponse{}, now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "token")
	})

	t.Run("malformed expiry", func(t *testing.T) {
		_, err := SessionFromLogin("https://s", "e", LoginResponse{Token: "abc", ExpiresAt: "soon"}, now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expires_at")
	})
}
