package cmd

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/resource-allocator/ractl/pkg/ractl/auth"
	"github.com/resource-allocator/ractl/pkg/ractl/client"
)

var ractlEnv = []string{
	"RACTL_CONFIG", "RACTL_CONTEXT", "RACTL_SERVER", "RACTL_EMAIL", "RACTL_PASSWORD",
	"RACTL_INTERACTIVE", "RACTL_CACHE_DIR", "RACTL_OUTPUT", "RACTL_NON_INTERACTIVE",
	"RACTL_VERBOSE", "RACTL_METRICS_FILE",
}

type testEnv struct {
	t           *testing.T
	configPath  string
	cacheDir    string
	out         bytes.Buffer
	errOut      bytes.Buffer
	input       string
	openBrowser func(string) error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, key := range ractlEnv {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	return &testEnv{
		t:          t,
		configPath: filepath.Join(dir, "config.yaml"),
		cacheDir:   filepath.Join(dir, "cache"),
	}
}

func (e *testEnv) run(args ...string) error {
	e.t.Helper()
	e.out.Reset()
	e.errOut.Reset()
	root := NewRootCommand(Config{
		ConfigPath:   e.configPath,
		OutputWriter: &e.out,
		ErrWriter:    &e.errOut,
		Input:        strings.NewReader(e.input),
		OpenBrowser:  e.openBrowser,
	})
	root.SetArgs(append([]string{"--cache-dir", e.cacheDir}, args...))
	return root.Execute()
}

// fakeAllocator is a minimal Resource Allocator API.
type fakeAllocator struct {
	*httptest.Server

	mu          sync.Mutex
	logins      int
	exchanges   int
	registers   []map[string]string
	calls       []string
	authHeaders []string
	redirectURI string
}

func newFakeAllocator(t *testing.T) *fakeAllocator {
	t.Helper()
	f := &fakeAllocator{}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAllocator) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAllocator) tokenResponse(token string) map[string]string {
	return map[string]string{
		"token":      token,
		"expires_at": auth.FormatTimestamp(time.Now().Add(time.Hour)),
	}
}

func (f *fakeAllocator) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]string
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/login/":
		if body["password"] != "pw" {
			f.writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "bad credentials"})
			return
		}
		f.logins++
		f.writeJSON(w, http.StatusOK, f.tokenResponse("abc"))
		return
	case r.Method == http.MethodGet && r.URL.Path == "/login_azure/":
		f.redirectURI = r.URL.Query().Get("redirect_uri")
		f.writeJSON(w, http.StatusOK, map[string]string{"auth_url": f.URL + "/authorize"})
		return
	case r.Method == http.MethodPost && r.URL.Path == "/login_azure/":
		if body["code"] != "XYZ" || body["redirect_uri"] != f.redirectURI {
			f.writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad code"})
			return
		}
		f.exchanges++
		f.writeJSON(w, http.StatusOK, map[string]string{"token": "azure-token"})
		return
	case r.Method == http.MethodPost && r.URL.Path == "/register/":
		f.registers = append(f.registers, body)
		f.writeJSON(w, http.StatusOK, f.tokenResponse("registered"))
		return
	}

	f.calls = append(f.calls, r.Method+" "+r.URL.RequestURI())
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	if r.Header.Get("Authorization") == "" {
		f.writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "missing token"})
		return
	}
	switch r.Method {
	case http.MethodGet:
		if strings.HasSuffix(r.URL.Path, "/") {
			f.writeJSON(w, http.StatusOK, []map[string]any{
				{"id": 1, "name": "GPU-A", "owner": nil},
				{"id": 2, "name": "cpu", "owner": "bob"},
			})
			return
		}
		f.writeJSON(w, http.StatusOK, map[string]any{"id": 1, "name": "GPU-A"})
	case http.MethodPost, http.MethodPut:
		out := map[string]any{"id": 3}
		for k, v := range body {
			out[k] = v
		}
		f.writeJSON(w, http.StatusOK, out)
	case http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeAllocator) snapshot() (logins int, calls, headers []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, append([]string(nil), f.calls...), append([]string(nil), f.authHeaders...)
}

func (f *fakeAllocator) cacheFile(dir, email string) string {
	return auth.CachePath(dir, client.NormalizeServer(f.URL), email)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}
