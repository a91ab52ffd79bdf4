package cmd

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"github.com/resource-allocator/ractl/pkg/ractl/auth"
	"github.com/resource-allocator/ractl/pkg/ractl/client"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func seedCache(t *testing.T, env *testEnv, srv *fakeAllocator, token string) {
	t.Helper()
	cache := auth.NewCache(env.cacheDir, client.NormalizeServer(srv.URL), "a@b.c")
	require.NoError(t, cache.Write(auth.CachedSession{Token: token, ExpiresAt: time.Now().Add(time.Hour)}))
}

func signedToken(t *testing.T, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": email,
		"sub":   "user-1",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}
