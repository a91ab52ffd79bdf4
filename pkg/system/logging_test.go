package system

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCLILoggerQuietByDefault(t *testing.T) {
	var buf bytes.Buffer
	log := NewCLILogger(false, &buf)
	log.Debugw("hidden debug")
	log.Infow("hidden info")
	log.Warnw("shown warning", "key", "value")
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown warning")
	assert.Contains(t, out, `"key": "value"`)
	assert.Contains(t, out, "ractl")
}

func TestNewCLILoggerVerbose(t *testing.T) {
	var buf bytes.Buffer
	log := NewCLILogger(true, &buf)
	log.Debugw("debug line")
	require.NoError(t, log.Sync())
	assert.Contains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "DEBUG")
}

func TestServerFields(t *testing.T) {
	assert.Equal(t, []interface{}{"server", "https://x"}, ServerFields("https://x", ""))
	assert.Equal(t, []interface{}{"server", "https://x", "email", "a@b.c"}, ServerFields("https://x", "a@b.c"))
}
