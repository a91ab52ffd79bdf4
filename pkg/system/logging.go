package system

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewCLILogger returns a console logger writing to w, stderr when w is nil.
// Verbose enables debug output; otherwise only warnings and errors are shown
// so command output on stdout stays machine readable.
func NewCLILogger(verbose bool, w io.Writer) *zap.SugaredLogger {
	if w == nil {
		w = os.Stderr
	}
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	if !verbose {
		encCfg.TimeKey = ""
		encCfg.CallerKey = ""
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	opts := []zap.Option{zap.ErrorOutput(zapcore.AddSync(w))}
	if verbose {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(core, opts...).Sugar().Named("ractl")
}

// ServerFields returns key/value pairs identifying a login target, for use
// with SugaredLogger.With.
func ServerFields(server, email string) []interface{} {
	if email == "" {
		return []interface{}{"server", server}
	}
	return []interface{}{"server", server, "email", email}
}
