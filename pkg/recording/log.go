package recording

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var logLevels = map[string]zerolog.Level{
	"debug":    zerolog.DebugLevel,
	"info":     zerolog.InfoLevel,
	"warn":     zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"disabled": zerolog.Disabled,
	"none":     zerolog.Disabled,
	"off":      zerolog.Disabled,
}

// SetLogLevel sets the global zerolog level used by the recording packages.
//
// At "info" only whole-file reads and writes are logged. "warn" keeps the
// lenient-read notices: repeated frame timestamps, unreferenced or duplicate
// archive members, and a missing name field. "debug" adds one line per
// archived universe, generated universe and metrics update.
func SetLogLevel(level string) error {
	l, ok := logLevels[strings.ToLower(level)]
	if !ok {
		return fmt.Errorf("invalid log level %q: must be one of: debug, info, warn, error, disabled", level)
	}
	zerolog.SetGlobalLevel(l)
	return nil
}
