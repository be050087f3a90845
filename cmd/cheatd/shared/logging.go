// Package shared holds helpers used by every cheatd subcommand.
package shared

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// SetupLogger configures a console logger at the given level. When file is
// non-empty, output goes there instead of stderr; the returned closer owns
// the file handle.
func SetupLogger(level, file string) (*log.Logger, io.Closer, error) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var out io.Writer = os.Stderr
	var closer io.Closer
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closer = f
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           parsed,
		ReportTimestamp: true,
	})
	return logger, closer, nil
}
