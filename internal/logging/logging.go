// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/config"
	"github.com/xiy/memory-assistant/internal/errs"
)

// FileName is created inside paths.log_dir.
const FileName = "assistant.log"

// New returns a logger writing to stderr and <log_dir>/assistant.log. The
// returned closer releases the file. verbose forces debug level.
func New(cfg config.Config, verbose bool) (*log.Logger, io.Closer, error) {
	return NewWithWriter(os.Stderr, cfg, verbose)
}

// NewWithWriter is New with the console stream replaced by w.
func NewWithWriter(w io.Writer, cfg config.Config, verbose bool) (*log.Logger, io.Closer, error) {
	out := w
	var closer io.Closer = nopCloser{}
	if cfg.Paths.LogDir != "" {
		if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
			return nil, nil, goerr.Wrap(errs.ErrStorageUnavailable, "create log dir", goerr.V("path", cfg.Paths.LogDir), goerr.V("cause", err.Error()))
		}
		f, err := os.OpenFile(filepath.Join(cfg.Paths.LogDir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, goerr.Wrap(errs.ErrStorageUnavailable, "open log file", goerr.V("path", cfg.Paths.LogDir), goerr.V("cause", err.Error()))
		}
		out = io.MultiWriter(w, f)
		closer = f
	}

	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		Prefix:          cfg.Server.Name,
	})
	logger.SetLevel(ParseLevel(cfg.LogLevel))
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger, closer, nil
}

// ParseLevel maps a config level name to a log level. Unknown names are info.
func ParseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
