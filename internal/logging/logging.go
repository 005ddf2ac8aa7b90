// Package logging builds the diagnostic logger. User-facing output goes
// through internal/ui; this logger only carries diagnostics to stderr.
package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/Makepad-fr/tada/internal/config"
)

// New returns a logger for cfg writing to stderr.
func New(cfg config.LogConfig) *log.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

func NewWithWriter(cfg config.LogConfig, w io.Writer) *log.Logger {
	logger := log.New()
	logger.SetOutput(w)
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.WarnLevel
	}
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	}
	return logger
}
