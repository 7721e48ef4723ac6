// Package logger configures the global logrus logger.
package logger

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ayusman/moyu/internal/config"
)

// Init sets level, formatter and outputs of the global logger.
// Logs always go to stderr; when cfg.File is set they are also written to a
// size-rotated file. The returned closer flushes and closes that file.
func Init(cfg config.Log) io.Closer {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Invalid log level %q, defaulting to info: %v", cfg.Level, err)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	writers := []io.Writer{os.Stderr}
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			log.Errorf("Failed to create log directory for %s: %v", cfg.File, err)
		} else {
			rotating := &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				LocalTime:  true,
				Compress:   true,
			}
			writers = append(writers, rotating)
			closer = rotating
		}
	}

	log.SetOutput(io.MultiWriter(writers...))
	log.WithField("level", level.String()).Debug("Logger initialized")
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
