package logging

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"guildbot/config"
)

// Setup configures the global logrus logger from the [Logging] config
// section: level, console output, and a size-rotated log file. A log file
// that cannot be created is not fatal; logging falls back to the console.
func Setup(cfg config.LoggingConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
		log.Warnf("Unknown log level %q, falling back to info", cfg.Level)
	}
	log.SetLevel(level)

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	writers := []io.Writer{os.Stdout}
	if cfg.FilePath != "" {
		if dir := filepath.Dir(cfg.FilePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Warnf("Failed to create log directory %q: %v", dir, err)
			}
		}

		// lumberjack sizes in megabytes; keep at least 1MB.
		maxMegabytes := cfg.MaxBytes / (1024 * 1024)
		if maxMegabytes < 1 {
			maxMegabytes = 1
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxMegabytes,
			MaxBackups: cfg.BackupCount,
		})
	}
	log.SetOutput(io.MultiWriter(writers...))

	log.Debug("Logger configured")
}
