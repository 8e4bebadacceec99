package app

import "github.com/MrSnakeDoc/hostwatch/internal/logger"

func newLogger(level string, pretty bool, file string, maxSizeMB int) logger.Logger {
	if file == "" {
		return logger.New(level, pretty)
	}
	return logger.New(level, pretty, logger.WithFile(logger.FileOptions{
		Path:       file,
		MaxSizeMB:  maxSizeMB,
		MaxBackups: 5,
		MaxAgeDays: 28,
		Compress:   true,
	}))
}
