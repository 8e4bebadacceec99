package utils

import (
	"io"

	"github.com/MrSnakeDoc/hostwatch/internal/logger"
)

// SafeClose closes c and logs a failure at warn level, naming what was closed.
func SafeClose(c io.Closer, log logger.Logger, what string) {
	if err := c.Close(); err != nil && log != nil {
		log.Warn("failed to close",
			logger.String("resource", what),
			logger.Error(err))
	}
}
