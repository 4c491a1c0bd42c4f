package variants

import (
	"log/slog"
	"sync/atomic"
)

var packageLogger atomic.Pointer[slog.Logger]

// SetLogger replaces the logger used by package level helpers such as Decode.
// Passing nil restores slog.Default.
func SetLogger(logger *slog.Logger) {
	packageLogger.Store(logger)
}

// Logger returns the logger used by package level helpers.
func Logger() *slog.Logger {
	if logger := packageLogger.Load(); logger != nil {
		return logger
	}
	return slog.Default()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Logger()
}
