package engine

import (
	"sync"

	"go.uber.org/zap"
)

var (
	loggerMu      sync.RWMutex
	packageLogger *zap.Logger
)

// SetLogger installs the logger used by the engine. Passing nil
// restores the default no-op logger.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	packageLogger = l
}

// logger returns the engine's logger, a no-op by default.
func logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if packageLogger == nil {
		return zap.NewNop()
	}
	return packageLogger
}
