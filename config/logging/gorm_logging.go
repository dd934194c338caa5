package logging

import (
	"strings"

	"github.com/apsdehal/go-logger"
)

// GormLogger routes gorm's SQL trace into the application logger.
type GormLogger struct {
	Logger *logger.Logger
}

// Printf - Log Formatter
func (n *GormLogger) Printf(s string, v ...interface{}) {
	if n.Logger == nil {
		return
	}

	// trace lines carry file, elapsed ms, rows and sql
	if len(v) == 4 && strings.Contains(s, "[%.3fms]") {
		n.Logger.Debugf("[LEDGER] [%.2fms] %v", v[1], v[3])
		return
	}

	// slow sql and errors
	n.Logger.Warningf("[LEDGER] "+strings.ReplaceAll(s, "\n", " "), v...)
}
