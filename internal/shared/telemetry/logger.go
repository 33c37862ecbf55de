package telemetry

import (
	"io"
	"os"
	"sync"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

func base() *log.Logger {
	loggerOnce.Do(func() {
		logger = &log.Logger{Handler: json.New(os.Stdout), Level: log.InfoLevel}
	})
	return logger
}

// SetOutput redirects log lines, mainly for tests.
func SetOutput(w io.Writer) {
	l := base()
	l.Handler = json.New(w)
}

// SetLevel changes the minimum level written. Unknown names are ignored.
func SetLevel(name string) {
	lvl, err := log.ParseLevel(name)
	if err != nil {
		return
	}
	base().Level = lvl
}

// Info writes an info-level log line with the given fields.
func Info(msg string, fields map[string]any) {
	base().WithFields(log.Fields(fields)).Info(msg)
}

// Warn writes a warn-level log line with the given fields.
func Warn(msg string, fields map[string]any) {
	base().WithFields(log.Fields(fields)).Warn(msg)
}

// Error writes an error-level log line with the given fields.
func Error(msg string, fields map[string]any) {
	base().WithFields(log.Fields(fields)).Error(msg)
}
