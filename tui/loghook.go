package tui

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const maxLogMessage = 200

type logEntry struct {
	level   logrus.Level
	message string
}

// TUILogHook is a logrus hook that forwards warnings and errors to the status line
type TUILogHook struct {
	entries chan<- logEntry
	levels  []logrus.Level
}

// NewTUILogHook creates a new TUI log hook
func NewTUILogHook(app *App) *TUILogHook {
	return &TUILogHook{
		entries: app.logs,
		levels: []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
			logrus.WarnLevel,
		},
	}
}

// Levels returns the available logging levels
func (hook *TUILogHook) Levels() []logrus.Level {
	return hook.levels
}

// Fire is called when a logging event is fired. It never blocks: entries
// arriving while the buffer is full are dropped.
func (hook *TUILogHook) Fire(entry *logrus.Entry) error {
	message := strings.ReplaceAll(entry.Message, "\n", " ")
	if err, ok := entry.Data[logrus.ErrorKey].(error); ok {
		message += ": " + err.Error()
	}
	if len(message) > maxLogMessage {
		message = message[:maxLogMessage] + "..."
	}

	select {
	case hook.entries <- logEntry{level: entry.Level, message: message}:
	default:
	}
	return nil
}

// drainLogs shows the most recent captured entry in the status line
func (a *App) drainLogs() {
	for {
		select {
		case entry := <-a.logs:
			if entry.level <= logrus.ErrorLevel {
				a.setMessage(entry.message, MessageError)
			} else {
				a.setMessage(entry.message, MessageWarning)
			}
		default:
			return
		}
	}
}

// SetupTUILogging routes logging away from the terminal while the TUI runs: entries
// go to logFile when given and warnings reach the status line. The returned func
// restores the previous output and hooks.
func SetupTUILogging(app *App, logFile *os.File) func() {
	logger := logrus.StandardLogger()
	previousOut := logger.Out
	previousHooks := make(logrus.LevelHooks)
	for level, hooks := range logger.Hooks {
		previousHooks[level] = append(previousHooks[level], hooks...)
	}

	logger.AddHook(NewTUILogHook(app))

	if logFile != nil {
		logger.SetOutput(logFile)
	} else {
		logger.SetOutput(io.Discard)
	}

	return func() {
		logger.ReplaceHooks(previousHooks)
		logger.SetOutput(previousOut)
	}
}
