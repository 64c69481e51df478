package core

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the structured logging interface used across all modules.
// The WithContext variants stamp every record with the exchange id bound
// to the context so a run can be followed across logs, metrics and events.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(s string) logLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return levelDebug
	case "WARN", "WARNING":
		return levelWarn
	case "ERROR":
		return levelError
	default:
		return levelInfo
	}
}

// JSONLogger writes one JSON object per line to the configured writer.
// Safe for concurrent use.
type JSONLogger struct {
	mu    sync.Mutex
	out   io.Writer
	level logLevel
}

// NewJSONLogger creates a logger writing to stdout at the given level
// (DEBUG, INFO, WARN, ERROR; defaults to INFO).
func NewJSONLogger(level string) *JSONLogger {
	return &JSONLogger{out: os.Stdout, level: parseLevel(level)}
}

// NewJSONLoggerTo creates a logger writing to w, used by tests.
func NewJSONLoggerTo(w io.Writer, level string) *JSONLogger {
	return &JSONLogger{out: w, level: parseLevel(level)}
}

func (l *JSONLogger) log(level logLevel, levelName, exchangeID, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	record := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			record[k] = err.Error()
			continue
		}
		record[k] = v
	}
	record["time"] = time.Now().Format("2006-01-02 15:04:05.000")
	record["level"] = levelName
	record["exchange_id"] = exchangeID
	record["message"] = msg

	line, err := json.Marshal(record)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(line, '\n'))
}

func (l *JSONLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(levelDebug, "DEBUG", ExchangeIDDefault, msg, fields)
}

func (l *JSONLogger) Info(msg string, fields map[string]interface{}) {
	l.log(levelInfo, "INFO", ExchangeIDDefault, msg, fields)
}

func (l *JSONLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(levelWarn, "WARN", ExchangeIDDefault, msg, fields)
}

func (l *JSONLogger) Error(msg string, fields map[string]interface{}) {
	l.log(levelError, "ERROR", ExchangeIDDefault, msg, fields)
}

func (l *JSONLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(levelDebug, "DEBUG", ExchangeID(ctx), msg, fields)
}

func (l *JSONLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(levelInfo, "INFO", ExchangeID(ctx), msg, fields)
}

func (l *JSONLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(levelWarn, "WARN", ExchangeID(ctx), msg, fields)
}

func (l *JSONLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(levelError, "ERROR", ExchangeID(ctx), msg, fields)
}

// NoOpLogger discards everything. Useful as a default in tests.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
