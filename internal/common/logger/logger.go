package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// Logger defines the interface for logging
type Logger interface {
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// ConsoleLogger writes one line per entry: "<time> [LEVEL] msg [k=v, ...]".
type ConsoleLogger struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

func NewConsoleLogger() *ConsoleLogger {
	return NewConsoleLoggerTo(os.Stdout)
}

func NewConsoleLoggerTo(w io.Writer) *ConsoleLogger {
	return &ConsoleLogger{out: w, now: time.Now}
}

// Info logs an info message
func (cl *ConsoleLogger) Info(msg string, fields ...Field) {
	cl.write("INFO", msg, fields)
}

// Warn logs a warning message
func (cl *ConsoleLogger) Warn(msg string, fields ...Field) {
	cl.write("WARN", msg, fields)
}

// Error logs an error message
func (cl *ConsoleLogger) Error(msg string, fields ...Field) {
	cl.write("ERROR", msg, fields)
}

func (cl *ConsoleLogger) write(level, msg string, fields []Field) {
	var b strings.Builder
	b.WriteString(cl.now().UTC().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(level)
	b.WriteString("] ")
	b.WriteString(msg)
	if len(fields) > 0 {
		b.WriteString(" [")
		for i, f := range fields {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", f.Key, f.Value)
		}
		b.WriteString("]")
	}
	b.WriteString("\n")

	cl.mu.Lock()
	defer cl.mu.Unlock()
	io.WriteString(cl.out, b.String())
}

// NopLogger discards everything. Used by tests and the checkout CLI in quiet mode.
type NopLogger struct{}

func NewNopLogger() NopLogger { return NopLogger{} }

func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}

// Err is shorthand for the "error" field used on almost every failure path.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// String builds a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}
