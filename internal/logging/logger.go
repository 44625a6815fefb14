package logging

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/STJr/SRB2-sub004/internal/config"
)

// serviceName tags every entry so demo logs can be told apart in shared sinks.
const serviceName = "demo"

var (
	globalMu     sync.RWMutex
	globalLogger = newNopLogger()
)

// Level orders log verbosity from Debug (most) to Fatal (least).
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = [...]string{"debug", "info", "warn", "error", "fatal"}

func (l Level) String() string {
	if l < DebugLevel || l > FatalLevel {
		return "info"
	}
	return levelNames[l]
}

func parseLevel(raw string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return InfoLevel, nil
	case "warning":
		return WarnLevel, nil
	}
	for i, candidate := range levelNames {
		if candidate == name {
			return Level(i), nil
		}
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", raw)
}

// Field is one structured attribute attached to an entry.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Strings(key string, values []string) Field { return Field{Key: key, Value: values} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Uint32(key string, value uint32) Field { return Field{Key: key, Value: value} }

// Hex renders raw bytes such as a stream checksum as lowercase hex.
func Hex(key string, value []byte) Field { return Field{Key: key, Value: hex.EncodeToString(value)} }

// Tic is the field every playback and recording message uses for the tic counter.
func Tic(value int) Field { return Field{Key: "tic", Value: value} }

// Error keeps only the message; error values have no JSON form.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// sink is the destination shared by a logger and everything derived from it.
type sink struct {
	mu  sync.Mutex
	out syncWriter
}

type syncWriter interface {
	io.Writer
	Sync() error
}

// Logger writes one JSON object per line. Derived loggers share the sink, so
// entries from different components never interleave mid-line.
type Logger struct {
	level  Level
	sink   *sink
	fields []Field
}

// New builds the service logger: rotating file output mirrored to stdout.
// It becomes the global fallback used by components built without a logger.
func New(cfg config.LoggingConfig) (*Logger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("logging path must be specified")
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	file, err := newRotatingWriter(cfg)
	if err != nil {
		return nil, err
	}
	outputs := teeWriter{file}
	if os.Stdout != nil {
		//1.- Stdout is unbuffered and fsync fails on pipes, so only the file is synced.
		outputs = append(outputs, nopSyncer{os.Stdout})
	}
	logger := newLogger(level, outputs)
	ReplaceGlobals(logger)
	return logger, nil
}

// NewTestLogger returns a logger that drops everything.
func NewTestLogger() *Logger {
	return newNopLogger()
}

// NewWriterLogger logs JSON lines to w at the given level. The replay tools
// use it for stderr diagnostics.
func NewWriterLogger(w io.Writer, level string) (*Logger, error) {
	parsed, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	return newLogger(parsed, nopSyncer{w}), nil
}

func newLogger(level Level, out syncWriter) *Logger {
	return &Logger{
		level:  level,
		sink:   &sink{out: out},
		fields: []Field{String("service", serviceName)},
	}
}

func newNopLogger() *Logger {
	return &Logger{level: FatalLevel + 1, sink: &sink{out: nopSyncer{io.Discard}}}
}

// ReplaceGlobals installs logger as the fallback returned by L.
func ReplaceGlobals(logger *Logger) {
	if logger == nil {
		return
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// L returns the global fallback logger.
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Component tags entries with the emitting subsystem.
func (l *Logger) Component(name string) *Logger {
	return l.With(String("component", name))
}

// With returns a logger that adds fields to every entry. A later field with
// the same key replaces the earlier one.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		return L().With(fields...)
	}
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{level: l.level, sink: l.sink, fields: merged}
}

// Sync flushes the sink.
func (l *Logger) Sync() error {
	if l == nil || l.sink == nil {
		return nil
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.out.Sync()
}

func (l *Logger) Debug(message string, fields ...Field) { l.log(DebugLevel, message, fields...) }

func (l *Logger) Info(message string, fields ...Field) { l.log(InfoLevel, message, fields...) }

func (l *Logger) Warn(message string, fields ...Field) { l.log(WarnLevel, message, fields...) }

func (l *Logger) Error(message string, fields ...Field) { l.log(ErrorLevel, message, fields...) }

// Fatal logs and exits with status 1.
func (l *Logger) Fatal(message string, fields ...Field) { l.log(FatalLevel, message, fields...) }

func (l *Logger) log(level Level, message string, fields ...Field) {
	if l == nil {
		L().log(level, message, fields...)
		return
	}
	if level < l.level {
		return
	}
	line := encodeEntry(time.Now(), level, message, l.fields, fields)
	l.sink.mu.Lock()
	_, _ = l.sink.out.Write(line)
	if level == FatalLevel {
		_ = l.sink.out.Sync()
		l.sink.mu.Unlock()
		os.Exit(1)
	}
	l.sink.mu.Unlock()
}

// encodeEntry writes timestamp, level and message first, then the scoped and
// call-site fields in order with the last value winning per key.
func encodeEntry(now time.Time, level Level, message string, scoped, extra []Field) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writePair(&buf, "timestamp", now.UTC().Format(time.RFC3339Nano))
	buf.WriteByte(',')
	writePair(&buf, "level", level.String())
	buf.WriteByte(',')
	writePair(&buf, "message", message)

	all := make([]Field, 0, len(scoped)+len(extra))
	all = append(all, scoped...)
	all = append(all, extra...)
	last := make(map[string]int, len(all))
	for i, field := range all {
		last[field.Key] = i
	}
	for i, field := range all {
		switch field.Key {
		case "timestamp", "level", "message":
			continue
		}
		if last[field.Key] != i {
			continue
		}
		buf.WriteByte(',')
		writePair(&buf, field.Key, field.Value)
	}
	buf.WriteString("}\n")
	return buf.Bytes()
}

func writePair(buf *bytes.Buffer, key string, value any) {
	encodedKey, _ := json.Marshal(key)
	buf.Write(encodedKey)
	buf.WriteByte(':')
	encoded, err := json.Marshal(value)
	if err != nil {
		encoded, _ = json.Marshal(fmt.Sprint(value))
	}
	buf.Write(encoded)
}

// teeWriter copies every write to each destination in turn.
type teeWriter []syncWriter

func (t teeWriter) Write(p []byte) (int, error) {
	for _, w := range t {
		if _, err := w.Write(p); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (t teeWriter) Sync() error {
	var first error
	for _, w := range t {
		if err := w.Sync(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type nopSyncer struct{ io.Writer }

func (nopSyncer) Sync() error { return nil }
