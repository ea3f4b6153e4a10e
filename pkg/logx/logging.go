package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	timeFormat     = "2006-01-02T15:04:05.000Z07:00"
	defaultLogPath = "./voyagebot.log"
	callerSkip     = 2 // emit <- Info/Warn/... <- call site
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Ring    RingConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// RingConfig sizes the in-memory event ring read by the dashboard.
type RingConfig struct {
	Enabled bool
	Size    int
}

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

var levelNames = map[string]zerolog.Level{
	"TRACE":   zerolog.TraceLevel,
	"DEBUG":   zerolog.DebugLevel,
	"INFO":    zerolog.InfoLevel,
	"WARN":    zerolog.WarnLevel,
	"WARNING": zerolog.WarnLevel,
	"ERROR":   zerolog.ErrorLevel,
}

// ValidLevel reports whether s is empty or names a known level.
func ValidLevel(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return true
	}
	_, ok := levelNames[s]
	return ok
}

func levelOf(s string) zerolog.Level {
	if l, ok := levelNames[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// Logger is passed by value. A Logger from a Service follows every
// Service.Apply; the zero Logger drops everything.
type Logger struct {
	svc    *Service
	nop    bool
	fields []Field
}

func Nop() Logger { return Logger{nop: true} }

func (l Logger) IsZero() bool { return l.svc == nil && !l.nop && len(l.fields) == 0 }

// With returns a copy of l that adds fields to every event.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	out := l
	out.fields = make([]Field, 0, len(l.fields)+len(fields))
	out.fields = append(append(out.fields, l.fields...), fields...)
	return out
}

func (l Logger) Enabled(level Level) bool {
	zl := l.target()
	return level >= zl.GetLevel()
}

func (l Logger) Trace(msg string, fields ...Field) { l.emit(zerolog.TraceLevel, msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) target() zerolog.Logger {
	if l.svc == nil {
		return zerolog.Nop()
	}
	return l.svc.current()
}

func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	zl := l.target()
	ev := zl.WithLevel(level)
	if ev == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(callerSkip); ok && file != "" {
		ev.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	for _, set := range [][]Field{l.fields, fields} {
		for _, f := range set {
			if f != nil {
				f(ev)
			}
		}
	}
	ev.Msg(msg)
}

// Service owns the sinks and swaps them on Apply. Loggers created from it
// pick up the new sinks without being rebuilt.
type Service struct {
	mu       sync.Mutex
	file     *os.File
	filePath string
	ring     *Ring

	root atomic.Pointer[zerolog.Logger]
}

// New builds a Service from cfg and returns it with its root Logger.
func New(cfg Config) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat

	s := &Service{ring: NewRing(cfg.Ring.Size)}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Ring returns the event ring. The instance never changes.
func (s *Service) Ring() *Ring { return s.ring }

// Apply rebuilds the sinks from cfg. The log file is reopened only when its path changes.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(Stdout()))
	}
	if f := s.openFile(cfg.File); f != nil {
		sinks = append(sinks, zerolog.SyncWriter(f))
	}
	if cfg.Ring.Enabled {
		s.ring.Resize(cfg.Ring.Size)
		sinks = append(sinks, s.ring)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(Stdout()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).Level(levelOf(cfg.Level)).With().Timestamp().Logger()
	s.root.Store(&zl)
}

// openFile returns the file for fc, closing a previous file that no longer applies.
// Callers hold s.mu.
func (s *Service) openFile(fc FileConfig) *os.File {
	path := strings.TrimSpace(fc.Path)
	if path == "" {
		path = defaultLogPath
	}
	if !fc.Enabled || (s.file != nil && s.filePath != path) {
		s.closeFile()
	}
	if !fc.Enabled {
		return nil
	}
	if s.file != nil {
		return s.file
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(Stderr(), "logx: open %s: %v\n", path, err)
		return nil
	}
	s.file, s.filePath = f, path
	return f
}

func (s *Service) closeFile() {
	if s.file != nil {
		_ = s.file.Close()
	}
	s.file, s.filePath = nil, ""
}

// Close releases the log file. Loggers keep working on the remaining sinks
// until the next Apply.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.filePath = nil, ""
	return err
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: timeFormat,
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}

func Stdout() io.Writer { return os.Stdout }

func Stderr() io.Writer { return os.Stderr }
