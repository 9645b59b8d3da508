package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/earningsedge/pkg/config"
)

// ServiceName is stamped on every record
const ServiceName = "earningsedge"

// Logger wraps zerolog with the few helpers the pipeline stages use
// ⭐ SSOT: 모든 로깅은 이 패키지를 통해서만 수행
type Logger struct {
	zlog zerolog.Logger
}

// Options selects the sink, format and level of a Logger.
// The zero value writes JSON at info level to stderr.
type Options struct {
	Level  string    // debug, info, warn, error
	Format string    // json, console (pretty is an alias of console)
	Env    string    // stamped as "env" when set
	Out    io.Writer // defaults to os.Stderr
}

// New creates the process logger from runtime config
// ⭐ SSOT: zerolog 인스턴스는 여기서만 생성
func New(cfg *config.Config) *Logger {
	return NewWithOptions(Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Env:    cfg.Env,
	})
}

// NewWithOptions builds a logger without touching zerolog's global level,
// so several loggers with different levels can coexist (tests, embedded use).
func NewWithOptions(opts Options) *Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if isConsole(opts.Format) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(parseLevel(opts.Level)).
		With().
		Timestamp().
		Str("service", ServiceName)
	if opts.Env != "" {
		ctx = ctx.Str("env", opts.Env)
	}
	return &Logger{zlog: ctx.Logger()}
}

// NewWithWriter creates a JSON debug-level logger writing to w
func NewWithWriter(w io.Writer) *Logger {
	return NewWithOptions(Options{Level: "debug", Out: w})
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

func isConsole(format string) bool {
	switch strings.ToLower(format) {
	case "console", "pretty", "text":
		return true
	}
	return false
}

// parseLevel maps a level name to zerolog; unknown names fall back to info
func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// Level reports the minimum level this logger emits
func (l *Logger) Level() zerolog.Level {
	return l.zlog.GetLevel()
}

func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }

// Module tags records with the emitting package ("env", "backtest", "api", ...)
func (l *Logger) Module(name string) *Logger {
	return l.WithField("module", name)
}

// WithField returns a child logger carrying key=value
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zlog: l.zlog.With().Interface(key, value).Logger()}
}

// WithFields returns a child logger carrying every field
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{zlog: l.zlog.With().Fields(fields).Logger()}
}

// WithError returns a child logger carrying err under "error"
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zlog: l.zlog.With().Err(err).Logger()}
}
