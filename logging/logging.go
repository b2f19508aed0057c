package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Formats accepted by New.
const (
	FormatTint = "tint"
	FormatJSON = "json"
	FormatZap  = "zap"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported log format")
	ErrInvalidLevel      = errors.New("invalid log level")
)

// Logger is what the Coordinator and the Postgres store accept, in both flavors.
type Logger interface {
	circulation.Logger
	circulation.ContextualLogger
}

// ParseLevel parses debug, info, warn or error, case-insensitive.
func ParseLevel(level string) (slog.Level, error) {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}

	return parsed, nil
}

// New creates a logger writing to out. The returned flush function must be called before exit.
func New(format, level string, out io.Writer) (Logger, func(), error) {
	slogLevel, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	switch strings.ToLower(format) {
	case FormatTint:
		return slog.New(tint.NewHandler(out, &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(out),
		})), func() {}, nil

	case FormatJSON:
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slogLevel})), func() {}, nil

	case FormatZap:
		zl := newZap(out, slogLevel)

		return NewZapLogger(zl), func() { _ = zl.Sync() }, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func newZap(out io.Writer, level slog.Level) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(out),
		zapLevel(level),
	)

	return zap.New(core)
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level < slog.LevelInfo:
		return zapcore.DebugLevel
	case level < slog.LevelWarn:
		return zapcore.InfoLevel
	case level < slog.LevelError:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)

	return ok && term.IsTerminal(int(f.Fd()))
}
