package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"

	"wagate/pkg/config"
)

// JSON records use these keys so log shippers see one schema across commands.
const (
	timestampKey = "timestamp"
	messageKey   = "message"
	callerKey    = "caller"
)

// Options says where records go and which gateway they describe.
type Options struct {
	Writer io.Writer

	// Backend and Session are stamped on every record when set.
	Backend string
	Session string
}

// New builds the process logger from cfg. Credentials and QR payloads are masked
// in every format.
func New(cfg config.LoggingConfig, opts Options) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(cfg.Format)); format {
	case "", "text":
		handler = charmHandler(writer, level, cfg.AddSource, charmLog.TextFormatter)
	case "logfmt":
		handler = charmHandler(writer, level, cfg.AddSource, charmLog.LogfmtFormatter)
	case "json":
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level:       level,
			AddSource:   cfg.AddSource,
			ReplaceAttr: jsonAttr,
		})
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	log := slog.New(newRedactor(handler, cfg.Redact))
	if opts.Backend != "" {
		log = log.With("backend", opts.Backend)
	}
	if opts.Session != "" {
		log = log.With("session", opts.Session)
	}

	return log, nil
}

func charmHandler(writer io.Writer, level slog.Level, addSource bool, formatter charmLog.Formatter) slog.Handler {
	return charmLog.NewWithOptions(writer, charmLog.Options{
		Level:           charmLevel(level),
		ReportTimestamp: true,
		ReportCaller:    addSource,
		Formatter:       formatter,
	})
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

func parseLevel(input string) (slog.Level, error) {
	text := strings.ToLower(strings.TrimSpace(input))
	switch text {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		text = "warn"
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(text)); err != nil {
		return 0, fmt.Errorf("unsupported log level %q", input)
	}

	return level, nil
}

// jsonAttr renames the built-in keys and flattens the source location.
func jsonAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}

	switch attr.Key {
	case slog.TimeKey:
		return slog.String(timestampKey, attr.Value.Time().UTC().Format(time.RFC3339Nano))
	case slog.MessageKey:
		attr.Key = messageKey
	case slog.LevelKey:
		if level, ok := attr.Value.Any().(slog.Level); ok {
			return slog.String(slog.LevelKey, strings.ToLower(level.String()))
		}
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src.File != "" {
			return slog.String(callerKey, fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}

	return attr
}
