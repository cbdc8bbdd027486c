// Package logger builds the service's zap logger and provides field helpers
// so every component logs domain identifiers under the same keys.
package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the root logger.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string

	// Format is "json" (production encoder) or "console" (development encoder).
	Format string

	// Service is attached to every entry as "service".
	Service string

	// Environment is attached to every entry as "env".
	Environment string
}

// DefaultOptions returns JSON logging at info level.
func DefaultOptions() Options {
	return Options{
		Level:   "info",
		Format:  "json",
		Service: "gamification",
	}
}

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New creates the root logger.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	fields := make([]zap.Field, 0, 2)
	if opts.Service != "" {
		fields = append(fields, zap.String("service", opts.Service))
	}
	if opts.Environment != "" {
		fields = append(fields, zap.String("env", opts.Environment))
	}
	return l.With(fields...), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT PROPAGATION
// ══════════════════════════════════════════════════════════════════════════════

type contextKey struct{}

// WithContext stores the logger in the context.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in the context, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(contextKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN FIELDS
// ══════════════════════════════════════════════════════════════════════════════

func UserID(id int64) zap.Field          { return zap.Int64("user_id", id) }
func CourseID(id int64) zap.Field        { return zap.Int64("course_id", id) }
func XPAmount(xp int64) zap.Field        { return zap.Int64("xp_amount", xp) }
func RankPosition(pos int) zap.Field     { return zap.Int("rank_position", pos) }
func Component(name string) zap.Field    { return zap.String("component", name) }
func Operation(name string) zap.Field    { return zap.String("operation", name) }
func Job(name string) zap.Field          { return zap.String("job", name) }
func EventType(t string) zap.Field       { return zap.String("event_type", t) }
func Latency(d time.Duration) zap.Field  { return zap.Duration("latency", d) }
func AssignmentID(id string) zap.Field   { return zap.String("assignment_id", id) }
func BadgeCode(code string) zap.Field    { return zap.String("badge_code", code) }
func Err(err error) zap.Field            { return zap.Error(err) }
