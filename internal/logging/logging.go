// Package logging adapts booking operation callbacks and process logs to zap.
package logging

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	statusError   = "error"
	statusSkipped = "skipped"
)

// OperationLogger writes booking.OperationLog entries as structured zap records.
type OperationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger wraps logger. A nil logger is replaced with a no-op logger.
func NewOperationLogger(logger *zap.Logger) *OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLogger{logger: logger.Named("booking")}
}

// LogOperation implements booking.OperationLogger.
func (adapter *OperationLogger) LogOperation(_ context.Context, entry booking.OperationLog) {
	fields := make([]zap.Field, 0, 12)
	fields = append(fields, zap.String("operation", entry.Operation), zap.String("status", entry.Status))
	fields = appendString(fields, "reservation_id", entry.ReservationID.String())
	fields = appendString(fields, "category_id", entry.CategoryID.String())
	fields = appendString(fields, "event_id", entry.EventID.String())
	fields = appendString(fields, "user_id", entry.UserID.String())
	fields = appendString(fields, "idempotency_key", entry.IdempotencyKey.String())
	if entry.Quantity.Int() > 0 {
		fields = append(fields, zap.Int("quantity", entry.Quantity.Int()))
	}
	if !entry.Amount.IsZero() {
		fields = append(fields, zap.String("amount", entry.Amount.String()))
	}
	fields = appendString(fields, "from_status", entry.FromStatus.String())
	fields = appendString(fields, "to_status", entry.ToStatus.String())
	switch entry.Status {
	case statusError:
		adapter.logger.Error("booking operation failed", append(fields, zap.Error(entry.Error))...)
	case statusSkipped:
		adapter.logger.Info("booking operation skipped", append(fields, zap.Error(entry.Error))...)
	default:
		adapter.logger.Info("booking operation", fields...)
	}
}

func appendString(fields []zap.Field, key string, value string) []zap.Field {
	if value == "" {
		return fields
	}
	return append(fields, zap.String(key, value))
}

// New builds the process logger. Format is "json" or "console"; level is any
// zapcore level name.
func New(level string, format string) (*zap.Logger, error) {
	var config zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		config = zap.NewProductionConfig()
	case "console":
		config = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
	if strings.TrimSpace(level) != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		config.Level = zap.NewAtomicLevelAt(parsed)
	}
	return config.Build()
}
