package safety

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNilWriter is returned by AuditLogger.Log when the logger was constructed
// with a nil writer.
var ErrNilWriter = errors.New("audit logger: writer is nil")

// AuditEntry captures a single tool invocation for the audit log. Params must
// never contain credentials.
type AuditEntry struct {
	Timestamp time.Time
	Tool      string
	Params    map[string]any
	Result    string
	Duration  time.Duration
}

// AuditLogger writes AuditEntry records as newline-delimited JSON to an
// io.Writer. It is safe for concurrent use.
type AuditLogger struct {
	mu  sync.Mutex
	log zerolog.Logger
}

// NewAuditLogger returns an AuditLogger that writes to w. If w is nil the
// returned logger is also nil; callers must check for nil before use.
func NewAuditLogger(w io.Writer) *AuditLogger {
	if w == nil {
		return nil
	}
	return &AuditLogger{log: zerolog.New(w)}
}

// Log writes entry as a single JSON line with the fields timestamp, tool,
// params, result and duration_ns.
func (l *AuditLogger) Log(entry AuditEntry) error {
	if l == nil {
		return ErrNilWriter
	}

	params := entry.Params
	if params == nil {
		params = map[string]any{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Log().
		Str("timestamp", entry.Timestamp.Format(time.RFC3339Nano)).
		Str("tool", entry.Tool).
		Interface("params", params).
		Str("result", entry.Result).
		Int64("duration_ns", entry.Duration.Nanoseconds()).
		Send()
	return nil
}
