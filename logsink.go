package gojinn

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LogEntry is the shape every LogSink implementation accepts, adapted from
// the function-platform LogEntry domain model (oriys-function's
// domain.LogEntry): one record per notable pipeline event.
type LogEntry struct {
	Timestamp  time.Time       `json:"timestamp"`
	Level      string          `json:"level"`
	LambdaName string          `json:"lambda_name,omitempty"`
	Message    string          `json:"message"`
	RequestID  string          `json:"request_id,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms,omitempty"`
}

// LogSink is spec.md's "Buffered remote log target with a debounce flush
// interval" external collaborator (§3/§5). Implementations must be safe for
// concurrent use.
type LogSink interface {
	Log(entry LogEntry)
}

// ZapLogSink is the direct, unbuffered LogSink backed by the teacher's own
// logging library (gojinn.go embeds *zap.Logger throughout). Useful
// standalone, or as the flush target wrapped by BufferedLogSink below.
type ZapLogSink struct {
	logger *zap.Logger
}

func NewZapLogSink(logger *zap.Logger) *ZapLogSink {
	return &ZapLogSink{logger: logger}
}

func (z *ZapLogSink) Log(entry LogEntry) {
	fields := []zap.Field{
		zap.String("lambda_name", entry.LambdaName),
		zap.String("request_id", entry.RequestID),
	}
	if len(entry.Input) > 0 {
		fields = append(fields, zap.ByteString("input", entry.Input))
	}
	if entry.DurationMs > 0 {
		fields = append(fields, zap.Int64("duration_ms", entry.DurationMs))
	}
	if entry.Error != "" {
		fields = append(fields, zap.String("error", entry.Error))
	}

	switch entry.Level {
	case "error":
		z.logger.Error(entry.Message, fields...)
	case "warn":
		z.logger.Warn(entry.Message, fields...)
	case "debug":
		z.logger.Debug(entry.Message, fields...)
	default:
		z.logger.Info(entry.Message, fields...)
	}
}

// BufferedLogSink implements spec.md §5's "buffered with a debounce interval
// for flushes" requirement: entries accumulate in memory and are flushed to
// the wrapped sink in one batch every debounce interval, rather than on
// every call.
type BufferedLogSink struct {
	next     LogSink
	interval time.Duration

	mu     sync.Mutex
	buf    []LogEntry
	timer  *time.Timer
	closed bool
}

func NewBufferedLogSink(next LogSink, interval time.Duration) *BufferedLogSink {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &BufferedLogSink{next: next, interval: interval}
}

func (b *BufferedLogSink) Log(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.next.Log(entry)
		return
	}

	b.buf = append(b.buf, entry)
	if b.timer == nil {
		b.timer = time.AfterFunc(b.interval, b.flush)
	}
}

func (b *BufferedLogSink) flush() {
	b.mu.Lock()
	pending := b.buf
	b.buf = nil
	b.timer = nil
	b.mu.Unlock()

	for _, e := range pending {
		b.next.Log(e)
	}
}

// Close flushes any pending entries synchronously and stops buffering
// further calls, so a shutdown never silently drops log lines.
func (b *BufferedLogSink) Close() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	pending := b.buf
	b.buf = nil
	b.closed = true
	b.mu.Unlock()

	for _, e := range pending {
		b.next.Log(e)
	}
}
