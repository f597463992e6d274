package memory

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultAuditCapacity bounds the in-memory ring when no capacity is
// configured.
const DefaultAuditCapacity = 10000

// AuditFilter selects entries from the log. Zero values match
// everything on that dimension.
type AuditFilter struct {
	EntityID string
	UserID   string
	Action   Action
	Since    time.Time
	Until    time.Time
	Limit    int
}

// AuditLog is a bounded append-only ring of audit entries with an
// optional JSON sink for durable export. Entries are never edited;
// when the ring is full the oldest entry is evicted, the sink keeps
// the full history.
type AuditLog struct {
	mu       sync.RWMutex
	entries  []AuditEntry
	start    int
	count    int
	appended uint64
	sink     *zerolog.Logger
}

// NewAuditLog creates a ring with the given capacity. A non-nil sink
// receives every entry as one JSON line.
func NewAuditLog(capacity int, sink io.Writer) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	l := &AuditLog{
		entries: make([]AuditEntry, capacity),
	}
	if sink != nil {
		logger := zerolog.New(sink).With().Timestamp().Logger()
		l.sink = &logger
	}
	return l
}

// Append records one entry. The entry's trace id is taken from the
// active span when unset.
func (l *AuditLog) Append(ctx context.Context, entry AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if entry.TraceID == "" {
		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			entry.TraceID = span.SpanContext().TraceID().String()
			span.AddEvent(string(entry.Action), trace.WithAttributes(
				attribute.String("audit.entity_id", entry.EntityID),
				attribute.String("audit.user_id", entry.UserID),
			))
		}
	}

	l.mu.Lock()
	capacity := len(l.entries)
	idx := (l.start + l.count) % capacity
	if l.count == capacity {
		l.start = (l.start + 1) % capacity
	} else {
		l.count++
	}
	l.entries[idx] = entry
	l.appended++
	l.mu.Unlock()

	if l.sink != nil {
		ev := l.sink.Log().
			Time("ts", entry.Timestamp).
			Str("entity_id", entry.EntityID).
			Str("action", string(entry.Action)).
			Str("user_id", entry.UserID).
			Str("prev_checksum", entry.PrevChecksum).
			Str("new_checksum", entry.NewChecksum).
			Str("trace_id", entry.TraceID)
		if entry.Details != nil {
			ev = ev.Interface("details", entry.Details)
		}
		ev.Msg("audit")
	}
}

// Query returns entries matching the filter, oldest first.
func (l *AuditLog) Query(f AuditFilter) []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []AuditEntry
	for i := 0; i < l.count; i++ {
		e := l.entries[(l.start+i)%len(l.entries)]
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Len returns the number of entries currently held in the ring.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Appended returns the total number of entries ever appended, including
// those already evicted from the ring.
func (l *AuditLog) Appended() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.appended
}

// Utilization returns the ring fill ratio in [0, 1].
func (l *AuditLog) Utilization() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return float64(l.count) / float64(len(l.entries))
}
