package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lodgekit/extensions/internal/logger"
)

// Kind classifies an audit event.
type Kind string

const (
	KindRouteDispatch      Kind = "route_dispatch"
	KindAuthorizationDeny  Kind = "authorization_denied"
	KindExtensionActivated Kind = "extension_activated"
	KindExtensionDisabled  Kind = "extension_deactivated"
	KindManifestSync       Kind = "manifest_sync"
)

// Event is one structured audit record. Fields that do not apply to a given
// kind stay empty.
type Event struct {
	ID        string
	Kind      Kind
	Extension string
	Surface   string
	Method    string
	Path      string
	Tenant    string
	Actor     string
	Detail    string
	At        time.Time
}

// Sink receives audit events. Implementations must tolerate a zero-value
// Event ID and fill it in.
type Sink interface {
	Record(event Event)
}

// LogSink writes audit events as structured log entries.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink builds a Sink backed by the given logger.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

// Record writes the event as one log entry.
func (s *LogSink) Record(event Event) {
	if s == nil || s.log == nil {
		return
	}
	stamp(&event)

	s.log.WithFields(map[string]any{
		"audit_id":  event.ID,
		"kind":      string(event.Kind),
		"extension": event.Extension,
		"surface":   event.Surface,
		"method":    event.Method,
		"path":      event.Path,
		"tenant":    event.Tenant,
		"actor":     event.Actor,
		"detail":    event.Detail,
	}).Info("audit")
}

// MemorySink captures events in memory. Test helper.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// Record appends the event.
func (s *MemorySink) Record(event Event) {
	if s == nil {
		return
	}
	stamp(&event)
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func stamp(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
}
