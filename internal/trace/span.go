package trace

import (
	"fmt"
	"sync/atomic"
	"time"
)

var (
	globalSeq   uint64
	globalSpans uint64
)

// NextSeq returns a monotonically increasing sequence number.
func NextSeq() uint64 {
	return atomic.AddUint64(&globalSeq, 1)
}

// NextSpanID returns a unique span ID.
func NextSpanID() uint64 {
	return atomic.AddUint64(&globalSpans, 1)
}

// Span tracks one logical operation between Begin and End.
type Span struct {
	tracer    Tracer
	id        uint64
	parentID  uint64
	scope     Scope
	component string
	name      string
	started   time.Time
	extra     map[string]string
}

// Begin starts a new span and emits a SpanBegin event.
// parent is the parent span ID (0 if root).
func Begin(t Tracer, scope Scope, component, name string, parent uint64) *Span {
	if t == nil || !t.Level().ShouldEmit(KindSpanBegin, scope) {
		return &Span{tracer: Nop, started: time.Now()}
	}

	id := NextSpanID()
	now := time.Now()
	t.Emit(&Event{
		Time:      now,
		Kind:      KindSpanBegin,
		Scope:     scope,
		Component: component,
		SpanID:    id,
		ParentID:  parent,
		Name:      name,
	})

	return &Span{
		tracer:    t,
		id:        id,
		parentID:  parent,
		scope:     scope,
		component: component,
		name:      name,
		started:   now,
	}
}

// End emits a SpanEnd event and returns the span duration.
func (s *Span) End(detail string) time.Duration {
	if s == nil {
		return 0
	}
	dur := time.Since(s.started)
	if s.tracer == nil || !s.tracer.Enabled() {
		return dur
	}
	extra := s.extra
	if extra == nil {
		extra = make(map[string]string, 1)
	}
	extra["ms"] = fmt.Sprintf("%.2f", float64(dur)/float64(time.Millisecond))
	s.tracer.Emit(&Event{
		Time:      time.Now(),
		Kind:      KindSpanEnd,
		Scope:     s.scope,
		Component: s.component,
		SpanID:    s.id,
		ParentID:  s.parentID,
		Name:      s.name,
		Detail:    detail,
		Extra:     extra,
	})
	return dur
}

// WithExtra adds a key-value pair to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil || s.tracer == nil || !s.tracer.Enabled() {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string)
	}
	s.extra[key] = value
	return s
}

// ID returns the span ID.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Point emits an instant event. kv is a flat list of key/value pairs.
func Point(t Tracer, scope Scope, component, name, detail string, kv ...string) {
	emitInstant(t, KindPoint, scope, component, name, detail, kv)
}

// Error emits an error event; it passes every level except LevelOff.
func Error(t Tracer, component, name string, err error, kv ...string) {
	if err == nil {
		return
	}
	emitInstant(t, KindError, ScopeDriver, component, name, err.Error(), kv)
}

func emitInstant(t Tracer, kind Kind, scope Scope, component, name, detail string, kv []string) {
	if t == nil || !t.Level().ShouldEmit(kind, scope) {
		return
	}
	var extra map[string]string
	if len(kv) > 1 {
		extra = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			extra[kv[i]] = kv[i+1]
		}
	}
	t.Emit(&Event{
		Time:      time.Now(),
		Kind:      kind,
		Scope:     scope,
		Component: component,
		Name:      name,
		Detail:    detail,
		Extra:     extra,
	})
}
