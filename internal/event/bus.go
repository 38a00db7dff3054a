package event

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Sentinel errors for the event bus.
var (
	// ErrInvalidTopic is returned when a topic is empty or malformed.
	ErrInvalidTopic = errors.New("invalid topic")
	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")
	// ErrHandlerPanic is matched by PanicError.
	ErrHandlerPanic = errors.New("handler panicked")
)

// HandlerError wraps an error from a handler with its topic.
type HandlerError struct {
	SubscriptionID uint64
	Topic          Topic
	Err            error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %d on %s: %v", e.SubscriptionID, e.Topic, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// PanicError wraps a panic value recovered from a handler.
type PanicError struct {
	SubscriptionID uint64
	Topic          Topic
	Value          any
	Stack          string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler %d on %s panicked: %v", e.SubscriptionID, e.Topic, e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}

// Handler receives the payload of a matching event.
type Handler[T any] func(ctx context.Context, payload T) error

// Subscription controls one registered handler.
type Subscription interface {
	ID() uint64
	Topic() Topic
	IsActive() bool
	// Cancel stops delivery. It is safe to call more than once and from
	// inside a handler.
	Cancel()
}

type subscription struct {
	id        uint64
	pattern   Topic
	deliver   func(ctx context.Context, payload any) (handled bool, err error)
	cancelled atomic.Bool
	bus       *Bus
}

func (s *subscription) ID() uint64     { return s.id }
func (s *subscription) Topic() Topic   { return s.pattern }
func (s *subscription) IsActive() bool { return !s.cancelled.Load() }

func (s *subscription) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	s.bus.remove(s.id)
}

// Option configures a Bus.
type Option func(*Bus)

// WithErrorHandler reports every handler failure as it happens.
func WithErrorHandler(fn func(error)) Option {
	return func(b *Bus) { b.onError = fn }
}

// Bus delivers events synchronously to subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    []*subscription
	nextID  atomic.Uint64
	onError func(error)

	published atomic.Uint64
	delivered atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for events whose topic matches pattern and
// whose payload is a T. Payloads of other types are skipped silently.
func Subscribe[T any](b *Bus, pattern Topic, handler Handler[T]) (Subscription, error) {
	if !pattern.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, pattern)
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	sub := &subscription{
		id:      b.nextID.Add(1),
		pattern: pattern,
		bus:     b,
		deliver: func(ctx context.Context, payload any) (bool, error) {
			v, ok := payload.(T)
			if !ok {
				return false, nil
			}
			return true, handler(ctx, v)
		},
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every active subscription matching topic, in
// subscription order. The returned error joins every handler failure.
func (b *Bus) Publish(ctx context.Context, topic Topic, payload any) error {
	if !topic.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	b.published.Add(1)

	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.pattern.Matches(topic) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, s := range targets {
		// A handler earlier in this round may have cancelled s.
		if !s.IsActive() {
			continue
		}
		if err := b.call(ctx, s, topic, payload); err != nil {
			errs = append(errs, err)
			if b.onError != nil {
				b.onError(err)
			}
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) call(ctx context.Context, s *subscription, topic Topic, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{SubscriptionID: s.id, Topic: topic, Value: r, Stack: string(debug.Stack())}
		}
	}()
	handled, herr := s.deliver(ctx, payload)
	if handled {
		b.delivered.Add(1)
	}
	if herr != nil {
		return &HandlerError{SubscriptionID: s.id, Topic: topic, Err: herr}
	}
	return nil
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Subscriptions int
	Published     uint64
	Delivered     uint64
}

// Stats returns the current counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return Stats{Subscriptions: n, Published: b.published.Load(), Delivered: b.delivered.Load()}
}
