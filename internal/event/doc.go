// Package event is the in-process publish/subscribe bus that decouples the
// editor server, the watcher and the debug helpers.
//
// Topics use dot notation:
//
//	file.saved
//	compile.completed
//	debug.position.changed
//
// Subscription patterns may use "*" for exactly one segment and "**" for
// zero or more segments ("debug.**" matches every debug topic).
//
// Delivery is synchronous: Publish calls every matching handler in
// subscription order on the publisher's goroutine and returns once all of
// them ran. Handler errors and panics are collected, never propagated as
// panics.
//
// Usage:
//
//	bus := event.NewBus()
//	sub, _ := event.Subscribe(bus, event.TopicFileSaved, func(ctx context.Context, f event.File) error {
//		return compile(ctx, f.Path)
//	})
//	defer sub.Cancel()
//	_ = bus.Publish(ctx, event.TopicFileSaved, event.File{Path: p})
package event
