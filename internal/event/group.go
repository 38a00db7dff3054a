package event

import "sync"

// Group tracks subscriptions so a component can detach all of them at once.
type Group struct {
	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

// Add records sub. Adding to a closed group cancels sub immediately.
func (g *Group) Add(sub Subscription, err error) error {
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		sub.Cancel()
		return nil
	}
	g.subs = append(g.subs, sub)
	return nil
}

// Close cancels every tracked subscription.
func (g *Group) Close() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.closed = true
	g.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
}

// Closed reports whether Close ran.
func (g *Group) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
