package client

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/focushive/hivesync/pkg/protocol"
)

// Handler receives a dispatched envelope.
type Handler func(*protocol.Envelope)

// Subscription is the handle returned by Subscribe. Unsubscribe
// removes exactly that callback; calling it more than once is a no-op.
type Subscription struct {
	d    *Dispatcher
	tag  string
	id   uint64
	once sync.Once
}

// Unsubscribe removes the callback from the dispatcher.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.d.remove(s.tag, s.id)
	})
}

type subscriber struct {
	id uint64
	fn Handler
}

// Dispatcher routes inbound envelopes to subscribers by type tag.
// Tag-specific subscribers run first, in registration order, then
// catch-all subscribers. A panicking subscriber is logged and does not
// stop the remaining ones. Unknown tags are dispatched as-is.
type Dispatcher struct {
	mu       sync.Mutex
	subs     map[string][]subscriber
	catchAll []subscriber
	nextID   uint64

	lastMu sync.RWMutex
	last   *protocol.Envelope

	logger *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		subs:   make(map[string][]subscriber),
		logger: logger,
	}
}

// Subscribe registers fn for envelopes with the given type tag.
func (d *Dispatcher) Subscribe(tag string, fn Handler) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.subs[tag] = append(d.subs[tag], subscriber{id: d.nextID, fn: fn})
	return &Subscription{d: d, tag: tag, id: d.nextID}
}

// SubscribeAll registers fn for every envelope, regardless of tag.
// Catch-all subscribers fire after tag-specific ones.
func (d *Dispatcher) SubscribeAll(fn Handler) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.catchAll = append(d.catchAll, subscriber{id: d.nextID, fn: fn})
	return &Subscription{d: d, tag: "", id: d.nextID}
}

func (d *Dispatcher) remove(tag string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tag == "" {
		d.catchAll = removeByID(d.catchAll, id)
		return
	}
	remaining := removeByID(d.subs[tag], id)
	if len(remaining) == 0 {
		delete(d.subs, tag)
	} else {
		d.subs[tag] = remaining
	}
}

func removeByID(subs []subscriber, id uint64) []subscriber {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Dispatch records env as the last received envelope and invokes
// subscribers. Each invocation is isolated: a panic is recovered and
// logged, never propagated.
func (d *Dispatcher) Dispatch(env *protocol.Envelope) {
	d.lastMu.Lock()
	d.last = env
	d.lastMu.Unlock()

	d.mu.Lock()
	targets := make([]subscriber, 0, len(d.subs[env.Type])+len(d.catchAll))
	targets = append(targets, d.subs[env.Type]...)
	targets = append(targets, d.catchAll...)
	d.mu.Unlock()

	for _, s := range targets {
		d.invoke(s, env)
	}
}

func (d *Dispatcher) invoke(s subscriber, env *protocol.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("subscriber panic",
				"type", env.Type, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	s.fn(env)
}

// Last returns the most recently dispatched envelope, or nil.
func (d *Dispatcher) Last() *protocol.Envelope {
	d.lastMu.RLock()
	defer d.lastMu.RUnlock()
	return d.last
}
