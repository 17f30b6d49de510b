package hooks

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Listener receives an event. Returning an error aborts a critical emit.
type Listener func(ctx context.Context, event *Event) error

// Event is a named notification with a payload.
type Event struct {
	Name    string
	Payload any
}

// Token identifies a subscription.
type Token uint64

type subscription struct {
	token    Token
	name     string
	listener Listener
	once     bool
	fired    atomic.Bool
}

// Bus is an insertion-ordered publish/subscribe registry. Subscriptions are
// expected to change at startup/shutdown; emits take a snapshot so listeners
// may unsubscribe while being invoked.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	next   atomic.Uint64
	logger *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[string][]*subscription),
		logger: logger,
	}
}

// Subscribe registers listener for name.
func (b *Bus) Subscribe(name string, listener Listener) Token {
	return b.add(name, listener, false)
}

// Once registers a listener that is removed after its first invocation,
// whether it succeeds or not.
func (b *Bus) Once(name string, listener Listener) Token {
	return b.add(name, listener, true)
}

func (b *Bus) add(name string, listener Listener, once bool) Token {
	sub := &subscription{
		token:    Token(b.next.Add(1)),
		name:     name,
		listener: listener,
		once:     once,
	}
	b.mu.Lock()
	b.subs[name] = append(b.subs[name], sub)
	b.mu.Unlock()
	return sub.token
}

// Unsubscribe removes the subscription. Unknown or already removed tokens
// are ignored; the result reports whether anything was removed.
func (b *Bus) Unsubscribe(token Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, list := range b.subs {
		for i, sub := range list {
			if sub.token != token {
				continue
			}
			rest := make([]*subscription, 0, len(list)-1)
			rest = append(rest, list[:i]...)
			rest = append(rest, list[i+1:]...)
			if len(rest) == 0 {
				delete(b.subs, name)
			} else {
				b.subs[name] = rest
			}
			return true
		}
	}
	return false
}

// Has reports whether name has at least one listener.
func (b *Bus) Has(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name]) > 0
}

func (b *Bus) snapshot(name string) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	list := b.subs[name]
	if len(list) == 0 {
		return nil
	}
	out := make([]*subscription, len(list))
	copy(out, list)
	return out
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, event *Event) error {
	if sub.once {
		// concurrent emits may share a snapshot; only the first claims it
		if !sub.fired.CompareAndSwap(false, true) {
			return nil
		}
		defer b.Unsubscribe(sub.token)
	}
	return sub.listener(ctx, event)
}

// Emit delivers payload to the listeners of name in subscription order and
// stops at the first error, which is returned. Use it for critical events.
func (b *Bus) Emit(ctx context.Context, name string, payload any) error {
	event := &Event{Name: name, Payload: payload}
	for _, sub := range b.snapshot(name) {
		if err := b.invoke(ctx, sub, event); err != nil {
			return err
		}
	}
	return nil
}

// Notify delivers payload to every listener of name. Listener errors are
// logged and do not stop delivery. Use it for advisory events.
func (b *Bus) Notify(ctx context.Context, name string, payload any) {
	event := &Event{Name: name, Payload: payload}
	for _, sub := range b.snapshot(name) {
		if err := b.invoke(ctx, sub, event); err != nil {
			b.logger.Error("hook listener failed", "hook", name, "error", err)
		}
	}
}
