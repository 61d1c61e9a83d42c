package discord

import (
	"context"
	"sync"

	discordpkg "github.com/foxseedlab/modbot/internal/discord"
)

type messageWaiter struct {
	match func(discordpkg.Message) bool
	ch    chan discordpkg.Message
}

type componentWaiter struct {
	match func(discordpkg.InteractionEvent) bool
	ch    chan discordpkg.InteractionEvent
}

// waiterRegistry hands inbound events to goroutines blocked in
// WaitForMessage or WaitForComponent. Each waiter receives at most one
// event.
type waiterRegistry struct {
	mu         sync.Mutex
	messages   []*messageWaiter
	components []*componentWaiter
}

func newWaiterRegistry() *waiterRegistry {
	return &waiterRegistry{}
}

func (r *waiterRegistry) waitMessage(ctx context.Context, match func(discordpkg.Message) bool) (discordpkg.Message, error) {
	w := &messageWaiter{match: match, ch: make(chan discordpkg.Message, 1)}
	r.mu.Lock()
	r.messages = append(r.messages, w)
	r.mu.Unlock()

	select {
	case m := <-w.ch:
		return m, nil
	case <-ctx.Done():
		r.mu.Lock()
		r.messages = removeWaiter(r.messages, w)
		r.mu.Unlock()
		// the event may have been delivered between ctx expiry and removal
		select {
		case m := <-w.ch:
			return m, nil
		default:
		}
		return discordpkg.Message{}, ctx.Err()
	}
}

func (r *waiterRegistry) waitComponent(ctx context.Context, match func(discordpkg.InteractionEvent) bool) (discordpkg.InteractionEvent, error) {
	w := &componentWaiter{match: match, ch: make(chan discordpkg.InteractionEvent, 1)}
	r.mu.Lock()
	r.components = append(r.components, w)
	r.mu.Unlock()

	select {
	case e := <-w.ch:
		return e, nil
	case <-ctx.Done():
		r.mu.Lock()
		r.components = removeWaiter(r.components, w)
		r.mu.Unlock()
		select {
		case e := <-w.ch:
			return e, nil
		default:
		}
		return discordpkg.InteractionEvent{}, ctx.Err()
	}
}

// offerMessage delivers m to every matching waiter.
func (r *waiterRegistry) offerMessage(m discordpkg.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.messages[:0]
	for _, w := range r.messages {
		if w.match(m) {
			w.ch <- m
			continue
		}
		kept = append(kept, w)
	}
	clear(r.messages[len(kept):])
	r.messages = kept
}

// offerComponent delivers e to the first matching waiter and reports
// whether one claimed it.
func (r *waiterRegistry) offerComponent(e discordpkg.InteractionEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, w := range r.components {
		if w.match(e) {
			w.ch <- e
			r.components = append(r.components[:i], r.components[i+1:]...)
			return true
		}
	}
	return false
}

func removeWaiter[T comparable](waiters []T, target T) []T {
	for i, w := range waiters {
		if w == target {
			return append(waiters[:i], waiters[i+1:]...)
		}
	}
	return waiters
}
