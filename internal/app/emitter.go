package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
)

// Emitter fans coordinator events out to any number of subscribers.
// Callbacks run synchronously on the emitting goroutine; subscribers that
// need decoupling use Listen, which drops on a full buffer rather than
// blocking the coordinator.
type Emitter struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(core.Event)
}

func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[int]func(core.Event))}
}

// Subscribe registers fn and returns its cancel function.
func (e *Emitter) Subscribe(fn func(core.Event)) func() {
	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Listen returns a bounded event channel and its cancel function.
func (e *Emitter) Listen(buffer int) (<-chan core.Event, func()) {
	ch := make(chan core.Event, buffer)
	cancel := e.Subscribe(func(ev core.Event) {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("module", "app.emitter").Msg("subscriber buffer full, event dropped")
		}
	})
	return ch, cancel
}

func (e *Emitter) Emit(ev core.Event) {
	e.mu.RLock()
	fns := make([]func(core.Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
