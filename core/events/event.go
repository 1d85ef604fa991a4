package events

import "dineledger/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events until the caller decides whether the operation that
// produced them committed.
type Buffer struct {
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(e Event) {
	if e == nil {
		return
	}
	b.pending = append(b.pending, e)
}

// Drain returns and clears the buffered events.
func (b *Buffer) Drain() []Event {
	out := b.pending
	b.pending = nil
	return out
}

// Reset drops the buffered events.
func (b *Buffer) Reset() { b.pending = nil }

// Len reports the number of buffered events.
func (b *Buffer) Len() int { return len(b.pending) }
