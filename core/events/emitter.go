package events

import "peerlend/core/types"

// Emitter receives the observations produced by engine state transitions.
// Implementations must not retain the event past the call.
type Emitter interface {
	Emit(evt *types.Event)
}

// NoopEmitter discards every event. Engines fall back to it when no emitter
// has been configured.
type NoopEmitter struct{}

func (NoopEmitter) Emit(*types.Event) {}
