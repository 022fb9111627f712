package protocol

import "time"

// Observer is the pluggable transition hook spec.md §9 DESIGN NOTES
// calls for: the core emits one event per state transition (except
// re-entrant buffer accumulation) and never depends on a global sink.
type Observer interface {
	OnTransition(svc ServiceName, prev, next string, elapsed time.Duration)
}

// NoopObserver discards every event. It is the default when no
// Observer is configured.
type NoopObserver struct{}

// OnTransition implements Observer.
func (NoopObserver) OnTransition(ServiceName, string, string, time.Duration) {}
