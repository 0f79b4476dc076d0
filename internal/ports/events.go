package ports

// EventManager fans run lifecycle events out to in-process subscribers.
// Publishing never blocks the engine; slow subscribers drop events.
type EventManager interface {
	Publish(event interface{})
	Subscribe(buffer int) (<-chan interface{}, func())
}
