package xidata

// EventType identifies a handle lifecycle event.
type EventType uint8

const (
	EventProduced EventType = iota
	// EventReleased fires once the payload has been destroyed on its owner.
	EventReleased
	// EventDeferred fires when a release is posted to the owner's queue.
	EventDeferred
	// EventLeaked fires when the owner was gone at release time.
	EventLeaked
)

func (t EventType) String() string {
	switch t {
	case EventProduced:
		return "produced"
	case EventReleased:
		return "released"
	case EventDeferred:
		return "deferred"
	case EventLeaked:
		return "leaked"
	default:
		return "unknown"
	}
}

// Event describes a handle lifecycle change.
type Event struct {
	Handle *Handle
	Kind   string
	Owner  int64
	// Isolate is the isolate that triggered the event, or NoOwner.
	Isolate int64
	Type    EventType
}

// Observer receives handle lifecycle events. Events may be delivered on
// any isolate's thread; implementations must be safe for concurrent use.
type Observer interface {
	OnHandleEvent(Event)
}

// Subscribe adds an observer for lifecycle events.
func (m *Manager) Subscribe(o Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, o)
}

// Unsubscribe removes an observer.
func (m *Manager) Unsubscribe(o Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	for i, obs := range m.observers {
		if obs == o {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return
		}
	}
}

func (m *Manager) notify(e Event) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, o := range m.observers {
		o.OnHandleEvent(e)
	}
}
