package session

import (
	"sync"
	"time"
)

// EventType names a session transition.
type EventType int

const (
	EventRehydrated EventType = iota
	EventLoggedIn
	EventLoggedOut
	EventRefreshed
	EventRefreshFailed
	EventAuthExpired
)

func (e EventType) String() string {
	switch e {
	case EventRehydrated:
		return "rehydrated"
	case EventLoggedIn:
		return "logged_in"
	case EventLoggedOut:
		return "logged_out"
	case EventRefreshed:
		return "refreshed"
	case EventRefreshFailed:
		return "refresh_failed"
	case EventAuthExpired:
		return "auth_expired"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after a transition. It never carries
// tokens.
type Event struct {
	Type     EventType
	State    State
	Identity *Identity
	Err      error
	At       time.Time
}

// broadcaster fans events out to subscriber channels. Sends never block: a
// subscriber whose buffer is full misses the event.
type broadcaster struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	closed bool
}

func (b *broadcaster) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.subs == nil {
		b.subs = make(map[int]chan Event)
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
