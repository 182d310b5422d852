package rotation

import "sync"

// Transport is the abstract message bus the coordinator runs over: one
// broadcast channel per controller AID (spec.md section 4.6, "subscribe
// on the transport channel for controllerAid"). Non-goals exclude any
// real network protocol; this is the fixed interface surface a later
// wire transport would implement.
type Transport interface {
	Subscribe(channel string) (msgs <-chan Message, unsubscribe func(), err error)
	Send(channel string, msg Message) error
}

// InMemoryTransport is the reference Transport used to exercise and test
// the coordinator end-to-end; not a network transport (out of scope).
type InMemoryTransport struct {
	mu   sync.Mutex
	subs map[string][]chan Message
}

// NewInMemoryTransport constructs an empty InMemoryTransport.
func NewInMemoryTransport() *InMemoryTransport {
	return &InMemoryTransport{subs: make(map[string][]chan Message)}
}

func (t *InMemoryTransport) Subscribe(channel string) (<-chan Message, func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan Message, 64)
	t.subs[channel] = append(t.subs[channel], ch)

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		subs := t.subs[channel]
		for i, c := range subs {
			if c == ch {
				t.subs[channel] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, unsubscribe, nil
}

func (t *InMemoryTransport) Send(channel string, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subs[channel] {
		select {
		case ch <- msg:
		default:
			// Slow/unbuffered-full subscriber: drop rather than block the
			// sender, mirroring real transport backpressure semantics.
		}
	}
	return nil
}
