package store

import "sync"

// Notifier is a shared Watcher implementation for store backends. Events
// are delivered best-effort: a subscriber that stops draining its channel
// loses events rather than blocking the mutating call.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]chan Event // owner -> subscriber id -> channel
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers for the owner's change events. The returned cancel
// function is idempotent.
func (n *Notifier) Subscribe(owner string) (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++

	ch := make(chan Event, 16)
	if n.subs[owner] == nil {
		n.subs[owner] = make(map[int]chan Event)
	}
	n.subs[owner][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if set, ok := n.subs[owner]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(n.subs, owner)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish fans the event out to the owner's subscribers.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[ev.Owner] {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up; drop rather than block.
		}
	}
}
