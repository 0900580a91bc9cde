package widget

import "sync"

type Signal string

// EventOpenChatWidget asks the widget to open from anywhere in the program.
const EventOpenChatWidget Signal = "openChatWidget"

// Signals is a small program-wide broadcast bus. Dispatch never blocks; a listener that
// has not drained its previous signal misses the new one.
type Signals struct {
	mu        sync.Mutex
	listeners map[int]chan Signal
	next      int
}

func NewSignals() *Signals {
	return &Signals{listeners: make(map[int]chan Signal)}
}

func (s *Signals) Dispatch(sig Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- sig:
		default:
		}
	}
}

// Listen registers a listener. The returned func removes it.
func (s *Signals) Listen() (<-chan Signal, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	ch := make(chan Signal, 1)
	s.listeners[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}
