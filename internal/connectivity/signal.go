// Package connectivity tracks whether the metadata provider is reachable.
//
// The Signal is push-based: something outside the core (the platform's
// network callback, the HTTP API, or a Prober) calls Set, and the core reads
// Current or Connected at decision time. It starts Unknown, and Unknown is
// never treated as connected, so a cold start never triggers network I/O.
package connectivity

import (
	"fmt"
	"sync"
)

// State is the ternary connectivity state.
type State int

const (
	Unknown State = iota
	Online
	Offline
)

func (s State) String() string {
	switch s {
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of String.
func ParseState(v string) (State, error) {
	switch v {
	case "online":
		return Online, nil
	case "offline":
		return Offline, nil
	case "unknown":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("invalid connectivity state %q", v)
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Signal holds the current state and fans changes out to subscribers.
//
// Thread-safety: all methods are safe for concurrent use.
type Signal struct {
	mu    sync.Mutex
	state State
	subs  map[int]chan State
	next  int
}

// NewSignal creates a Signal in the Unknown state.
func NewSignal() *Signal {
	return &Signal{subs: make(map[int]chan State)}
}

// Set records a new state and reports whether it changed.
// Subscribers are notified only on change.
func (s *Signal) Set(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == state {
		return false
	}
	s.state = state

	for _, ch := range s.subs {
		// Each channel holds at most the latest state; a slow reader sees
		// the newest value, never a backlog.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- state:
		default:
		}
	}
	return true
}

// Current returns the last state pushed.
func (s *Signal) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether network I/O should be attempted.
func (s *Signal) Connected() bool {
	return s.Current() == Online
}

// Subscribe returns a channel receiving state changes and a cancel func
// that closes it. Cancel is idempotent.
func (s *Signal) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan State, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}
