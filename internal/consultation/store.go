package consultation

import (
	"strings"
	"sync"
)

// Listener receives a snapshot after every mutation.
type Listener func(State)

// Store holds one session's consultation record. Each mutation is applied
// atomically; the order between concurrent producers is last-write-wins.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
}

// NewStore returns a store in the initial state.
func NewStore() *Store {
	return &Store{
		state:     Initial(),
		listeners: make(map[int]Listener),
	}
}

// Reset returns the record to its initial state. Calling it twice is the same
// as calling it once.
func (s *Store) Reset() {
	s.mu.Lock()
	s.state = Initial()
	snapshot := s.state.Clone()
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners, snapshot)
}

// Read returns a deep copy of the current record.
func (s *Store) Read() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Merge applies u and returns the resulting snapshot.
//
// Symptoms whose name already exists (case-insensitively) are dropped.
// Details only fill attributes of the latest symptom that are not yet known.
// AssessmentStatus is overwritten when non-empty. Appointment fields are
// shallow-merged; nil and blank values never erase an existing value, which
// keeps a captured mobile number when a later update omits it.
func (s *Store) Merge(u Update) State {
	if u.IsEmpty() {
		return s.Read()
	}

	s.mu.Lock()
	s.state.Symptoms = mergeSymptoms(s.state.Symptoms, u.Symptoms)
	if u.Details != nil && len(s.state.Symptoms) > 0 {
		last := &s.state.Symptoms[len(s.state.Symptoms)-1]
		last.fillBlanks(*u.Details)
		*last = last.Normalize()
	}
	if status := strings.TrimSpace(u.AssessmentStatus); status != "" {
		s.state.AssessmentStatus = status
	}
	s.state.Appointment = MergeAppointment(s.state.Appointment, u.Appointment)
	snapshot := s.state.Clone()
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners, snapshot)
	return snapshot
}

// Subscribe registers fn and returns a func that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.listeners[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(listeners []Listener, snapshot State) {
	for _, fn := range listeners {
		fn(snapshot.Clone())
	}
}

func mergeSymptoms(existing, incoming []Symptom) []Symptom {
	if existing == nil {
		existing = []Symptom{}
	}
	for _, sym := range incoming {
		if strings.TrimSpace(sym.Symptom) == "" {
			continue
		}
		sym = sym.Normalize()
		if containsSymptom(existing, sym.Key()) {
			continue
		}
		existing = append(existing, sym)
	}
	return existing
}

// MergeAppointment shallow-merges incoming over existing and returns a new
// record. Nil and blank string values are skipped.
func MergeAppointment(existing, incoming Appointment) Appointment {
	out := Appointment{}
	if existing != nil {
		out = existing.Clone()
	}
	for k, v := range incoming {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok && strings.TrimSpace(str) == "" {
			continue
		}
		out[k] = v
	}
	return out
}
