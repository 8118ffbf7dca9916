package client

type observers struct {
	nextID int
	state  map[int]func(State)
	events map[int]func(Event)
}

// Subscribe registers fn to receive a snapshot after every change. Listeners
// run synchronously and must not mutate the store from inside the callback.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if s.observers.state == nil {
		s.observers.state = make(map[int]func(State))
	}
	id := s.observers.nextID
	s.observers.nextID++
	s.observers.state[id] = fn

	return func() {
		s.notifyMu.Lock()
		delete(s.observers.state, id)
		s.notifyMu.Unlock()
	}
}

// SubscribeEvents registers fn for every decoded realtime event, after the
// store has applied it.
func (s *Store) SubscribeEvents(fn func(Event)) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if s.observers.events == nil {
		s.observers.events = make(map[int]func(Event))
	}
	id := s.observers.nextID
	s.observers.nextID++
	s.observers.events[id] = fn

	return func() {
		s.notifyMu.Lock()
		delete(s.observers.events, id)
		s.notifyMu.Unlock()
	}
}

// notify takes the snapshot while holding notifyMu so listeners see states
// in the order they were produced.
func (s *Store) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if len(s.observers.state) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, fn := range s.observers.state {
		fn(snap)
	}
}

func (s *Store) notifyEvent(ev Event) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for _, fn := range s.observers.events {
		fn(ev)
	}
}
