package store

import (
	"slices"
	"sync"
	"time"
)

// Statement is one executed read statement.
type Statement struct {
	SQL      string
	Args     []any
	Rows     int
	Duration time.Duration
}

// Observer receives every read statement after it completes.
// Observers run synchronously on the querying goroutine.
type Observer func(Statement)

// Observe registers an observer and returns a func that removes it.
func (s *Store) Observe(fn Observer) (remove func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Store) publish(stmt Statement) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.observers {
		fn(stmt)
	}
}

// Recorder collects statements between Start and Stop.
//
// Thread-safety: All methods are safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	statements []Statement
	stop       func()
}

// Record starts collecting statements issued on s.
func (s *Store) Record() *Recorder {
	r := &Recorder{}
	r.stop = s.Observe(r.add)
	return r
}

func (r *Recorder) add(stmt Statement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = append(r.statements, stmt)
}

// Stop detaches the recorder. Collected statements stay available.
func (r *Recorder) Stop() {
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
}

// Count returns the number of statements collected so far.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statements)
}

// Statements returns a copy of the collected statements.
func (r *Recorder) Statements() []Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.statements)
}

// SQL returns the collected statement texts in order.
func (r *Recorder) SQL() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.statements))
	for i, stmt := range r.statements {
		out[i] = stmt.SQL
	}
	return out
}

// Reset discards collected statements.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = nil
}
