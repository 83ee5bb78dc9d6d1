// Package diagnostics keeps the observable record of the most recent run.
package diagnostics

import (
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

// State is the lifecycle position of a run.
type State string

// Run states.
const (
	StateSeeding   State = "seeding"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
)

// Terminal reports whether no further transitions happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut
}

// maxEntries bounds each list in a snapshot.
const maxEntries = 1000

// PageRecord describes one fetch attempt.
type PageRecord struct {
	URL         string `json:"url"`
	FinalURL    string `json:"final_url,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Bytes       int    `json:"bytes"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	Reason      string `json:"reason,omitempty"`
}

// Snapshot is a point-in-time copy of a run's diagnostics.
type Snapshot struct {
	RunID          string       `json:"run_id"`
	Version        uint64       `json:"version"`
	Kind           string       `json:"kind"`
	SeedURL        string       `json:"seed_url"`
	State          State        `json:"state"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
	PagesCount     int          `json:"pages_count"`
	ThinPagesCount int          `json:"thin_pages_count"`
	SkippedLinks   int          `json:"skipped_links"`
	Diagnostics    []string     `json:"diagnostics"`
	Errors         []string     `json:"errors"`
	TimedOut       bool         `json:"timed_out"`
	Pages          []PageRecord `json:"pages"`
	Truncated      int          `json:"truncated_entries,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Diagnostics = append([]string{}, s.Diagnostics...)
	out.Errors = append([]string{}, s.Errors...)
	out.Pages = append([]PageRecord{}, s.Pages...)
	if s.FinishedAt != nil {
		finished := *s.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}

// Store holds the current run. Starting a run supersedes the previous one.
type Store struct {
	mu      sync.RWMutex
	clock   crawler.Clock
	version uint64
	current *Run
}

// NewStore returns an empty Store.
func NewStore(clock crawler.Clock) *Store {
	return &Store{clock: clock}
}

// Begin starts recording a new run and makes it current.
func (s *Store) Begin(runID, kind, seedURL string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	r := &Run{
		store: s,
		snap: Snapshot{
			RunID:       runID,
			Version:     s.version,
			Kind:        kind,
			SeedURL:     seedURL,
			State:       StateSeeding,
			StartedAt:   s.now(),
			Diagnostics: []string{},
			Errors:      []string{},
			Pages:       []PageRecord{},
		},
	}
	s.current = r
	return r
}

// Latest returns a copy of the current run's diagnostics. ok is false before
// any run started.
func (s *Store) Latest() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Snapshot{}, false
	}
	return s.current.snap.clone(), true
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

// Run records one run. Methods are safe for concurrent use. Each Run owns its
// snapshot; once a newer run begins, the store stops serving the old one, so
// late writes from a superseded run are invisible to Store.Latest. Writes
// after Finish are ignored.
type Run struct {
	store *Store
	snap  Snapshot
}

func (r *Run) update(fn func(*Snapshot)) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.snap.State.Terminal() {
		return
	}
	fn(&r.snap)
}

// Current reports whether no newer run has begun.
func (r *Run) Current() bool {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.current == r
}

// SetState moves the run to a non-terminal state.
func (r *Run) SetState(state State) {
	if state.Terminal() {
		return
	}
	r.update(func(s *Snapshot) { s.State = state })
}

// PageDone counts an emitted page.
func (r *Run) PageDone(thin bool) {
	r.update(func(s *Snapshot) {
		s.PagesCount++
		if thin {
			s.ThinPagesCount++
		}
	})
}

// Skipped counts n links rejected by policy or robots.
func (r *Run) Skipped(n int) {
	if n <= 0 {
		return
	}
	r.update(func(s *Snapshot) { s.SkippedLinks += n })
}

// Note adds a diagnostic message.
func (r *Run) Note(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.update(func(s *Snapshot) { s.Diagnostics = appendBounded(s, s.Diagnostics, msg) })
}

// Error records a per-page failure.
func (r *Run) Error(pageURL, reason string) {
	msg := pageURL + ": " + reason
	r.update(func(s *Snapshot) { s.Errors = appendBounded(s, s.Errors, msg) })
}

// Page records a fetch attempt.
func (r *Run) Page(rec PageRecord) {
	r.update(func(s *Snapshot) {
		if len(s.Pages) >= maxEntries {
			s.Truncated++
			return
		}
		s.Pages = append(s.Pages, rec)
	})
}

// Finish moves the run to its terminal state.
func (r *Run) Finish(timedOut bool) {
	r.update(func(s *Snapshot) {
		s.TimedOut = timedOut
		s.State = StateCompleted
		if timedOut {
			s.State = StateTimedOut
		}
		finished := r.store.now()
		s.FinishedAt = &finished
	})
}

// Snapshot returns a copy of this run's diagnostics, current or not.
func (r *Run) Snapshot() Snapshot {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.snap.clone()
}

func appendBounded(s *Snapshot, list []string, msg string) []string {
	if len(list) >= maxEntries {
		s.Truncated++
		return list
	}
	return append(list, msg)
}
