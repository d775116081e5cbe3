package queue

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-scripts/sitemirror/internal/types"
)

// ErrInvalidTransition is returned when a state change skips or repeats a step.
var ErrInvalidTransition = errors.New("invalid crawl state transition")

// Queue is the crawl frontier: a FIFO of pending page paths plus the state
// table of every path ever seen. It is safe for concurrent use.
type Queue struct {
	pending []types.PagePath
	states  map[types.PagePath]types.CrawlState
	reasons map[types.PagePath]error
	mu      sync.Mutex
}

// New creates a new Queue instance
func New() *Queue {
	return &Queue{
		pending: make([]types.PagePath, 0),
		states:  make(map[types.PagePath]types.CrawlState),
		reasons: make(map[types.PagePath]error),
	}
}

// Enqueue adds a path if it has never been seen. It reports whether the path was added.
func (q *Queue) Enqueue(p types.PagePath) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, seen := q.states[p]; seen {
		return false
	}

	q.states[p] = types.StateQueued
	q.pending = append(q.pending, p)
	return true
}

// Next returns the oldest pending path.
func (q *Queue) Next() (types.PagePath, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return "", false
	}

	p := q.pending[0]
	q.pending = q.pending[1:]
	return p, true
}

// MarkInProgress moves a queued path to in-progress.
func (q *Queue) MarkInProgress(p types.PagePath) error {
	return q.transition(p, types.StateQueued, types.StateInProgress)
}

// MarkCompleted moves an in-progress path to completed.
func (q *Queue) MarkCompleted(p types.PagePath) error {
	return q.transition(p, types.StateInProgress, types.StateCompleted)
}

// MarkFailed records a failure for a queued or in-progress path. A failed
// path drops out of Known and Completed, so it is never used as a link target.
func (q *Queue) MarkFailed(p types.PagePath, reason error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	state, ok := q.states[p]
	if !ok || state.Terminal() {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, p, state, types.StateFailed)
	}
	if state == types.StateQueued {
		q.removePending(p)
	}
	q.states[p] = types.StateFailed
	q.reasons[p] = reason
	return nil
}

func (q *Queue) transition(p types.PagePath, from, to types.CrawlState) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if state := q.states[p]; state != from {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, p, state, to)
	}
	q.states[p] = to
	return nil
}

func (q *Queue) removePending(p types.PagePath) {
	for i, item := range q.pending {
		if item == p {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// State returns the current state of a path.
func (q *Queue) State(p types.PagePath) (types.CrawlState, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.states[p]
	return s, ok
}

// Reason returns the failure recorded for a path, if any.
func (q *Queue) Reason(p types.PagePath) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.reasons[p]
}

// Known returns every path that is queued, in progress or completed.
// This is the set of link targets visible while the crawl is running.
func (q *Queue) Known() []types.PagePath {
	return q.collect(func(s types.CrawlState) bool { return s != types.StateFailed })
}

// Completed returns the successfully captured paths.
func (q *Queue) Completed() []types.PagePath {
	return q.collect(func(s types.CrawlState) bool { return s == types.StateCompleted })
}

// Failed returns the paths that could not be captured.
func (q *Queue) Failed() []types.PagePath {
	return q.collect(func(s types.CrawlState) bool { return s == types.StateFailed })
}

func (q *Queue) collect(keep func(types.CrawlState) bool) []types.PagePath {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]types.PagePath, 0, len(q.states))
	for p, s := range q.states {
		if keep(s) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of pending paths
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Seen returns the number of distinct paths ever enqueued
func (q *Queue) Seen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.states)
}
