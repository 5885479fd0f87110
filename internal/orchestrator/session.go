package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/pkg/utils"
)

// DefaultDebounce is the quiet period after the last keystroke before a search is issued.
const DefaultDebounce = 500 * time.Millisecond

// ErrSearchFailed wraps the cause of a failed search in SearchState.Err.
var ErrSearchFailed = errors.New("search failed")

// Searcher runs one free-text search. *client.Client implements it.
type Searcher interface {
	Search(ctx context.Context, text string) ([]*models.SearchResult, error)
}

// SearchState is what a search box shows. Seq and IssuedAt describe the most
// recently issued search.
type SearchState struct {
	Query     string
	Results   []*models.SearchResult
	Searching bool
	Err       error
	Seq       uint64
	IssuedAt  time.Time
}

// SearchSession turns a stream of query edits into debounced searches. Only the
// response to the most recently issued search is ever applied.
type SearchSession struct {
	searcher Searcher
	clock    Clock
	debounce time.Duration
	onUpdate func(SearchState)
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  SearchState
	timer  Timer
	armed  uint64 // generation of the pending timer
	latest uint64 // sequence number of the last issued search
	closed bool

	// Snapshots waiting for onUpdate, in the order the state changed.
	queue      []SearchState
	wake       chan struct{}
	dispatched chan struct{}
}

// SessionOption configures a SearchSession.
type SessionOption func(*SearchSession)

// WithDebounce sets the debounce interval.
func WithDebounce(d time.Duration) SessionOption {
	return func(s *SearchSession) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithClock sets the clock used for debouncing.
func WithClock(c Clock) SessionOption {
	return func(s *SearchSession) { s.clock = c }
}

// WithOnUpdate registers a callback invoked with a snapshot after every state change.
// Snapshots are delivered one at a time, in order, from a dedicated goroutine.
// The callback must not call Close.
func WithOnUpdate(f func(SearchState)) SessionOption {
	return func(s *SearchSession) { s.onUpdate = f }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *SearchSession) { s.logger = l }
}

// NewSearchSession creates an idle session.
func NewSearchSession(searcher Searcher, opts ...SessionOption) *SearchSession {
	s := &SearchSession{
		searcher: searcher,
		clock:    RealClock(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if s.onUpdate != nil {
		s.wake = make(chan struct{}, 1)
		s.dispatched = make(chan struct{})
		go s.dispatch()
	}
	return s
}

// SetQuery records a query edit. A blank query clears the results at once and
// invalidates every pending or in-flight search; otherwise the debounce timer
// restarts.
func (s *SearchSession) SetQuery(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked()
	s.state.Query = text

	if strings.TrimSpace(text) == "" {
		s.latest++
		s.state.Results = nil
		s.state.Searching = false
		s.state.Err = nil
	} else {
		s.state.Searching = true
		gen := s.armed
		s.timer = s.clock.AfterFunc(s.debounce, func() { s.fire(gen) })
	}
	s.notifyLocked()
	s.mu.Unlock()
}

// State returns a snapshot of the current state.
func (s *SearchSession) State() SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close stops the pending timer and discards any in-flight response. Updates
// queued before Close are delivered before it returns.
func (s *SearchSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTimerLocked()
	s.latest++
	s.cancel()
	s.wakeLocked()
	s.mu.Unlock()
	if s.dispatched != nil {
		<-s.dispatched
	}
}

// stopTimerLocked cancels the pending timer. Bumping armed also neutralizes a
// timer whose callback is already running.
func (s *SearchSession) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed++
}

func (s *SearchSession) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.armed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.latest++
	seq := s.latest
	query := strings.TrimSpace(s.state.Query)
	s.state.Seq = seq
	s.state.IssuedAt = s.clock.Now()
	s.state.Searching = true
	s.notifyLocked()
	s.mu.Unlock()

	s.logger.Debug("Search issued", zap.String("query", query), zap.Uint64("seq", seq))
	go s.run(seq, query)
}

func (s *SearchSession) run(seq uint64, query string) {
	results, err := s.searcher.Search(s.ctx, query)

	s.mu.Lock()
	if seq != s.latest {
		s.mu.Unlock()
		s.logger.Debug("Dropping stale search response", zap.String("query", query), zap.Uint64("seq", seq))
		return
	}
	if err != nil {
		s.logger.Warn("Search failed", zap.String("query", query), zap.Error(err))
		s.state.Err = fmt.Errorf("%w: %w", ErrSearchFailed, err)
	} else {
		s.state.Results = results
		s.state.Err = nil
	}
	s.state.Searching = s.timer != nil
	s.notifyLocked()
	s.mu.Unlock()
}

func (s *SearchSession) snapshotLocked() SearchState {
	st := s.state
	if st.Results != nil {
		st.Results = append([]*models.SearchResult(nil), st.Results...)
	}
	return st
}

// notifyLocked queues a snapshot of the current state for onUpdate.
func (s *SearchSession) notifyLocked() {
	if s.onUpdate == nil {
		return
	}
	s.queue = append(s.queue, s.snapshotLocked())
	s.wakeLocked()
}

func (s *SearchSession) wakeLocked() {
	if s.wake == nil {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatch delivers queued snapshots until the session is closed and drained.
func (s *SearchSession) dispatch() {
	defer close(s.dispatched)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		closed := s.closed
		s.mu.Unlock()

		for _, st := range batch {
			s.onUpdate(st)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-s.wake
	}
}
