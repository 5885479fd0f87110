package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/snapseek/internal/models"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// AdvanceTo moves the clock to epoch+offset, firing due timers in order.
func (c *fakeClock) AdvanceTo(offset time.Duration) {
	target := epoch.Add(offset)
	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

// gatedSearcher records queries and blocks each one until released.
type gatedSearcher struct {
	mu      sync.Mutex
	queries []string
	gates   map[string]chan struct{}
	results map[string][]*models.SearchResult
	fail    map[string]error
	gated   bool
}

func newGatedSearcher(gated bool) *gatedSearcher {
	return &gatedSearcher{
		gates:   make(map[string]chan struct{}),
		results: make(map[string][]*models.SearchResult),
		fail:    make(map[string]error),
		gated:   gated,
	}
}

func (g *gatedSearcher) gate(q string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[q]
	if !ok {
		ch = make(chan struct{})
		g.gates[q] = ch
	}
	return ch
}

func (g *gatedSearcher) release(q string) { close(g.gate(q)) }

func (g *gatedSearcher) Search(ctx context.Context, text string) ([]*models.SearchResult, error) {
	g.mu.Lock()
	g.queries = append(g.queries, text)
	gated := g.gated
	g.mu.Unlock()
	if gated {
		<-g.gate(text)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail[text]; err != nil {
		return nil, err
	}
	if r, ok := g.results[text]; ok {
		return r, nil
	}
	return []*models.SearchResult{{SourcePath: "/p/" + text, Score: 0.9, Rank: 1}}, nil
}

func (g *gatedSearcher) Queries() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.queries...)
}

// updates collects every state passed to OnUpdate.
type updates struct {
	mu     sync.Mutex
	states []SearchState
}

func (u *updates) record(s SearchState) {
	u.mu.Lock()
	u.states = append(u.states, s)
	u.mu.Unlock()
}

func (u *updates) last() (SearchState, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.states) == 0 {
		return SearchState{}, false
	}
	return u.states[len(u.states)-1], true
}

func (u *updates) paths() [][]string {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out [][]string
	for _, s := range u.states {
		if s.Results == nil {
			continue
		}
		var p []string
		for _, r := range s.Results {
			p = append(p, r.SourcePath)
		}
		out = append(out, p)
	}
	return out
}

func resultPaths(st SearchState) []string {
	var p []string
	for _, r := range st.Results {
		p = append(p, r.SourcePath)
	}
	return p
}

func TestSearchSession_DebounceTimeline(t *testing.T) {
	clock := newFakeClock()
	searcher := newGatedSearcher(false)
	s := NewSearchSession(searcher, WithClock(clock), WithDebounce(500*time.Millisecond))
	defer s.Close()

	// "ab" goes quiet at 600ms, before "abc" arrives at 700ms.
	s.SetQuery("a")
	clock.AdvanceTo(100 * time.Millisecond)
	s.SetQuery("ab")
	clock.AdvanceTo(599 * time.Millisecond)
	assert.Empty(t, searcher.Queries(), "no search before the quiet period ends")

	clock.AdvanceTo(600 * time.Millisecond)
	assert.Equal(t, uint64(1), s.State().Seq)
	assert.Equal(t, epoch.Add(600*time.Millisecond), s.State().IssuedAt)
	require.Eventually(t, func() bool { return len(searcher.Queries()) == 1 }, time.Second, time.Millisecond)

	clock.AdvanceTo(700 * time.Millisecond)
	s.SetQuery("abc")
	assert.True(t, s.State().Searching)
	clock.AdvanceTo(1199 * time.Millisecond)
	assert.Equal(t, []string{"ab"}, searcher.Queries())

	clock.AdvanceTo(1200 * time.Millisecond)
	st := s.State()
	assert.Equal(t, uint64(2), st.Seq)
	assert.Equal(t, epoch.Add(1200*time.Millisecond), st.IssuedAt)

	require.Eventually(t, func() bool {
		st := s.State()
		return !st.Searching && st.Results != nil && st.Results[0].SourcePath == "/p/abc"
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"ab", "abc"}, searcher.Queries())

	clock.AdvanceTo(5 * time.Second)
	assert.Len(t, searcher.Queries(), 2)
}

func TestSearchSession_DebounceCoalescesEdits(t *testing.T) {
	clock := newFakeClock()
	searcher := newGatedSearcher(false)
	s := NewSearchSession(searcher, WithClock(clock), WithDebounce(500*time.Millisecond))
	defer s.Close()

	s.SetQuery("a")
	clock.AdvanceTo(100 * time.Millisecond)
	s.SetQuery("ab")
	clock.AdvanceTo(400 * time.Millisecond)
	s.SetQuery("abc")

	clock.AdvanceTo(899 * time.Millisecond)
	assert.Empty(t, searcher.Queries(), "no search before the quiet period ends")
	assert.Zero(t, s.State().Seq)

	clock.AdvanceTo(900 * time.Millisecond)
	st := s.State()
	assert.Equal(t, uint64(1), st.Seq)
	assert.Equal(t, epoch.Add(900*time.Millisecond), st.IssuedAt)

	require.Eventually(t, func() bool { return !s.State().Searching }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"abc"}, searcher.Queries())
	assert.Equal(t, []string{"/p/abc"}, resultPaths(s.State()))

	clock.AdvanceTo(5 * time.Second)
	assert.Len(t, searcher.Queries(), 1)
}

func TestSearchSession_StaleResponseSuppressed(t *testing.T) {
	for _, order := range []string{"newer first", "older first"} {
		t.Run(order, func(t *testing.T) {
			clock := newFakeClock()
			searcher := newGatedSearcher(true)
			var u updates
			s := NewSearchSession(searcher, WithClock(clock), WithOnUpdate(u.record))
			defer s.Close()

			s.SetQuery("cat")
			clock.AdvanceTo(500 * time.Millisecond)
			s.SetQuery("dog")
			clock.AdvanceTo(1000 * time.Millisecond)
			require.Eventually(t, func() bool { return len(searcher.Queries()) == 2 }, time.Second, time.Millisecond)

			if order == "newer first" {
				searcher.release("dog")
				require.Eventually(t, func() bool { return !s.State().Searching }, time.Second, time.Millisecond)
				searcher.release("cat")
			} else {
				searcher.release("cat")
				searcher.release("dog")
				require.Eventually(t, func() bool { return !s.State().Searching }, time.Second, time.Millisecond)
			}
			// Give the stale goroutine time to land.
			time.Sleep(20 * time.Millisecond)

			st := s.State()
			assert.Equal(t, uint64(2), st.Seq)
			assert.Equal(t, []string{"/p/dog"}, resultPaths(st))
			for _, p := range u.paths() {
				assert.NotContains(t, p, "/p/cat", "stale results must never be shown")
			}
		})
	}
}

func TestSearchSession_ClearInvalidatesInFlight(t *testing.T) {
	clock := newFakeClock()
	searcher := newGatedSearcher(true)
	s := NewSearchSession(searcher, WithClock(clock))
	defer s.Close()

	s.SetQuery("cat")
	clock.AdvanceTo(500 * time.Millisecond)
	require.Eventually(t, func() bool { return len(searcher.Queries()) == 1 }, time.Second, time.Millisecond)

	s.SetQuery("   ")
	st := s.State()
	assert.False(t, st.Searching)
	assert.Empty(t, st.Results)

	searcher.release("cat")
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, s.State().Results)
}

func TestSearchSession_UpdatesDeliveredInOrder(t *testing.T) {
	clock := newFakeClock()
	searcher := newGatedSearcher(true)
	held := make(chan struct{})
	resume := make(chan struct{})
	var once sync.Once
	var u updates
	s := NewSearchSession(searcher, WithClock(clock), WithOnUpdate(func(st SearchState) {
		if st.Results != nil {
			once.Do(func() {
				close(held)
				<-resume
			})
		}
		u.record(st)
	}))
	defer s.Close()

	s.SetQuery("cat")
	clock.AdvanceTo(500 * time.Millisecond)
	require.Eventually(t, func() bool { return len(searcher.Queries()) == 1 }, time.Second, time.Millisecond)
	searcher.release("cat")
	select {
	case <-held:
	case <-time.After(2 * time.Second):
		t.Fatal("results were never delivered")
	}

	// The observer is still busy with the "cat" results when the query is cleared.
	s.SetQuery("")
	close(resume)

	require.Eventually(t, func() bool {
		st, ok := u.last()
		return ok && st.Query == ""
	}, time.Second, time.Millisecond)
	st, _ := u.last()
	assert.Nil(t, st.Results)
	assert.False(t, st.Searching)
	assert.Empty(t, s.State().Results)
}

func TestSearchSession_CloseDeliversQueuedUpdates(t *testing.T) {
	var u updates
	s := NewSearchSession(newGatedSearcher(false), WithClock(newFakeClock()), WithOnUpdate(u.record))
	s.SetQuery("cat")
	s.SetQuery("")
	s.Close()

	st, ok := u.last()
	require.True(t, ok)
	assert.Equal(t, "", st.Query)
	u.mu.Lock()
	assert.Len(t, u.states, 2)
	u.mu.Unlock()
}

func TestSearchSession_ClearCancelsPendingTimer(t *testing.T) {
	clock := newFakeClock()
	searcher := newGatedSearcher(false)
	s := NewSearchSession(searcher, WithClock(clock))
	defer s.Close()

	s.SetQuery("cat")
	clock.AdvanceTo(200 * time.Millisecond)
	s.SetQuery("")
	clock.AdvanceTo(2 * time.Second)
	assert.Empty(t, searcher.Queries())
	assert.Zero(t, s.State().Seq, "no search was issued")
}

func TestSearchSession_Failure(t *testing.T) {
	clock := newFakeClock()
	searcher := newGatedSearcher(false)
	searcher.fail["boom"] = errors.New("connection refused")
	s := NewSearchSession(searcher, WithClock(clock))
	defer s.Close()

	s.SetQuery("boom")
	clock.AdvanceTo(time.Second)
	require.Eventually(t, func() bool { return !s.State().Searching }, time.Second, time.Millisecond)

	st := s.State()
	require.Error(t, st.Err)
	assert.ErrorIs(t, st.Err, ErrSearchFailed)
	assert.Contains(t, st.Err.Error(), "search failed")

	s.SetQuery("fine")
	clock.AdvanceTo(2 * time.Second)
	require.Eventually(t, func() bool { return !s.State().Searching }, time.Second, time.Millisecond)
	assert.NoError(t, s.State().Err)
}

func TestSearchSession_CloseStopsTimer(t *testing.T) {
	clock := newFakeClock()
	searcher := newGatedSearcher(false)
	s := NewSearchSession(searcher, WithClock(clock))

	s.SetQuery("cat")
	s.Close()
	clock.AdvanceTo(time.Second)
	s.SetQuery("dog")
	clock.AdvanceTo(2 * time.Second)
	assert.Empty(t, searcher.Queries())
}

func TestSearchSession_RealClock(t *testing.T) {
	searcher := newGatedSearcher(false)
	done := make(chan SearchState, 8)
	s := NewSearchSession(searcher, WithDebounce(10*time.Millisecond), WithOnUpdate(func(st SearchState) {
		if !st.Searching && st.Results != nil {
			done <- st
		}
	}))
	defer s.Close()

	s.SetQuery("sunset")
	select {
	case st := <-done:
		assert.Equal(t, []string{"/p/sunset"}, resultPaths(st))
	case <-time.After(2 * time.Second):
		t.Fatal("search never completed")
	}
}
