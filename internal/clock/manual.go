package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual only moves when told to. Timers created through After or Sleep
// fire, in deadline order, once Advance or Set reaches them.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

type waiter struct {
	due time.Time
	ch  chan time.Time
}

// NewManual returns a Manual clock reading start (converted to UTC).
func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if d <= 0 {
		ch <- m.now
		return ch
	}
	m.waiters = append(m.waiters, waiter{due: m.now.Add(d), ch: ch})
	sort.SliceStable(m.waiters, func(i, j int) bool { return m.waiters[i].due.Before(m.waiters[j].due) })
	return ch
}

func (m *Manual) Sleep(d time.Duration) { <-m.After(d) }

// Advance moves the clock forward by d. Negative durations are ignored.
func (m *Manual) Advance(d time.Duration) time.Time {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moveLocked(m.now.Add(d))
}

// Set jumps to t. Moving backwards is allowed and fires nothing.
func (m *Manual) Set(t time.Time) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moveLocked(t.UTC())
}

func (m *Manual) moveLocked(to time.Time) time.Time {
	m.now = to
	fired := 0
	for _, w := range m.waiters {
		if w.due.After(to) {
			break
		}
		w.ch <- to
		fired++
	}
	m.waiters = append(m.waiters[:0], m.waiters[fired:]...)
	return to
}

// Pending returns the number of timers still waiting.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}
