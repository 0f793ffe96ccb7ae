// Package lockout tracks consecutive failed login attempts per username.
// The map is process-local and memory-resident on purpose: a restart clears
// all counters, which is documented operator-facing behavior.  Promoting it
// to a shared store only becomes necessary in a multi-process deployment.
package lockout

import "sync"

// Tracker counts failed attempts and hands out per-username critical
// sections so the login sequence (check counter, maybe lock, verify
// password, bump counter) appears atomic for a given username.
type Tracker struct {
	mu       sync.Mutex
	attempts map[string]int
	gates    map[string]*sync.Mutex
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{
		attempts: make(map[string]int),
		gates:    make(map[string]*sync.Mutex),
	}
}

// Guard acquires the critical section for username and returns the release
// function.  Gates are created lazily and never evicted; the per-user
// footprint is one mutex.
func (t *Tracker) Guard(username string) func() {
	t.mu.Lock()
	g, ok := t.gates[username]
	if !ok {
		g = &sync.Mutex{}
		t.gates[username] = g
	}
	t.mu.Unlock()

	g.Lock()
	return g.Unlock
}

// Attempts returns the current consecutive-failure count for username.
func (t *Tracker) Attempts(username string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[username]
}

// Increment bumps the failure count and returns the new value.
func (t *Tracker) Increment(username string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[username]++
	return t.attempts[username]
}

// Reset deletes the counter entry for username.
func (t *Tracker) Reset(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, username)
}
