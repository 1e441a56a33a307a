package bot

import (
	"sync"
	"time"
)

// CommandCooldown is the per-user gap enforced between commands.
const CommandCooldown = 3 * time.Second

// CooldownGate rate-limits command handling per user. It remembers the
// last accepted command time and rejects anything inside the window.
type CooldownGate struct {
	mu   sync.Mutex
	last map[int64]time.Time
}

// NewCooldownGate creates an empty gate.
func NewCooldownGate() *CooldownGate {
	return &CooldownGate{last: make(map[int64]time.Time)}
}

// Allow reports whether the user may run a command at now, and if not,
// how long they still have to wait. An allowed call starts a new
// window; a rejected call does not extend it.
func (g *CooldownGate) Allow(userID int64, now time.Time) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.last[userID]; ok {
		if wait := CommandCooldown - now.Sub(last); wait > 0 {
			return false, wait
		}
	}
	g.last[userID] = now
	return true, 0
}
