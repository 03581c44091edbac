package app

import (
	"sync"
	"time"

	"github.com/altamedica/signaling-server/internal/domain"
)

// Action names a guarded entry point.
type Action string

const (
	ActionConnect Action = "connect"
	ActionHealth  Action = "health"
	ActionConfig  Action = "webrtc-config"
)

// Guard is the single admission decision point in front of the coordinator.
// Connection attempts are throttled per source IP over a sliding window; a
// rejected request never reaches the session coordinator.
type Guard struct {
	mu      sync.Mutex
	history map[string][]time.Time
	limit   int
	window  time.Duration
}

func NewGuard(limit int, window time.Duration) *Guard {
	return &Guard{
		history: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
	}
}

// Allow decides whether the request may proceed. Role is empty before
// authentication; once known, only consultation roles may open channels.
func (g *Guard) Allow(ip string, role domain.Role, action Action) bool {
	switch action {
	case ActionConnect:
		if role != "" {
			if _, err := domain.ParseRole(string(role)); err != nil {
				return false
			}
		}
		return g.allowRate(ip)
	default:
		return true
	}
}

func (g *Guard) allowRate(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-g.window)

	attempts := g.history[ip]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= g.limit {
		g.history[ip] = fresh
		return false
	}

	fresh = append(fresh, now)
	g.history[ip] = fresh
	return true
}
