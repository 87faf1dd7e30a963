// Package sessions keeps per-user conversation history for the answer
// pipeline. History is ephemeral and instance-local by design: a restart
// drops it, and only the durable handoff flag survives across instances.
package sessions

import (
	"time"

	"github.com/nextlevelbuilder/deskbot/internal/ttlstore"
)

// Role distinguishes who produced a turn.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Turn is one normalized conversation turn. A coalesced burst of user
// messages is recorded as a single turn, not as its fragments.
type Turn struct {
	Role Role
	Text string
	At   time.Time
}

// History is the per-user bounded turn log. Each user's entry expires as a
// whole once the TTL elapses without a write; any write re-arms it. Oldest
// turns are evicted first once the cap is reached.
type History struct {
	store *ttlstore.List[Turn]
}

// NewHistory creates a History keeping at most maxTurns per user with the
// given idle TTL.
func NewHistory(ttl time.Duration, maxTurns int) *History {
	return &History{store: ttlstore.NewList[Turn](ttl, ttl/2, maxTurns)}
}

// Append records a turn for userID and resets the user's TTL.
func (h *History) Append(userID string, role Role, text string) {
	h.store.Push(userID, Turn{Role: role, Text: text, At: time.Now()})
}

// Recent returns up to n most recent turns for userID in chronological order.
// n <= 0 returns the full live history.
func (h *History) Recent(userID string, n int) []Turn {
	turns, ok := h.store.Get(userID)
	if !ok {
		return nil
	}
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns
}

// RecentUser returns up to n most recent user turns, oldest first. Used to
// give staff a little context when a conversation is handed off.
func (h *History) RecentUser(userID string, n int) []Turn {
	all, ok := h.store.Get(userID)
	if !ok {
		return nil
	}
	users := make([]Turn, 0, n)
	for i := len(all) - 1; i >= 0 && len(users) < n; i-- {
		if all[i].Role == RoleUser {
			users = append(users, all[i])
		}
	}
	// Reverse back to chronological order.
	for i, j := 0, len(users)-1; i < j; i, j = i+1, j-1 {
		users[i], users[j] = users[j], users[i]
	}
	return users
}

// Reset drops a user's history.
func (h *History) Reset(userID string) {
	h.store.Delete(userID)
}
