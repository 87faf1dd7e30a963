package sessions

import (
	"fmt"
	"testing"
	"time"
)

func TestHistory_AppendAndRecent(t *testing.T) {
	h := NewHistory(time.Minute, 10)
	h.Append("u", RoleUser, "hello")
	h.Append("u", RoleBot, "hi there")
	h.Append("u", RoleUser, "ok")

	turns := h.Recent("u", 2)
	if len(turns) != 2 {
		t.Fatalf("Recent(2) len = %d, want 2", len(turns))
	}
	if turns[0].Text != "hi there" || turns[1].Text != "ok" {
		t.Errorf("Recent order wrong: %q, %q", turns[0].Text, turns[1].Text)
	}

	if got := h.Recent("u", 0); len(got) != 3 {
		t.Errorf("Recent(0) len = %d, want 3", len(got))
	}
	if got := h.Recent("stranger", 5); got != nil {
		t.Errorf("Recent for unknown user = %v, want nil", got)
	}
}

func TestHistory_CapEvictsOldest(t *testing.T) {
	h := NewHistory(time.Minute, 3)
	for i := 0; i < 5; i++ {
		h.Append("u", RoleUser, fmt.Sprintf("m%d", i))
	}

	turns := h.Recent("u", 0)
	if len(turns) != 3 {
		t.Fatalf("len = %d, want 3", len(turns))
	}
	if turns[0].Text != "m2" || turns[2].Text != "m4" {
		t.Errorf("expected m2..m4, got %q..%q", turns[0].Text, turns[2].Text)
	}
}

func TestHistory_RecentUserSkipsBotTurns(t *testing.T) {
	h := NewHistory(time.Minute, 10)
	h.Append("u", RoleUser, "q1")
	h.Append("u", RoleBot, "a1")
	h.Append("u", RoleUser, "q2")
	h.Append("u", RoleBot, "a2")
	h.Append("u", RoleUser, "q3")

	users := h.RecentUser("u", 2)
	if len(users) != 2 {
		t.Fatalf("len = %d, want 2", len(users))
	}
	if users[0].Text != "q2" || users[1].Text != "q3" {
		t.Errorf("RecentUser = %q, %q; want q2, q3", users[0].Text, users[1].Text)
	}
}

func TestHistory_EntryExpires(t *testing.T) {
	h := NewHistory(40*time.Millisecond, 10)
	h.Append("u", RoleUser, "hello")

	time.Sleep(100 * time.Millisecond)
	if got := h.Recent("u", 0); got != nil {
		t.Errorf("history should expire as a whole, got %v", got)
	}
}
