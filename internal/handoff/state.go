// Package handoff decides, per inbound event, whether the automated responder
// is suspended for a user, and drives the transitions between automated and
// human-staffed conversation. The flag itself lives in the durable flagstore
// so it is consistent across restarts and across handler instances.
package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/deskbot/internal/flagstore"
	"github.com/nextlevelbuilder/deskbot/internal/sessions"
)

// Kind classifies what the state machine decided for one inbound message.
type Kind int

const (
	// Pass: automation active and the message is not a trigger; the message
	// continues into the answer pipeline.
	Pass Kind = iota
	// Suspended: automation is off; the message was relayed to staff and must
	// not reach the answer pipeline.
	Suspended
	// JustSuspended: this message requested a human; automation is now off.
	JustSuspended
	// JustReleased: this message was a release command; automation is back on.
	JustReleased
)

// Decision carries the classification plus the texts the caller should
// deliver: Ack to the end user (empty = nothing to send) and StaffNote to the
// staff channel.
type Decision struct {
	Kind      Kind
	Ack       string
	StaffNote string
}

// NameResolver looks up a user's display name. Failures degrade to the raw
// identifier and never abort a transition.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Vocabulary holds the trigger word sets, matched case-insensitively against
// the trimmed message text.
type Vocabulary struct {
	Request []string // user asks for a human
	Release []string // user hands the conversation back to the bot
}

// DefaultVocabulary returns the built-in trigger sets.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Request: []string{"human", "operator", "agent please", "担当者"},
		Release: []string{"release", "resume", "resume bot", "bot on", "解除"},
	}
}

const (
	ackSuspended = "Got it — a member of our staff will take over from here. Reply \"resume\" at any time to switch back to the assistant."
	ackReleased  = "The assistant is back. How can I help?"
)

// Machine evaluates inbound user messages against the durable handoff flag.
type Machine struct {
	flags   *flagstore.Store
	history *sessions.History
	names   NameResolver
	vocab   Vocabulary
}

func NewMachine(flags *flagstore.Store, history *sessions.History, names NameResolver, vocab Vocabulary) *Machine {
	if len(vocab.Request) == 0 && len(vocab.Release) == 0 {
		vocab = DefaultVocabulary()
	}
	return &Machine{flags: flags, history: history, names: names, vocab: vocab}
}

// HandleInbound classifies one inbound user message and applies any state
// transition. The message itself has already been appended to history by the
// caller for Pass dispositions; for Suspended/JustSuspended dispositions the
// machine builds the staff note from history before this message was added,
// so callers append after calling.
func (m *Machine) HandleInbound(ctx context.Context, userID, text string) (Decision, error) {
	if userID == "" {
		return Decision{}, fmt.Errorf("handoff: missing user id")
	}

	rec, _, err := m.flags.Read(userID)
	if err != nil {
		return Decision{}, fmt.Errorf("handoff: read flag: %w", err)
	}

	if rec.Enabled {
		if matchWord(text, m.vocab.Release) {
			return m.release(userID, text)
		}
		// Any other message while suspended goes to staff with a little
		// context and is otherwise dropped from the automated pipeline.
		name := m.resolveName(ctx, userID, rec.DisplayName)
		return Decision{
			Kind:      Suspended,
			StaffNote: m.staffUpdate(userID, name, text),
		}, nil
	}

	if matchWord(text, m.vocab.Request) {
		return m.suspend(ctx, userID, text)
	}
	return Decision{Kind: Pass}, nil
}

// Suspend turns automation off for userID on behalf of staff or the system.
func (m *Machine) Suspend(userID, actor string, reason flagstore.Reason) error {
	enabled := true
	_, err := m.flags.Write(userID, flagstore.Patch{Enabled: &enabled, UpdatedBy: actor, Reason: reason})
	if err != nil {
		return err
	}
	slog.Info("handoff: suspended", "user", userID, "by", actor, "reason", reason)
	return nil
}

// Release turns automation back on for userID on behalf of staff or the system.
func (m *Machine) Release(userID, actor string, reason flagstore.Reason) error {
	enabled := false
	_, err := m.flags.Write(userID, flagstore.Patch{Enabled: &enabled, UpdatedBy: actor, Reason: reason})
	if err != nil {
		return err
	}
	slog.Info("handoff: released", "user", userID, "by", actor, "reason", reason)
	return nil
}

// ReleaseStale releases every suspension older than olderThan with the
// timeout reason and returns the affected user IDs. Used by the optional
// auto-release sweep so a forgotten handoff does not silence a user forever.
func (m *Machine) ReleaseStale(olderThan time.Duration) []string {
	var released []string
	cutoff := time.Now().Add(-olderThan)
	for _, userID := range m.flags.ListEnabled() {
		rec, ok, err := m.flags.Read(userID)
		if err != nil || !ok || rec.UpdatedAt.After(cutoff) {
			continue
		}
		if err := m.Release(userID, "system", flagstore.ReasonTimeout); err != nil {
			slog.Warn("handoff: stale release failed", "user", userID, "error", err)
			continue
		}
		released = append(released, userID)
	}
	return released
}

// IsSuspended reports the current durable flag for userID.
func (m *Machine) IsSuspended(userID string) bool {
	rec, _, err := m.flags.Read(userID)
	if err != nil {
		return false
	}
	return rec.Enabled
}

func (m *Machine) suspend(ctx context.Context, userID, text string) (Decision, error) {
	name := m.resolveName(ctx, userID, "")
	enabled := true
	_, err := m.flags.Write(userID, flagstore.Patch{
		Enabled:     &enabled,
		UpdatedBy:   "user:" + userID,
		Reason:      flagstore.ReasonUserRequest,
		DisplayName: name,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("handoff: suspend %s: %w", userID, err)
	}
	slog.Info("handoff: suspended by user request", "user", userID)

	var b strings.Builder
	fmt.Fprintf(&b, "[handoff] %s (%s) asked for a human.\n", name, userID)
	writeContext(&b, m.history.RecentUser(userID, 2))
	fmt.Fprintf(&b, "> %s", text)

	return Decision{
		Kind:      JustSuspended,
		Ack:       ackSuspended,
		StaffNote: b.String(),
	}, nil
}

func (m *Machine) release(userID, text string) (Decision, error) {
	enabled := false
	_, err := m.flags.Write(userID, flagstore.Patch{
		Enabled:   &enabled,
		UpdatedBy: "user:" + userID,
		Reason:    flagstore.ReasonReleaseCommand,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("handoff: release %s: %w", userID, err)
	}
	slog.Info("handoff: released by user command", "user", userID, "text", text)
	return Decision{
		Kind:      JustReleased,
		Ack:       ackReleased,
		StaffNote: fmt.Sprintf("[handoff] %s resumed the assistant.", userID),
	}, nil
}

func (m *Machine) staffUpdate(userID, name, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[suspended] %s (%s):\n", name, userID)
	writeContext(&b, m.history.RecentUser(userID, 2))
	fmt.Fprintf(&b, "> %s", text)
	return b.String()
}

// resolveName returns the cached name, a fresh lookup, or the raw ID, in that
// order of preference. Lookup failures are logged and never propagate.
func (m *Machine) resolveName(ctx context.Context, userID, cached string) string {
	if cached != "" {
		return cached
	}
	if m.names == nil {
		return userID
	}
	name, err := m.names.DisplayName(ctx, userID)
	if err != nil || name == "" {
		slog.Warn("handoff: display name lookup failed", "user", userID, "error", err)
		return userID
	}
	return name
}

func writeContext(b *strings.Builder, turns []sessions.Turn) {
	for _, turn := range turns {
		fmt.Fprintf(b, "  prior: %s\n", turn.Text)
	}
}

// matchWord reports whether the trimmed text equals any vocabulary entry,
// case-insensitively.
func matchWord(text string, words []string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	for _, w := range words {
		if trimmed == strings.ToLower(w) {
			return true
		}
	}
	return false
}
