// Package orchestrator wires the inbound event flow: dedupe, handoff checks,
// debounced coalescing, retrieval, the answer decision, and outbound delivery.
// Every event is handled best-effort; a failure in one event never takes the
// consumer loop down.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/deskbot/internal/answer"
	"github.com/nextlevelbuilder/deskbot/internal/bus"
	"github.com/nextlevelbuilder/deskbot/internal/coalesce"
	"github.com/nextlevelbuilder/deskbot/internal/delivery"
	"github.com/nextlevelbuilder/deskbot/internal/flagstore"
	"github.com/nextlevelbuilder/deskbot/internal/handoff"
	"github.com/nextlevelbuilder/deskbot/internal/providers"
	"github.com/nextlevelbuilder/deskbot/internal/relay"
	"github.com/nextlevelbuilder/deskbot/internal/retrieval"
	"github.com/nextlevelbuilder/deskbot/internal/sessions"
)

// Options tune the answer policy and delivery limits.
type Options struct {
	SimThreshold  float64
	Margin        float64
	MaxReplyRunes int
	StaffGroupID  string
	CallTimeout   time.Duration // per external call (search, generate, send)
}

func (o Options) withDefaults() Options {
	if o.SimThreshold <= 0 {
		o.SimThreshold = 0.85
	}
	if o.Margin <= 0 {
		o.Margin = 0.10
	}
	if o.MaxReplyRunes <= 0 {
		o.MaxReplyRunes = delivery.MaxMessageRunes
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	return o
}

// Orchestrator owns the pipeline between the bus and the delivery channel.
type Orchestrator struct {
	optsMu    sync.RWMutex
	opts      Options
	deduper   *bus.Deduper
	machine   *handoff.Machine
	history   *sessions.History
	searcher  retrieval.Searcher
	generator providers.Generator
	replier   delivery.Replier
	names     delivery.NameResolver
	binder    *relay.Binder
	debouncer *coalesce.Debouncer
}

func New(opts Options, machine *handoff.Machine, history *sessions.History,
	searcher retrieval.Searcher, generator providers.Generator,
	replier delivery.Replier, names delivery.NameResolver,
	binder *relay.Binder, deduper *bus.Deduper, coalesceOpts coalesce.Options,
) *Orchestrator {
	o := &Orchestrator{
		opts:      opts.withDefaults(),
		deduper:   deduper,
		machine:   machine,
		history:   history,
		searcher:  searcher,
		generator: generator,
		replier:   replier,
		names:     names,
		binder:    binder,
	}
	o.debouncer = coalesce.New(coalesceOpts, o.flushTurn)
	return o
}

// Stop cancels pending debounce timers.
func (o *Orchestrator) Stop() {
	o.debouncer.Stop()
}

// SetPolicy swaps the decision thresholds at runtime, used on config reload.
func (o *Orchestrator) SetPolicy(simThreshold, margin float64) {
	o.optsMu.Lock()
	defer o.optsMu.Unlock()
	if simThreshold > 0 {
		o.opts.SimThreshold = simThreshold
	}
	if margin > 0 {
		o.opts.Margin = margin
	}
	slog.Info("orchestrator: policy updated", "sim_threshold", o.opts.SimThreshold, "margin", o.opts.Margin)
}

func (o *Orchestrator) policy() (simThreshold, margin float64) {
	o.optsMu.RLock()
	defer o.optsMu.RUnlock()
	return o.opts.SimThreshold, o.opts.Margin
}

// HandleEvent is the bus consumer entry point.
func (o *Orchestrator) HandleEvent(ev bus.InboundEvent) {
	if o.deduper.Seen(ev.EventID) {
		slog.Debug("orchestrator: duplicate event dropped", "event_id", ev.EventID)
		return
	}
	switch ev.Source {
	case bus.SourceStaff:
		o.handleStaffEvent(ev)
	default:
		o.handleUserEvent(ev)
	}
}

func (o *Orchestrator) handleUserEvent(ev bus.InboundEvent) {
	if strings.TrimSpace(ev.Text) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.CallTimeout)
	defer cancel()

	dec, err := o.machine.HandleInbound(ctx, ev.SenderID, ev.Text)
	if err != nil {
		slog.Error("orchestrator: handoff check failed", "user", ev.SenderID, "error", err)
		return
	}

	switch dec.Kind {
	case handoff.Pass:
		o.debouncer.Enqueue(ev.SenderID, ev.Text, ev.ReplyToken)
	case handoff.JustSuspended, handoff.JustReleased, handoff.Suspended:
		// Suspended-path messages bypass the debouncer entirely: they are
		// recorded and relayed one-to-one, never merged or answered.
		o.history.Append(ev.SenderID, sessions.RoleUser, ev.Text)
		if dec.Ack != "" {
			o.sendToUser(ctx, ev.SenderID, ev.ReplyToken, []string{dec.Ack})
		}
		if dec.StaffNote != "" {
			o.notifyStaff(ctx, dec.StaffNote)
		}
	}
}

// flushTurn runs when a user's debounce window closes.
func (o *Orchestrator) flushTurn(turn coalesce.Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.CallTimeout)
	defer cancel()

	reply := o.answerFor(ctx, turn.UserID, turn.Text)
	texts := answer.Split(reply, o.opts.MaxReplyRunes)
	o.sendToUser(ctx, turn.UserID, turn.ReplyToken, texts)

	o.history.Append(turn.UserID, sessions.RoleUser, turn.Text)
	o.history.Append(turn.UserID, sessions.RoleBot, reply)
}

// answerFor produces the reply text for one merged turn.
func (o *Orchestrator) answerFor(ctx context.Context, userID, text string) string {
	results, err := o.searcher.Search(ctx, text)
	if err != nil {
		slog.Error("orchestrator: search failed", "user", userID, "error", err)
		return answer.EnsureHandoffInvitation(answer.FallbackReply(nil))
	}

	simThreshold, margin := o.policy()
	mode := answer.Decide(results, simThreshold, margin)
	slog.Debug("orchestrator: decision", "user", userID, "mode", mode.String(), "hits", len(results))

	var reply string
	if mode == answer.ModeDirect {
		reply = results[0].Answer
	} else {
		reply, err = o.generator.Generate(ctx, text, o.historyMessages(userID), results)
		if err != nil {
			slog.Warn("orchestrator: generation failed, using fallback", "user", userID, "error", err)
			reply = answer.FallbackReply(results)
		}
	}
	return answer.EnsureHandoffInvitation(reply)
}

func (o *Orchestrator) historyMessages(userID string) []providers.Message {
	turns := o.history.Recent(userID, 6)
	msgs := make([]providers.Message, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == sessions.RoleBot {
			role = "assistant"
		}
		msgs = append(msgs, providers.Message{Role: role, Content: t.Text})
	}
	return msgs
}

// sendToUser tries the single-use reply token first, then falls back to a
// push. Tokens expire quickly; the debounce window alone can outlive one.
// Texts past the channel's per-request cap go out as follow-up pushes so a
// long answer never loses its tail.
func (o *Orchestrator) sendToUser(ctx context.Context, userID, token string, texts []string) {
	if len(texts) == 0 {
		return
	}
	head := texts
	var rest []string
	if len(texts) > delivery.MaxMessagesPerRequest {
		head, rest = texts[:delivery.MaxMessagesPerRequest], texts[delivery.MaxMessagesPerRequest:]
	}

	sent := false
	if token != "" {
		if err := o.replier.ReplyOnce(ctx, token, head); err != nil {
			slog.Warn("orchestrator: reply token failed, pushing instead", "user", userID, "error", err)
		} else {
			sent = true
		}
	}
	if !sent {
		if err := o.replier.PushTo(ctx, userID, head); err != nil {
			slog.Error("orchestrator: push failed", "user", userID, "error", err)
			return
		}
	}

	for len(rest) > 0 {
		batch := rest
		if len(batch) > delivery.MaxMessagesPerRequest {
			batch = batch[:delivery.MaxMessagesPerRequest]
		}
		rest = rest[len(batch):]
		if err := o.replier.PushTo(ctx, userID, batch); err != nil {
			slog.Error("orchestrator: overflow push failed", "user", userID, "error", err)
			return
		}
	}
}

func (o *Orchestrator) notifyStaff(ctx context.Context, text string) {
	if o.opts.StaffGroupID == "" {
		slog.Warn("orchestrator: no staff group configured, dropping notification")
		return
	}
	if err := o.replier.PushTo(ctx, o.opts.StaffGroupID, []string{text}); err != nil {
		slog.Error("orchestrator: staff notification failed", "error", err)
	}
}

func (o *Orchestrator) handleStaffEvent(ev bus.InboundEvent) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.CallTimeout)
	defer cancel()

	// An armed binding claims the next staff message outright, commands
	// included; staff cancel with /cancel before the message if needed.
	if !strings.HasPrefix(text, "/cancel") {
		name, err := o.binder.Consume(ctx, ev.SenderID, text)
		switch {
		case err == nil:
			o.notifyStaff(ctx, fmt.Sprintf("Sent to %s.", name))
			return
		case !errors.Is(err, relay.ErrNoBinding):
			o.notifyStaff(ctx, fmt.Sprintf("Could not deliver to %s: message not sent. Use /reply to try again.", name))
			return
		}
	}

	o.handleStaffCommand(ctx, ev.SenderID, text)
}

func (o *Orchestrator) handleStaffCommand(ctx context.Context, staffID, text string) {
	fields := strings.Fields(text)
	cmd := fields[0]

	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch cmd {
	case "/reply":
		if arg == "" {
			o.notifyStaff(ctx, "Usage: /reply <user-id>")
			return
		}
		name := arg
		if n, err := o.names.DisplayName(ctx, arg); err == nil && n != "" {
			name = n
		}
		o.binder.Begin(staffID, arg, name)
		o.notifyStaff(ctx, fmt.Sprintf("Next message goes to %s. Expires in %s; /cancel to abort.", name, o.binder.TTL()))
	case "/cancel":
		o.binder.Cancel(staffID)
		o.notifyStaff(ctx, "Reply binding cancelled.")
	case "/suspend":
		if arg == "" {
			o.notifyStaff(ctx, "Usage: /suspend <user-id>")
			return
		}
		if err := o.machine.Suspend(arg, "staff", flagstore.ReasonStaffAction); err != nil {
			o.notifyStaff(ctx, fmt.Sprintf("Suspend failed: %v", err))
			return
		}
		o.notifyStaff(ctx, fmt.Sprintf("Automation suspended for %s.", arg))
	case "/release":
		if arg == "" {
			o.notifyStaff(ctx, "Usage: /release <user-id>")
			return
		}
		if err := o.machine.Release(arg, "staff", flagstore.ReasonStaffAction); err != nil {
			o.notifyStaff(ctx, fmt.Sprintf("Release failed: %v", err))
			return
		}
		o.notifyStaff(ctx, fmt.Sprintf("Automation restored for %s.", arg))
	default:
		slog.Debug("orchestrator: ignoring staff message without binding", "staff", staffID)
	}
}
