// Package coalesce merges bursts of near-simultaneous inbound messages from
// one user into a single logical turn before the answer pipeline runs. A user
// typing across several chat bubbles produces one query, one retrieval pass,
// and one generated reply instead of several.
package coalesce

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Turn is the merged output handed to the flush callback: all buffered
// fragments newline-joined, plus the most recent reply token seen for the
// burst. Tokens from superseded fragments are discarded because only the
// latest one is still valid for a reply.
type Turn struct {
	UserID     string
	Text       string
	ReplyToken string
}

// FlushFunc receives one merged turn per user per quiet period. It may block;
// flushes for different users run concurrently, flushes for the same user
// never overlap.
type FlushFunc func(Turn)

// Options bound the per-user buffer.
type Options struct {
	Window       time.Duration // quiet period before a flush (default 500ms)
	MaxFragments int           // max buffered fragments per user (default 10)
	MaxChars     int           // max combined fragment length (default 2000)
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = 500 * time.Millisecond
	}
	if o.MaxFragments <= 0 {
		o.MaxFragments = 10
	}
	if o.MaxChars <= 0 {
		o.MaxChars = 2000
	}
	return o
}

type buffer struct {
	fragments  []string
	replyToken string
	timer      *time.Timer
	deadline   time.Time
}

// Debouncer accumulates fragments per user and flushes after a quiet period.
//
// Invariants:
//   - at most one scheduled flush timer per user: a new fragment cancels and
//     reschedules the pending timer, it never creates a second one. A timer
//     that already fired when it was cancelled flushes nothing: fire checks
//     the buffer's deadline and backs off while it is still in the future;
//   - at most one flush executes per user at a time: a timer firing while a
//     flush is still running is a no-op, the surviving buffer gets a fresh
//     timer from the next enqueue.
type Debouncer struct {
	opts    Options
	flush   FlushFunc
	mu      sync.Mutex
	buffers map[string]*buffer
	inFly   map[string]bool
	stopped bool
}

func New(opts Options, flush FlushFunc) *Debouncer {
	return &Debouncer{
		opts:    opts.withDefaults(),
		flush:   flush,
		buffers: make(map[string]*buffer),
		inFly:   make(map[string]bool),
	}
}

// Enqueue buffers a fragment for userID and (re)arms the user's flush timer.
// The stored reply token is replaced with the latest one.
func (d *Debouncer) Enqueue(userID, fragment, replyToken string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	b, ok := d.buffers[userID]
	if !ok {
		b = &buffer{}
		d.buffers[userID] = b
	}
	b.fragments = append(b.fragments, fragment)
	b.fragments = trimFragments(b.fragments, d.opts.MaxFragments, d.opts.MaxChars)
	if replyToken != "" {
		b.replyToken = replyToken
	}

	if b.timer != nil {
		b.timer.Stop()
	}
	b.deadline = time.Now().Add(d.opts.Window)
	b.timer = time.AfterFunc(d.opts.Window, func() { d.fire(userID) })
}

// Pending reports whether a buffer is currently waiting to flush for userID.
func (d *Debouncer) Pending(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.buffers[userID]
	return ok
}

// Stop cancels all pending timers without flushing. Buffered fragments are
// dropped; debounce state is instance-local and lost on shutdown by design.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for user, b := range d.buffers {
		if b.timer != nil {
			b.timer.Stop()
		}
		delete(d.buffers, user)
	}
}

// fire runs when a user's quiet period elapses. The buffer is removed before
// the callback so fragments arriving mid-flush start a fresh buffer instead of
// racing on the old one.
func (d *Debouncer) fire(userID string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	b, ok := d.buffers[userID]
	if !ok {
		d.mu.Unlock()
		return
	}
	if time.Now().Before(b.deadline) {
		// Stale firing: a fragment arrived just as the timer went off and
		// re-armed the window before this goroutine got the lock. The stored
		// deadline is authoritative; the timer armed for it owns the flush.
		d.mu.Unlock()
		return
	}
	if d.inFly[userID] {
		// A flush is already executing for this user. Keep the buffer and
		// re-arm its timer so the fragments flush once the current run ends.
		b.deadline = time.Now().Add(d.opts.Window)
		b.timer = time.AfterFunc(d.opts.Window, func() { d.fire(userID) })
		d.mu.Unlock()
		return
	}
	delete(d.buffers, userID)
	d.inFly[userID] = true
	turn := Turn{
		UserID:     userID,
		Text:       joinFragments(b.fragments, d.opts.MaxChars),
		ReplyToken: b.replyToken,
	}
	d.mu.Unlock()

	slog.Debug("coalesce: flushing turn", "user", userID, "fragments", len(b.fragments), "chars", len(turn.Text))
	d.flush(turn)

	d.mu.Lock()
	delete(d.inFly, userID)
	d.mu.Unlock()
}

// trimFragments drops oldest fragments until both the count cap and the
// combined character cap hold.
func trimFragments(fragments []string, maxCount, maxChars int) []string {
	if len(fragments) > maxCount {
		fragments = fragments[len(fragments)-maxCount:]
	}
	total := 0
	for _, f := range fragments {
		total += len([]rune(f))
	}
	for len(fragments) > 1 && total > maxChars {
		total -= len([]rune(fragments[0]))
		fragments = fragments[1:]
	}
	return fragments
}

// joinFragments newline-joins the fragments; if a single remaining fragment
// still exceeds the cap it is tail-truncated.
func joinFragments(fragments []string, maxChars int) string {
	joined := strings.TrimSpace(strings.Join(fragments, "\n"))
	runes := []rune(joined)
	if len(runes) > maxChars {
		runes = runes[:maxChars]
	}
	return string(runes)
}
