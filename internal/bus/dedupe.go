package bus

import (
	"time"

	"github.com/nextlevelbuilder/deskbot/internal/ttlstore"
)

// Deduper drops webhook redeliveries by event ID within a sliding window.
type Deduper struct {
	seen *ttlstore.Store[struct{}]
}

func NewDeduper(window time.Duration) *Deduper {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Deduper{seen: ttlstore.New[struct{}](window, time.Minute)}
}

// Seen records eventID and reports whether it was already recorded. Events
// without an ID are never deduplicated.
func (d *Deduper) Seen(eventID string) bool {
	if eventID == "" {
		return false
	}
	if d.seen.Has(eventID) {
		return true
	}
	d.seen.Set(eventID, struct{}{})
	return false
}
