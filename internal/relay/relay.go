// Package relay lets a staff member answer one specific end user from the
// staff channel. A binding is armed per staff member, holds for a fixed
// window, and is consumed by the next staff message.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/deskbot/internal/ttlstore"
)

// ErrNoBinding is returned by Consume when the staff member has no live
// binding, either because none was armed or because it expired.
var ErrNoBinding = errors.New("relay: no active binding")

// DefaultTTL is how long an armed binding waits for the staff reply.
const DefaultTTL = 10 * time.Minute

// Pusher delivers messages to a user without a reply token.
type Pusher interface {
	PushTo(ctx context.Context, userID string, texts []string) error
}

type binding struct {
	UserID string
	Name   string
}

// Binder holds at most one pending reply target per staff member.
type Binder struct {
	store  *ttlstore.Store[binding]
	pusher Pusher
	ttl    time.Duration
}

// TTL returns how long an armed binding lives.
func (b *Binder) TTL() time.Duration { return b.ttl }

// NewBinder creates a Binder with the given binding TTL (DefaultTTL when <= 0).
func NewBinder(pusher Pusher, ttl time.Duration) *Binder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Binder{
		store:  ttlstore.New[binding](ttl, time.Minute),
		pusher: pusher,
		ttl:    ttl,
	}
}

// Begin arms a binding from staffID to targetUserID. An existing binding for
// the same staff member is overwritten and its clock restarts.
func (b *Binder) Begin(staffID, targetUserID, targetName string) {
	b.store.Set(staffID, binding{UserID: targetUserID, Name: targetName})
	slog.Info("relay: binding armed", "staff", staffID, "target", targetUserID)
}

// Target returns the pending target for staffID, if any.
func (b *Binder) Target(staffID string) (userID, name string, ok bool) {
	bd, ok := b.store.Get(staffID)
	if !ok {
		return "", "", false
	}
	return bd.UserID, bd.Name, true
}

// Cancel drops the pending binding for staffID, if any.
func (b *Binder) Cancel(staffID string) {
	b.store.Delete(staffID)
}

// Consume delivers text to the bound user and reports who received it. The
// binding is deleted before delivery is attempted: a failed send does not
// leave a live binding behind, so a retyped message needs a fresh Begin.
func (b *Binder) Consume(ctx context.Context, staffID, text string) (targetName string, err error) {
	bd, ok := b.store.Get(staffID)
	if !ok {
		return "", ErrNoBinding
	}
	b.store.Delete(staffID)

	name := bd.Name
	if name == "" {
		name = bd.UserID
	}
	if err := b.pusher.PushTo(ctx, bd.UserID, []string{text}); err != nil {
		slog.Warn("relay: delivery failed", "staff", staffID, "target", bd.UserID, "error", err)
		return name, fmt.Errorf("relay: deliver to %s: %w", bd.UserID, err)
	}
	slog.Info("relay: delivered", "staff", staffID, "target", bd.UserID, "chars", len(text))
	return name, nil
}
