// Package delivery abstracts the outbound messaging channel: token-based
// replies, token-less pushes, and display-name lookup. The concrete client
// speaks a LINE-style messaging API.
package delivery

import "context"

// Replier sends messages back to users.
type Replier interface {
	// ReplyOnce sends texts against a single-use reply token. Tokens expire;
	// callers should fall back to PushTo on failure.
	ReplyOnce(ctx context.Context, token string, texts []string) error
	// PushTo sends texts to a user directly, no token needed.
	PushTo(ctx context.Context, userID string, texts []string) error
}

// NameResolver looks up a user's display name.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}
