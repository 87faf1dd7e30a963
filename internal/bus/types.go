// Package bus carries inbound webhook events from the ingest surface to the
// orchestrator. It is an in-process queue: the webhook handler acknowledges
// fast and the pipeline drains at its own pace.
package bus

// Source distinguishes where an event came from.
type Source string

const (
	SourceUser  Source = "user"  // end-user channel
	SourceStaff Source = "staff" // staff notification channel
)

// InboundEvent is one normalized message event off the webhook.
type InboundEvent struct {
	EventID    string `json:"event_id"` // channel-assigned, used for dedupe
	Source     Source `json:"source"`
	SenderID   string `json:"sender_id"` // user ID or staff actor ID
	Text       string `json:"text"`
	ReplyToken string `json:"reply_token,omitempty"` // single-use, may be empty
}

// Handler consumes one inbound event.
type Handler func(InboundEvent)
