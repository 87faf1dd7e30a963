package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MaxMessageRunes is the per-message text limit the channel enforces. Callers
// split before handing texts to the client.
const MaxMessageRunes = 5000

// MaxMessagesPerRequest is the channel's cap on messages in one reply or
// push. Callers with more texts than this send the overflow in follow-up
// pushes.
const MaxMessagesPerRequest = 5

// LineClient implements Replier and NameResolver over a LINE-style bot API.
type LineClient struct {
	apiBase string
	token   string
	client  *http.Client
}

func NewLineClient(apiBase, channelToken string, timeout time.Duration) *LineClient {
	if apiBase == "" {
		apiBase = "https://api.line.me"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LineClient{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   channelToken,
		client:  &http.Client{Timeout: timeout},
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReplyOnce sends texts against the single-use token.
func (c *LineClient) ReplyOnce(ctx context.Context, token string, texts []string) error {
	if token == "" {
		return fmt.Errorf("delivery: empty reply token")
	}
	body := struct {
		ReplyToken string        `json:"replyToken"`
		Messages   []textMessage `json:"messages"`
	}{ReplyToken: token, Messages: toMessages(texts)}
	return c.post(ctx, "/v2/bot/message/reply", body)
}

// PushTo sends texts directly to userID.
func (c *LineClient) PushTo(ctx context.Context, userID string, texts []string) error {
	body := struct {
		To       string        `json:"to"`
		Messages []textMessage `json:"messages"`
	}{To: userID, Messages: toMessages(texts)}
	return c.post(ctx, "/v2/bot/message/push", body)
}

// DisplayName fetches the user's profile name.
func (c *LineClient) DisplayName(ctx context.Context, userID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.apiBase+"/v2/bot/profile/"+url.PathEscape(userID), nil)
	if err != nil {
		return "", fmt.Errorf("delivery: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("delivery: profile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("delivery: profile returned %d", resp.StatusCode)
	}
	var profile struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("delivery: decode profile: %w", err)
	}
	return profile.DisplayName, nil
}

func (c *LineClient) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("delivery: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("delivery: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("delivery: %s returned %d: %s", path, resp.StatusCode, string(respBody))
	}
	return nil
}

// toMessages wraps texts as channel messages, respecting the per-request cap.
// Callers are expected to batch before handing texts over; anything past the
// cap would be rejected by the channel, so it is dropped here with a warning.
func toMessages(texts []string) []textMessage {
	if len(texts) > MaxMessagesPerRequest {
		slog.Warn("delivery: dropping texts over the per-request cap", "dropped", len(texts)-MaxMessagesPerRequest)
		texts = texts[:MaxMessagesPerRequest]
	}
	msgs := make([]textMessage, 0, len(texts))
	for _, t := range texts {
		if t == "" {
			continue
		}
		msgs = append(msgs, textMessage{Type: "text", Text: t})
	}
	return msgs
}
