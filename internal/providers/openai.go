package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/deskbot/internal/answer"
	"github.com/nextlevelbuilder/deskbot/internal/retrieval"
)

// Client talks to an OpenAI-compatible API for both chat completions and
// embeddings (OpenAI, Groq, OpenRouter, DeepSeek, VLLM, etc.).
type Client struct {
	apiKey     string
	apiBase    string
	chatModel  string
	embedModel string
	client     *http.Client
}

// Config selects the backend. APIBase defaults to the OpenAI endpoint.
type Config struct {
	APIKey     string
	APIBase    string
	ChatModel  string
	EmbedModel string
	Timeout    time.Duration
}

func NewClient(cfg Config) *Client {
	base := cfg.APIBase
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		apiBase:    strings.TrimRight(base, "/"),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		client:     &http.Client{Timeout: timeout},
	}
}

const systemPrompt = `You are a support assistant. Answer using only the reference Q&A entries provided.
Be concise and concrete. If the references do not cover the question, reply exactly with:
` + answer.NoConfidentAnswer

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate builds a minimal prompt from the retrieved candidates plus recent
// history and asks the chat model for an answer.
func (c *Client) Generate(ctx context.Context, query string, history []Message, refs []retrieval.Result) (string, error) {
	msgs := make([]chatMessage, 0, len(history)+3)
	msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	if ref := referenceBlock(refs); ref != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: ref})
	}
	for _, h := range history {
		msgs = append(msgs, chatMessage{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: query})

	var resp chatResponse
	err := c.post(ctx, "/chat/completions", chatRequest{
		Model:       c.chatModel,
		Messages:    msgs,
		Temperature: 0.2,
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("providers: empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp embedResponse
	err := c.post(ctx, "/embeddings", embedRequest{Model: c.embedModel, Input: text}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("providers: empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("providers: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("providers: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("providers: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("providers: %s returned %d: %s", path, resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("providers: decode response: %w", err)
	}
	return nil
}

func referenceBlock(results []retrieval.Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Reference Q&A entries:")
	for i, r := range results {
		fmt.Fprintf(&b, "\n\n[%d] Q: %s\nA: %s", i+1, r.Question, r.Answer)
	}
	return b.String()
}
