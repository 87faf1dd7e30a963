// Package httpapi is the thin webhook ingest surface. It validates the shared
// token, rate-limits per sender, normalizes events, and hands them to the bus.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/deskbot/internal/bus"
)

// maxTrackedSenders caps the per-sender limiter map so rotating sender IDs
// cannot exhaust memory.
const maxTrackedSenders = 4096

// webhookEvent is the wire shape of one inbound event.
type webhookEvent struct {
	EventID    string `json:"event_id"`
	Source     string `json:"source"` // "user" (default) or "staff"
	SenderID   string `json:"sender_id"`
	Text       string `json:"text"`
	ReplyToken string `json:"reply_token"`
}

type webhookBody struct {
	Events []webhookEvent `json:"events"`
}

// Server exposes POST /webhook and GET /healthz.
type Server struct {
	bus      *bus.Bus
	token    string
	rpm      int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewServer(b *bus.Bus, webhookToken string, rateLimitRPM int) *Server {
	if rateLimitRPM <= 0 {
		rateLimitRPM = 60
	}
	return &Server{
		bus:      b,
		token:    webhookToken,
		rpm:      rateLimitRPM,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Handler returns the HTTP mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// ListenAndServe runs the server until it fails.
func (s *Server) ListenAndServe(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("httpapi: listening", "addr", addr)
	return srv.ListenAndServe()
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.token != "" && r.Header.Get("X-Webhook-Token") != s.token {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var body webhookBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	accepted := 0
	for _, ev := range body.Events {
		if ev.SenderID == "" {
			continue
		}
		if !s.allow(ev.SenderID) {
			slog.Warn("httpapi: rate limited", "sender", ev.SenderID)
			continue
		}
		source := bus.SourceUser
		if ev.Source == string(bus.SourceStaff) {
			source = bus.SourceStaff
		}
		// Channels that omit event IDs get a synthetic one; it never matches
		// another event, so such events are simply never deduplicated.
		if ev.EventID == "" {
			ev.EventID = uuid.NewString()
		}
		s.bus.Publish(bus.InboundEvent{
			EventID:    ev.EventID,
			Source:     source,
			SenderID:   ev.SenderID,
			Text:       ev.Text,
			ReplyToken: ev.ReplyToken,
		})
		accepted++
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"accepted": accepted})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// allow checks the per-sender rate limit.
func (s *Server) allow(senderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	lim, ok := s.limiters[senderID]
	if !ok {
		if len(s.limiters) >= maxTrackedSenders {
			for k := range s.limiters {
				delete(s.limiters, k)
				break
			}
		}
		lim = rate.NewLimiter(rate.Limit(float64(s.rpm)/60.0), s.rpm)
		s.limiters[senderID] = lim
	}
	return lim.Allow()
}
