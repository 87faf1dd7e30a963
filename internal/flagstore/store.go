// Package flagstore persists the per-user handoff flag: whether the automated
// responder is suspended in favor of human staff. It is the only state shared
// across process instances, so every mutation runs as a locked
// read-modify-write against a single JSON record file with atomic replace.
package flagstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Reason records why a handoff flag last changed.
type Reason string

const (
	ReasonUserRequest    Reason = "user_request"
	ReasonStaffAction    Reason = "staff_action"
	ReasonReleaseCommand Reason = "release_command"
	ReasonTimeout        Reason = "timeout"
	ReasonAdmin          Reason = "admin"
)

// Record is the durable per-user handoff record. Records are created on first
// observed activity and never deleted.
type Record struct {
	Enabled     bool      `json:"enabled"` // true = automation suspended
	UpdatedAt   time.Time `json:"updated_at"`
	UpdatedBy   string    `json:"updated_by"` // "user:<id>", "staff", "system"
	Reason      Reason    `json:"reason,omitempty"`
	DisplayName string    `json:"display_name,omitempty"` // best-effort cache
}

// Patch is a partial update merged over the previous record. Nil fields leave
// the stored value untouched; DisplayName in particular survives toggles that
// do not re-resolve it.
type Patch struct {
	Enabled     *bool
	UpdatedBy   string
	Reason      Reason
	DisplayName string
}

// Store is the lock-coordinated on-disk handoff table.
// The in-process mutex serializes callers within one instance; the lock file
// serializes instances sharing the record file.
type Store struct {
	path string
	lock fileLock
	mu   sync.Mutex
}

// New creates a Store backed by the given JSON file. The parent directory is
// created eagerly; the file itself appears on first write.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("flagstore: ensure dir: %w", err)
	}
	return &Store{path: path, lock: fileLock{path: path + ".lock"}}, nil
}

// Read returns the stored record for userID, or ok=false when none exists.
func (s *Store) Read(userID string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.load()
	rec, ok := table[userID]
	return rec, ok, nil
}

// Write merges patch over the previous record for userID and persists the
// table atomically, holding the inter-process lock for the read-modify-write.
func (s *Store) Write(userID string, patch Patch) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.acquire(); err != nil {
		return Record{}, fmt.Errorf("flagstore: write %s: %w", userID, err)
	}
	defer s.lock.release()

	table := s.load()
	rec := table[userID]
	if patch.Enabled != nil {
		rec.Enabled = *patch.Enabled
	}
	if patch.UpdatedBy != "" {
		rec.UpdatedBy = patch.UpdatedBy
	}
	if patch.Reason != "" {
		rec.Reason = patch.Reason
	}
	if patch.DisplayName != "" {
		rec.DisplayName = patch.DisplayName
	}
	rec.UpdatedAt = time.Now().UTC()
	table[userID] = rec

	if err := s.save(table); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListEnabled returns the user IDs whose automation is currently suspended,
// sorted for stable output. This is a snapshot read and takes no file lock.
func (s *Store) ListEnabled() []string { return s.list(true) }

// ListDisabled returns the user IDs whose automation is active.
func (s *Store) ListDisabled() []string { return s.list(false) }

func (s *Store) list(enabled bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.load()
	ids := make([]string, 0, len(table))
	for id, rec := range table {
		if rec.Enabled == enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// load reads the record file. A missing, corrupt, or unreadable file degrades
// to an empty table with a warning; the store never refuses to operate.
func (s *Store) load() map[string]Record {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("flagstore: read failed, starting from empty table", "path", s.path, "error", err)
		}
		return map[string]Record{}
	}
	var table map[string]Record
	if err := json.Unmarshal(data, &table); err != nil {
		slog.Warn("flagstore: corrupt record file, starting from empty table", "path", s.path, "error", err)
		return map[string]Record{}
	}
	if table == nil {
		table = map[string]Record{}
	}
	return table
}

// save writes the table via temp-file-then-rename so readers never observe a
// partial file.
func (s *Store) save(table map[string]Record) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("flagstore: encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("flagstore: write temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("flagstore: replace %s: %w", s.path, err)
	}
	return nil
}
