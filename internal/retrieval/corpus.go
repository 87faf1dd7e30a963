package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Corpus is a sqlite-backed Q&A store with one embedding per entry. Search is
// a linear scan over dot products; corpora here are thousands of rows, not
// millions, so an index structure would be overhead without payoff.
type Corpus struct {
	db       *sql.DB
	embedder Embedder
	limit    int
}

// Entry is one Q&A row as stored.
type Entry struct {
	ID        int64
	Question  string
	Answer    string
	Category  string
	Keywords  []string
	Embedding []float64
}

const defaultSearchLimit = 5

// OpenCorpus opens (creating if needed) the corpus database at dbPath.
func OpenCorpus(dbPath string, embedder Embedder, limit int) (*Corpus, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("retrieval: ensure dir: %w", err)
	}
	dsn := dbPath + "?_journal=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("retrieval: open corpus: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("retrieval: ping corpus: %w", err)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	c := &Corpus{db: db, embedder: embedder, limit: limit}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Corpus) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS qa_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '',
		embedding_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := c.db.Exec(query); err != nil {
		return fmt.Errorf("retrieval: create schema: %w", err)
	}
	return nil
}

// Add inserts a Q&A entry, embedding the question text.
func (c *Corpus) Add(ctx context.Context, question, answer, category string, keywords []string) error {
	vec, err := c.embedder.Embed(ctx, question)
	if err != nil {
		return fmt.Errorf("retrieval: embed %q: %w", question, err)
	}
	embJSON, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("retrieval: encode embedding: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO qa_entries (question, answer, category, keywords, embedding_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		question, answer, category, strings.Join(keywords, ","), string(embJSON), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("retrieval: insert entry: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (c *Corpus) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM qa_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("retrieval: count entries: %w", err)
	}
	return n, nil
}

// Search embeds the query and returns the top entries by dot product,
// descending. Rows with a malformed or dimension-mismatched embedding are
// skipped with a warning rather than failing the whole search.
func (c *Corpus) Search(ctx context.Context, query string) ([]Result, error) {
	qvec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, question, answer, category, keywords, embedding_json FROM qa_entries`)
	if err != nil {
		return nil, fmt.Errorf("retrieval: scan corpus: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			id       int64
			question, answer, category, keywords, embJSON string
		)
		if err := rows.Scan(&id, &question, &answer, &category, &keywords, &embJSON); err != nil {
			return nil, fmt.Errorf("retrieval: scan row: %w", err)
		}
		var vec []float64
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil || len(vec) != len(qvec) {
			slog.Warn("retrieval: skipping entry with bad embedding", "id", id, "error", err)
			continue
		}
		results = append(results, Result{
			Score:    dot(qvec, vec),
			Question: question,
			Answer:   answer,
			Category: category,
			Keywords: splitKeywords(keywords),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retrieval: iterate corpus: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > c.limit {
		results = results[:c.limit]
	}
	return results, nil
}

// Close closes the underlying database.
func (c *Corpus) Close() error {
	return c.db.Close()
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
