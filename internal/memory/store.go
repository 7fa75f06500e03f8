package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/config"
)

// ErrMemoryNotFound is returned when a lookup misses.
var ErrMemoryNotFound = errors.New("memory not found")

const schema = `
CREATE TABLE IF NOT EXISTS memories (
    memory_id      TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    memory_type    TEXT NOT NULL,
    key            TEXT NOT NULL,
    value          TEXT NOT NULL,
    priority       TEXT DEFAULT 'medium',
    source_session TEXT DEFAULT '',
    created_at     TIMESTAMP NOT NULL,
    updated_at     TIMESTAMP NOT NULL,
    access_count   INTEGER DEFAULT 0,
    is_active      BOOLEAN DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_user_memories ON memories(user_id, is_active);
CREATE INDEX IF NOT EXISTS idx_memory_type ON memories(user_id, memory_type);
CREATE INDEX IF NOT EXISTS idx_memory_priority ON memories(user_id, priority);
CREATE INDEX IF NOT EXISTS idx_memory_key ON memories(user_id, key);
`

// priorityRank sorts critical first in SQL.
const priorityRank = "CASE priority WHEN 'critical' THEN 1 WHEN 'high' THEN 2 WHEN 'medium' THEN 3 ELSE 4 END"

// Store persists user memories in SQLite.
type Store struct {
	db         *sqlx.DB
	logger     *zap.Logger
	maxContext int
}

// NewStore opens (creating if needed) the SQLite database at the
// configured path.
func NewStore(cfg config.MemoryConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(cfg.Database); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create memory dir: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite3", cfg.Database+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init memory schema: %w", err)
	}
	maxContext := cfg.MaxContext
	if maxContext <= 0 {
		maxContext = 10
	}
	logger.Info("memory store initialized", zap.String("database", cfg.Database))
	return &Store{db: db, logger: logger, maxContext: maxContext}, nil
}

// NewStoreWithDB wraps an existing connection. Used by tests.
func NewStoreWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger, maxContext: 10}
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts a new memory and returns it.
func (s *Store) Add(ctx context.Context, userID string, typ Type, key, value string, priority Priority, sourceSession string) (*Memory, error) {
	now := time.Now().UTC()
	id := uuid.New()
	m := &Memory{
		ID:            "mem_" + hex.EncodeToString(id[:])[:12],
		UserID:        userID,
		Type:          typ,
		Key:           key,
		Value:         value,
		Priority:      priority,
		SourceSession: sourceSession,
		CreatedAt:     now,
		UpdatedAt:     now,
		Active:        true,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories
		(memory_id, user_id, memory_type, key, value, priority, source_session,
		 created_at, updated_at, access_count, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, TRUE)`,
		m.ID, m.UserID, string(m.Type), m.Key, m.Value, string(m.Priority),
		m.SourceSession, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	s.logger.Info("added memory",
		zap.String("user_id", userID),
		zap.String("key", key),
		zap.String("type", string(typ)),
	)
	return m, nil
}

// Get fetches an active memory by id and bumps its access count.
func (s *Store) Get(ctx context.Context, memoryID string) (*Memory, error) {
	var m Memory
	err := s.db.GetContext(ctx, &m,
		"SELECT * FROM memories WHERE memory_id = ? AND is_active = TRUE", memoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE memories SET access_count = access_count + 1 WHERE memory_id = ?", memoryID)
	if err != nil {
		return nil, fmt.Errorf("bump access count: %w", err)
	}
	m.AccessCount++
	return &m, nil
}

// UpdateValue rewrites a memory's value and optionally its priority.
func (s *Store) UpdateValue(ctx context.Context, memoryID, value string, priority Priority) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE memories SET value = ?, priority = ?, updated_at = ? WHERE memory_id = ? AND is_active = TRUE",
		value, string(priority), time.Now().UTC(), memoryID)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMemoryNotFound
	}
	return nil
}

// Delete soft-deletes a memory.
func (s *Store) Delete(ctx context.Context, memoryID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE memories SET is_active = FALSE, updated_at = ? WHERE memory_id = ?",
		time.Now().UTC(), memoryID)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMemoryNotFound
	}
	return nil
}

// ListOptions filters ListForUser.
type ListOptions struct {
	Type     Type
	Priority Priority
	Limit    int
}

// ListForUser returns a user's active memories, critical priority first,
// then by access count.
func (s *Store) ListForUser(ctx context.Context, userID string, opts ListOptions) ([]Memory, error) {
	query := "SELECT * FROM memories WHERE user_id = ? AND is_active = TRUE"
	args := []interface{}{userID}
	if opts.Type != "" {
		query += " AND memory_type = ?"
		args = append(args, string(opts.Type))
	}
	if opts.Priority != "" {
		query += " AND priority = ?"
		args = append(args, string(opts.Priority))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY " + priorityRank + ", access_count DESC LIMIT ?"
	args = append(args, limit)

	var memories []Memory
	if err := s.db.SelectContext(ctx, &memories, query, args...); err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return memories, nil
}

// Search matches key or value text for a user.
func (s *Store) Search(ctx context.Context, userID, text string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + text + "%"
	var memories []Memory
	err := s.db.SelectContext(ctx, &memories, `
		SELECT * FROM memories
		WHERE user_id = ? AND is_active = TRUE AND (key LIKE ? OR value LIKE ?)
		ORDER BY access_count DESC LIMIT ?`,
		userID, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	return memories, nil
}

// ContextMemories picks the memories worth injecting ahead of a research
// run: critical and high priority first, then preferences and standing
// instructions, then anything keyword-related to the query.
func (s *Store) ContextMemories(ctx context.Context, userID, query string) ([]Memory, error) {
	var memories []Memory
	seen := make(map[string]bool)
	appendNew := func(batch []Memory) {
		for _, m := range batch {
			if !seen[m.ID] {
				seen[m.ID] = true
				memories = append(memories, m)
			}
		}
	}

	for _, p := range []Priority{PriorityCritical, PriorityHigh} {
		batch, err := s.ListForUser(ctx, userID, ListOptions{Priority: p, Limit: 5})
		if err != nil {
			return nil, err
		}
		appendNew(batch)
	}
	for _, t := range []Type{TypePreference, TypeInstruction} {
		batch, err := s.ListForUser(ctx, userID, ListOptions{Type: t, Limit: 5})
		if err != nil {
			return nil, err
		}
		appendNew(batch)
	}

	if query != "" {
		all, err := s.ListForUser(ctx, userID, ListOptions{Limit: 50})
		if err != nil {
			return nil, err
		}
		words := strings.Fields(strings.ToLower(query))
		for _, m := range all {
			if seen[m.ID] {
				continue
			}
			text := strings.ToLower(m.Key + " " + m.Value)
			for _, w := range words {
				if len(w) > 3 && strings.Contains(text, w) {
					seen[m.ID] = true
					memories = append(memories, m)
					break
				}
			}
		}
	}

	if len(memories) > s.maxContext {
		memories = memories[:s.maxContext]
	}
	return memories, nil
}

// BuildContextString renders the selected memories as a prompt block.
// Returns "" when the user has nothing worth injecting.
func (s *Store) BuildContextString(ctx context.Context, userID, query string) (string, error) {
	memories, err := s.ContextMemories(ctx, userID, query)
	if err != nil {
		return "", err
	}
	if len(memories) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("### User Context (from memory)")
	for i := range memories {
		b.WriteString("\n- ")
		b.WriteString(memories[i].ContextString())
	}
	return b.String(), nil
}

// Stats summarizes a user's active memories by type and priority.
type Stats struct {
	Total      int            `json:"total_memories"`
	ByType     map[string]int `json:"by_type"`
	ByPriority map[string]int `json:"by_priority"`
}

// StatsForUser reports memory counts for one user.
func (s *Store) StatsForUser(ctx context.Context, userID string) (*Stats, error) {
	stats := &Stats{ByType: make(map[string]int), ByPriority: make(map[string]int)}
	err := s.db.GetContext(ctx, &stats.Total,
		"SELECT COUNT(*) FROM memories WHERE user_id = ? AND is_active = TRUE", userID)
	if err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}

	type bucket struct {
		Key   string `db:"k"`
		Count int    `db:"c"`
	}
	var byType []bucket
	err = s.db.SelectContext(ctx, &byType, `
		SELECT memory_type AS k, COUNT(*) AS c FROM memories
		WHERE user_id = ? AND is_active = TRUE GROUP BY memory_type`, userID)
	if err != nil {
		return nil, fmt.Errorf("count by type: %w", err)
	}
	for _, b := range byType {
		stats.ByType[b.Key] = b.Count
	}

	var byPriority []bucket
	err = s.db.SelectContext(ctx, &byPriority, `
		SELECT priority AS k, COUNT(*) AS c FROM memories
		WHERE user_id = ? AND is_active = TRUE GROUP BY priority`, userID)
	if err != nil {
		return nil, fmt.Errorf("count by priority: %w", err)
	}
	for _, b := range byPriority {
		stats.ByPriority[b.Key] = b.Count
	}
	return stats, nil
}

// Fingerprint derives a stable id for external callers that want
// idempotent writes keyed on content.
func Fingerprint(userID, key, value string) string {
	sum := sha256.Sum256([]byte(userID + ":" + key + ":" + value))
	return "mem_" + hex.EncodeToString(sum[:])[:12]
}
