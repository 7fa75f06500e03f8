package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/config"
)

// Manager handles session persistence with a Redis backend and a
// write-through local cache.
type Manager struct {
	client     *redis.Client
	logger     *zap.Logger
	ttl        time.Duration
	mu         sync.RWMutex
	localCache map[string]*Session
	maxCached  int
}

// NewManager connects to Redis and returns a session manager.
func NewManager(cfg config.SessionConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		client:     client,
		logger:     logger,
		ttl:        ttl,
		localCache: make(map[string]*Session),
		maxCached:  10000,
	}, nil
}

// NewManagerWithClient builds a manager around an existing client.
// Used by tests with miniredis.
func NewManagerWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client:     client,
		logger:     logger,
		ttl:        ttl,
		localCache: make(map[string]*Session),
		maxCached:  10000,
	}
}

// Create starts a new session.
func (m *Manager) Create(ctx context.Context, userID, mode string) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Mode:      mode,
		Status:    ResearchPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		History:   make([]Message, 0),
	}
	if err := m.save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[session.ID] = session
	m.evictIfFull()
	m.mu.Unlock()

	m.logger.Info("created session",
		zap.String("session_id", session.ID),
		zap.String("mode", mode),
	)
	return session, nil
}

// Get retrieves a session by id, from cache or Redis.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	cached, ok := m.localCache[sessionID]
	m.mu.RUnlock()
	if ok {
		if cached.IsExpired() {
			_ = m.Delete(ctx, sessionID)
			return nil, ErrSessionExpired
		}
		m.touch(ctx, cached)
		return cached, nil
	}

	data, err := m.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if session.IsExpired() {
		_ = m.Delete(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	m.touch(ctx, &session)
	m.mu.Lock()
	m.localCache[sessionID] = &session
	m.evictIfFull()
	m.mu.Unlock()
	return &session, nil
}

// touch slides the expiry window so an active conversation never
// expires mid-session. Best effort: a failed refresh leaves the
// previous TTL in place.
func (m *Manager) touch(ctx context.Context, session *Session) {
	session.ExpiresAt = time.Now().Add(m.ttl)
	if err := m.save(ctx, session); err != nil {
		m.logger.Debug("session ttl refresh failed",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}
}

// Update persists a modified session.
func (m *Manager) Update(ctx context.Context, session *Session) error {
	session.UpdatedAt = time.Now()
	if err := m.save(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.mu.Lock()
	m.localCache[session.ID] = session
	m.mu.Unlock()
	return nil
}

// AddMessage appends a turn to the session history and persists it.
func (m *Manager) AddMessage(ctx context.Context, sessionID, role, content string) error {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.History = append(session.History, Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	return m.Update(ctx, session)
}

// RecordResult stores the outcome of a completed research run.
func (m *Manager) RecordResult(ctx context.Context, sessionID, query, answer string, sourceURLs, suggestions []string, tokensUsed int) error {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Status = ResearchComplete
	session.LastQuery = query
	session.LastAnswer = answer
	session.SourceURLs = sourceURLs
	session.Suggestions = suggestions
	session.TotalTokensUsed += tokensUsed
	return m.Update(ctx, session)
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.localCache, sessionID)
	m.mu.Unlock()
	return m.client.Del(ctx, sessionKey(sessionID)).Err()
}

// Ping checks Redis connectivity.
func (m *Manager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (m *Manager) Close() error {
	return m.client.Close()
}

func (m *Manager) save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, sessionKey(session.ID), data, m.ttl).Err()
}

// evictIfFull drops an arbitrary entry when the cache is oversized.
// Caller must hold m.mu.
func (m *Manager) evictIfFull() {
	for id := range m.localCache {
		if len(m.localCache) <= m.maxCached {
			break
		}
		delete(m.localCache, id)
	}
}

func sessionKey(sessionID string) string {
	return "diogenes:session:" + sessionID
}
