// Package session persists research sessions in Redis with a local
// cache, giving conversations continuity across requests.
package session

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session has expired.
	ErrSessionExpired = errors.New("session expired")
)

// ResearchStatus tracks where a session's current research stands.
type ResearchStatus string

const (
	ResearchPending  ResearchStatus = "pending"
	ResearchRunning  ResearchStatus = "running"
	ResearchComplete ResearchStatus = "complete"
	ResearchFailed   ResearchStatus = "failed"
)

// Session is one research conversation.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`

	Mode    string         `json:"mode"`
	Status  ResearchStatus `json:"status"`
	History []Message      `json:"history"`

	// Last completed research, for follow-up context.
	LastQuery   string   `json:"last_query,omitempty"`
	LastAnswer  string   `json:"last_answer,omitempty"`
	SourceURLs  []string `json:"source_urls,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`

	TotalTokensUsed int `json:"total_tokens_used"`
}

// Message is one turn in the session history.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IsExpired checks if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// RecentHistory returns the most recent messages.
func (s *Session) RecentHistory(count int) []Message {
	if len(s.History) <= count {
		return s.History
	}
	return s.History[len(s.History)-count:]
}

// HistorySummary builds a role-prefixed transcript of the most recent
// turns that fit within maxTokens, oldest first.
func (s *Session) HistorySummary(maxTokens int) string {
	summary := ""
	currentTokens := 0
	for i := len(s.History) - 1; i >= 0; i-- {
		msg := s.History[i]
		msgTokens := len(msg.Content) / 4
		if currentTokens+msgTokens > maxTokens {
			break
		}
		summary = msg.Role + ": " + msg.Content + "\n" + summary
		currentTokens += msgTokens
	}
	return summary
}
