package memory

import "time"

// Type classifies what kind of knowledge a memory holds.
type Type string

const (
	TypeFact        Type = "fact"
	TypePreference  Type = "preference"
	TypeContext     Type = "context"
	TypeHistory     Type = "history"
	TypeInstruction Type = "instruction"
)

// Priority orders memories for context injection.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var contextLabels = map[Type]string{
	TypeFact:        "User Fact",
	TypePreference:  "User Preference",
	TypeContext:     "User Context",
	TypeHistory:     "Past Research",
	TypeInstruction: "Standing Instruction",
}

// Memory is a single persistent fact, preference, or instruction
// attached to a user.
type Memory struct {
	ID            string    `db:"memory_id"`
	UserID        string    `db:"user_id"`
	Type          Type      `db:"memory_type"`
	Key           string    `db:"key"`
	Value         string    `db:"value"`
	Priority      Priority  `db:"priority"`
	SourceSession string    `db:"source_session"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
	AccessCount   int       `db:"access_count"`
	Active        bool      `db:"is_active"`
}

// ContextString renders the memory for prompt injection.
func (m *Memory) ContextString() string {
	label, ok := contextLabels[m.Type]
	if !ok {
		label = "Memory"
	}
	return "[" + label + "] " + m.Key + ": " + m.Value
}
