// Package agent holds the worker contract, the tracked runtime wrapper,
// and the pool that routes task assignments to registered workers.
package agent

import (
	"context"

	"github.com/diogenes-labs/diogenes/internal/protocol"
)

// Capability is a class of work an agent can perform.
type Capability string

const (
	CapPlanning     Capability = "planning"
	CapSearching    Capability = "searching"
	CapCrawling     Capability = "crawling"
	CapProcessing   Capability = "processing"
	CapVerification Capability = "verification"
	CapSynthesis    Capability = "synthesis"
	CapReview       Capability = "review"
	CapCoordination Capability = "coordination"
)

// Status is the scheduling-relevant state of a worker.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusBusy    Status = "busy"
	StatusError   Status = "error"
	StatusStopped Status = "stopped"
)

// Agent is the contract a concrete worker implements. Execute runs one
// assignment to completion; timeout enforcement, panic recovery, and
// metrics live in the Worker wrapper, not in implementations.
type Agent interface {
	Type() string
	Capabilities() []Capability
	Execute(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error)
}

// Func adapts a plain function into an Agent. Used by tests and for
// one-off workers that need no state.
type Func struct {
	AgentType string
	Caps      []Capability
	Fn        func(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error)
}

func (f Func) Type() string               { return f.AgentType }
func (f Func) Capabilities() []Capability { return f.Caps }

func (f Func) Execute(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
	return f.Fn(ctx, task)
}
