package protocol

import (
	"time"

	"github.com/google/uuid"
)

// TaskAssignment is a unit of work dispatched from the coordinator to a
// worker agent. It is immutable once dispatched; dispatchers that need to
// vary inputs build a fresh assignment instead of mutating one in flight.
type TaskAssignment struct {
	TaskID       string                 `json:"task_id"`
	Type         TaskType               `json:"task_type"`
	AgentType    string                 `json:"agent_type"`
	Inputs       map[string]interface{} `json:"inputs"`
	Dependencies []string               `json:"dependencies,omitempty"`
	Priority     Priority               `json:"priority"`
	Timeout      time.Duration          `json:"timeout"`
	CreatedAt    time.Time              `json:"created_at"`
}

// NewTask builds an assignment with a generated id and default priority.
func NewTask(taskType TaskType, agentType string, inputs map[string]interface{}) TaskAssignment {
	if inputs == nil {
		inputs = make(map[string]interface{})
	}
	return TaskAssignment{
		TaskID:    uuid.New().String(),
		Type:      taskType,
		AgentType: agentType,
		Inputs:    inputs,
		Priority:  PriorityNormal,
		Timeout:   60 * time.Second,
		CreatedAt: time.Now(),
	}
}

// WithPriority returns a copy of the assignment with the given priority.
func (t TaskAssignment) WithPriority(p Priority) TaskAssignment {
	t.Priority = p
	return t
}

// WithTimeout returns a copy of the assignment with the given timeout.
func (t TaskAssignment) WithTimeout(d time.Duration) TaskAssignment {
	t.Timeout = d
	return t
}

// HasDependencies reports whether the task must wait on other tasks.
func (t TaskAssignment) HasDependencies() bool {
	return len(t.Dependencies) > 0
}

// TaskResult is the outcome a worker agent reports back for one assignment.
type TaskResult struct {
	TaskID     string                 `json:"task_id"`
	AgentID    string                 `json:"agent_id"`
	Status     ResultStatus           `json:"status"`
	Outputs    map[string]interface{} `json:"outputs,omitempty"`
	Errors     []string               `json:"errors,omitempty"`
	Confidence float64                `json:"confidence"`
	DurationMS float64                `json:"duration_ms"`
}

// IsSuccess reports whether the task fully succeeded.
func (r TaskResult) IsSuccess() bool { return r.Status == StatusSuccess }

// IsPartial reports whether the task partially succeeded.
func (r TaskResult) IsPartial() bool { return r.Status == StatusPartial }

// IsFailed reports whether the task failed outright.
func (r TaskResult) IsFailed() bool { return r.Status == StatusFailed }

// Usable reports whether the result carries outputs worth consuming.
func (r TaskResult) Usable() bool { return r.IsSuccess() || r.IsPartial() }

// Merge combines two results for the same logical operation: outputs are
// unioned (other wins on key collision), confidences averaged, errors
// concatenated, and the status downgrades to partial unless both succeeded.
func (r TaskResult) Merge(other TaskResult) TaskResult {
	status := StatusPartial
	if r.IsSuccess() && other.IsSuccess() {
		status = StatusSuccess
	}
	outputs := make(map[string]interface{}, len(r.Outputs)+len(other.Outputs))
	for k, v := range r.Outputs {
		outputs[k] = v
	}
	for k, v := range other.Outputs {
		outputs[k] = v
	}
	duration := r.DurationMS
	if other.DurationMS > duration {
		duration = other.DurationMS
	}
	return TaskResult{
		TaskID:     r.TaskID,
		AgentID:    r.AgentID + "+" + other.AgentID,
		Status:     status,
		Outputs:    outputs,
		Errors:     append(append([]string{}, r.Errors...), other.Errors...),
		Confidence: (r.Confidence + other.Confidence) / 2,
		DurationMS: duration,
	}
}

// FailedResult builds a failed result for the given task with the supplied
// error messages. Confidence is zero; failure is always represented as data.
func FailedResult(task TaskAssignment, agentID string, errs ...string) TaskResult {
	return TaskResult{
		TaskID:  task.TaskID,
		AgentID: agentID,
		Status:  StatusFailed,
		Errors:  errs,
	}
}
