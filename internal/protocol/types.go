package protocol

// TaskType identifies the kind of work a task assignment carries.
type TaskType string

const (
	// Planning tasks
	TaskCreatePlan     TaskType = "create_plan"
	TaskDecomposeQuery TaskType = "decompose_query"

	// Research tasks
	TaskWebSearch      TaskType = "web_search"
	TaskAcademicSearch TaskType = "academic_search"
	TaskCrawlURLs      TaskType = "crawl_urls"

	// Processing tasks
	TaskExtractFacts TaskType = "extract_facts"
	TaskChunkContent TaskType = "chunk_content"
	TaskScoreQuality TaskType = "score_quality"

	// Verification tasks
	TaskVerifyClaims        TaskType = "verify_claims"
	TaskCheckContradictions TaskType = "check_contradictions"
	TaskAssessReliability   TaskType = "assess_reliability"

	// Synthesis tasks
	TaskSynthesizeAnswer TaskType = "synthesize_answer"
	TaskFormatOutput     TaskType = "format_output"

	// Review tasks
	TaskReviewQuality       TaskType = "review_quality"
	TaskGenerateSuggestions TaskType = "generate_suggestions"
)

// Priority is the scheduling priority of a task.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// ResultStatus is the outcome classification of a task execution.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusPartial ResultStatus = "partial"
	StatusFailed  ResultStatus = "failed"
)

// ParseResultStatus decodes a status string from a persisted state map,
// falling back to failed for anything unrecognized.
func ParseResultStatus(s string) ResultStatus {
	switch ResultStatus(s) {
	case StatusSuccess, StatusPartial, StatusFailed:
		return ResultStatus(s)
	default:
		return StatusFailed
	}
}
