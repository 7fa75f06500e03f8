package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/llm"
	"github.com/diogenes-labs/diogenes/internal/protocol"
)

const suggestionPrompt = `Based on this research, generate helpful follow-up questions and related topics.

ORIGINAL QUERY: %s

ANSWER SUMMARY:
%s

SOURCES USED:
%s

Generate:
1. 3-4 follow-up questions the user might want to ask next
   - Questions that go deeper into specific aspects
   - Questions that explore related but not covered topics
   - Questions that apply the information practically

2. 3-5 related topics the user might be interested in

Return ONLY valid JSON:
{
    "suggested_questions": ["Question 1?", "Question 2?", "Question 3?"],
    "related_topics": ["Topic 1", "Topic 2", "Topic 3"]
}`

const quickSuggestionPrompt = `Given this query and answer, suggest 3 follow-up questions.

Query: %s
Answer (first 500 chars): %s

Return ONLY valid JSON:
{"suggested_questions": ["Question 1?", "Question 2?", "Question 3?"]}`

var quotedQuestionRe = regexp.MustCompile(`["']([^"']+\?)["']`)

// Suggestions are the follow-up questions and related topics offered
// after an answer.
type Suggestions struct {
	Questions []string `json:"suggested_questions"`
	Topics    []string `json:"related_topics"`
}

// Suggester generates follow-up questions from a finished answer. Uses
// the planner model: suggestion quality does not justify the big model.
type Suggester struct {
	llm    *llm.Client
	model  string
	logger *zap.Logger
}

// NewSuggester wires the suggester. model may be empty to use the
// client's default.
func NewSuggester(client *llm.Client, model string, logger *zap.Logger) *Suggester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suggester{llm: client, model: model, logger: logger}
}

func (s *Suggester) Type() string { return "suggester" }

func (s *Suggester) Capabilities() []Capability {
	return []Capability{CapSynthesis, CapReview}
}

func (s *Suggester) Execute(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
	if task.Type != protocol.TaskGenerateSuggestions {
		return protocol.TaskResult{}, fmt.Errorf("unknown task type for suggester: %s", task.Type)
	}

	query := task.StringInput("query", "")
	answer := task.StringInput("answer", "")
	if query == "" || answer == "" {
		return protocol.TaskResult{}, fmt.Errorf("missing required inputs: query and answer")
	}

	var (
		suggestions Suggestions
		confidence  float64
		err         error
	)
	if task.BoolInput("quick", false) {
		suggestions, confidence, err = s.quick(ctx, query, answer)
	} else {
		sources := task.StringsInput("sources")
		suggestions, confidence, err = s.full(ctx, query, answer, sources)
	}
	if err != nil {
		return protocol.TaskResult{}, fmt.Errorf("generate suggestions: %w", err)
	}

	return protocol.TaskResult{
		TaskID: task.TaskID,
		Status: protocol.StatusSuccess,
		Outputs: map[string]interface{}{
			"suggested_questions": suggestions.Questions,
			"related_topics":      suggestions.Topics,
		},
		Confidence: confidence,
	}, nil
}

func (s *Suggester) full(ctx context.Context, query, answer string, sources []string) (Suggestions, float64, error) {
	summary := answer
	if len(summary) > 1000 {
		summary = summary[:1000] + "..."
	}
	sourcesText := "None provided"
	if len(sources) > 0 {
		if len(sources) > 10 {
			sources = sources[:10]
		}
		sourcesText = "- " + strings.Join(sources, "\n- ")
	}

	prompt := fmt.Sprintf(suggestionPrompt, query, summary, sourcesText)
	var out Suggestions
	err := s.llm.GenerateStructuredWith(ctx, prompt, llm.Options{
		Model:       s.model,
		Temperature: 0.7,
		MaxTokens:   500,
	}, &out)
	if err != nil {
		return Suggestions{}, 0, err
	}
	return cleanSuggestions(out), 0.85, nil
}

func (s *Suggester) quick(ctx context.Context, query, answer string) (Suggestions, float64, error) {
	preview := answer
	if len(preview) > 500 {
		preview = preview[:500] + "..."
	}

	prompt := fmt.Sprintf(quickSuggestionPrompt, query, preview)
	var out Suggestions
	err := s.llm.GenerateStructuredWith(ctx, prompt, llm.Options{
		Model:       s.model,
		Temperature: 0.7,
		MaxTokens:   200,
	}, &out)
	if err != nil {
		return Suggestions{}, 0, err
	}
	return cleanSuggestions(out), 0.7, nil
}

func cleanSuggestions(s Suggestions) Suggestions {
	out := Suggestions{}
	for _, q := range s.Questions {
		q = strings.TrimSpace(q)
		if len(q) > 10 {
			out.Questions = append(out.Questions, q)
		}
		if len(out.Questions) == 4 {
			break
		}
	}
	for _, t := range s.Topics {
		t = strings.TrimSpace(t)
		if len(t) > 3 {
			out.Topics = append(out.Topics, t)
		}
		if len(out.Topics) == 5 {
			break
		}
	}
	return out
}

// ParseQuestions salvages question strings out of non-JSON model
// output. Fallback path for models that ignore the JSON constraint.
func ParseQuestions(text string) []string {
	matches := quotedQuestionRe.FindAllStringSubmatch(text, -1)
	questions := make([]string, 0, len(matches))
	for _, m := range matches {
		q := strings.TrimSpace(m[1])
		if len(q) > 10 {
			questions = append(questions, q)
		}
	}
	if len(questions) > 4 {
		questions = questions[:4]
	}
	return questions
}
