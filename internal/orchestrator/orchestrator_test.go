package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/diogenes-labs/diogenes/internal/agent"
	"github.com/diogenes-labs/diogenes/internal/coordinator"
	"github.com/diogenes-labs/diogenes/internal/modes"
	"github.com/diogenes-labs/diogenes/internal/processing"
	"github.com/diogenes-labs/diogenes/internal/protocol"
	"github.com/diogenes-labs/diogenes/internal/search"
)

func citedAnswer() string {
	return strings.Repeat("The capital of France is Paris, seat of government. ", 15) + "[1]"
}

func fakeResearcher(delay time.Duration, inFlight, peak *int64) agent.Func {
	return agent.Func{
		AgentType: "researcher",
		Caps:      []agent.Capability{agent.CapSearching, agent.CapCrawling},
		Fn: func(_ context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
			switch task.Type {
			case protocol.TaskWebSearch:
				if inFlight != nil {
					now := atomic.AddInt64(inFlight, 1)
					for {
						old := atomic.LoadInt64(peak)
						if now <= old || atomic.CompareAndSwapInt64(peak, old, now) {
							break
						}
					}
					time.Sleep(delay)
					atomic.AddInt64(inFlight, -1)
				}
				return protocol.TaskResult{
					TaskID: task.TaskID,
					Status: protocol.StatusSuccess,
					Outputs: map[string]interface{}{
						"results": []search.Result{
							{URL: "https://en.example/paris", Title: "Paris", Snippet: "Capital of France.", Score: 0.9},
							{URL: "https://fr.example/paris", Title: "Paris (fr)", Snippet: "Capitale de la France.", Score: 0.8},
							{URL: "https://misc.example/paris", Title: "Paris misc", Snippet: "About Paris.", Score: 0.7},
						},
					},
					Confidence: 0.9,
				}, nil
			case protocol.TaskCrawlURLs:
				urls := task.StringsInput("urls")
				pages := make([]agent.ProcessedPage, 0, len(urls))
				for i, u := range urls {
					content := strings.Repeat("Paris is the capital of France. ", 25)
					chunk := processing.NewContentChunk(u, fmt.Sprintf("Paris %d", i), content, 0, 1)
					pages = append(pages, agent.ProcessedPage{
						URL:          u,
						Title:        fmt.Sprintf("Paris %d", i),
						Content:      content,
						Chunks:       []processing.ContentChunk{chunk},
						QualityScore: 0.85,
						CrawledAt:    time.Now(),
					})
				}
				return protocol.TaskResult{
					TaskID:     task.TaskID,
					Status:     protocol.StatusSuccess,
					Outputs:    map[string]interface{}{"pages": pages},
					Confidence: 1.0,
				}, nil
			default:
				return protocol.TaskResult{}, fmt.Errorf("unexpected task type %s", task.Type)
			}
		},
	}
}

func fakeWriter() agent.Func {
	return agent.Func{
		AgentType: "writer",
		Caps:      []agent.Capability{agent.CapSynthesis},
		Fn: func(_ context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
			return protocol.TaskResult{
				TaskID: task.TaskID,
				Status: protocol.StatusSuccess,
				Outputs: map[string]interface{}{
					"content":     citedAnswer(),
					"tokens_used": 128,
				},
				Confidence: 0.8,
			}, nil
		},
	}
}

func fakeSuggester() agent.Func {
	return agent.Func{
		AgentType: "suggester",
		Caps:      []agent.Capability{agent.CapReview},
		Fn: func(_ context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
			return protocol.TaskResult{
				TaskID: task.TaskID,
				Status: protocol.StatusSuccess,
				Outputs: map[string]interface{}{
					"suggested_questions": []string{"What is the population of Paris?"},
					"related_topics":      []string{"French history"},
				},
				Confidence: 0.7,
			}, nil
		},
	}
}

func newTestOrchestrator(maxConcurrent int, agents ...agent.Agent) *Orchestrator {
	pool := agent.NewPool(nil)
	for _, a := range agents {
		pool.Register(a)
	}
	coord := coordinator.New(pool, nil, "", nil, nil)
	return New(coord, pool, nil, nil, maxConcurrent, nil)
}

func TestResearchQuickModeEndToEnd(t *testing.T) {
	o := newTestOrchestrator(2, fakeResearcher(0, nil, nil), fakeWriter(), fakeSuggester())

	result := o.Research(context.Background(), "capital of France", Options{Mode: modes.Quick})
	if result.Failed {
		t.Fatalf("expected success, got failure: %s (%+v)", result.Answer, result.PhaseErrors)
	}
	if !strings.Contains(result.Answer, "[1]") {
		t.Fatalf("expected cited answer, got %q", result.Answer)
	}
	if len(result.Sources) == 0 || len(result.Sources) > 2 {
		t.Fatalf("quick mode yields 1-2 sources, got %d", len(result.Sources))
	}
	if result.ReliabilityScore != defaultReliability {
		t.Fatalf("quick mode skips verification, reliability = %v", result.ReliabilityScore)
	}
	if len(result.SuggestedQuestions) != 1 || len(result.RelatedTopics) != 1 {
		t.Fatalf("expected suggestions, got %+v / %+v", result.SuggestedQuestions, result.RelatedTopics)
	}
	if result.SessionID == "" {
		t.Fatal("expected a generated session id")
	}
	if result.TokensUsed == 0 {
		t.Fatal("expected token accounting")
	}
}

func TestResearchConcurrencyBounded(t *testing.T) {
	var inFlight, peak int64
	o := newTestOrchestrator(2, fakeResearcher(20*time.Millisecond, &inFlight, &peak), fakeWriter())

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Research(context.Background(), "capital of France", Options{Mode: modes.Quick})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&peak); got > 2 {
		t.Fatalf("concurrent sessions peaked at %d, want at most 2", got)
	}
}

func TestResearchFailureIsData(t *testing.T) {
	o := newTestOrchestrator(1)

	result := o.Research(context.Background(), "capital of France", Options{Mode: modes.Quick})
	if !result.Failed {
		t.Fatalf("expected failed result, got %+v", result)
	}
	if result.ReliabilityScore != 0 || result.Confidence != 0 {
		t.Fatalf("failed result must carry zero scores, got %v/%v",
			result.ReliabilityScore, result.Confidence)
	}
	if !strings.HasPrefix(result.Answer, "Research failed:") {
		t.Fatalf("expected failure explanation, got %q", result.Answer)
	}
}

func TestResearchStreamEventOrder(t *testing.T) {
	o := newTestOrchestrator(2, fakeResearcher(0, nil, nil), fakeWriter(), fakeSuggester())

	events := o.ResearchStream(context.Background(), "capital of France", Options{Mode: modes.Quick})

	var types []EventType
	var answer strings.Builder
	var complete *Result
	sources := 0
	for ev := range events {
		types = append(types, ev.Type)
		switch ev.Type {
		case EventAnswerChunk:
			chunk := ev.Data.(AnswerChunk)
			if len([]rune(chunk.Content)) > answerChunkSize {
				t.Fatalf("chunk exceeds %d runes: %q", answerChunkSize, chunk.Content)
			}
			answer.WriteString(chunk.Content)
		case EventSource:
			sources++
		case EventComplete:
			complete = ev.Data.(*Result)
		case EventError:
			t.Fatalf("unexpected error event: %+v", ev.Data)
		}
	}

	if len(types) == 0 || types[0] != EventProgress {
		t.Fatalf("stream must open with progress, got %v", types)
	}
	if types[len(types)-1] != EventComplete {
		t.Fatalf("stream must end with complete, got %v", types)
	}
	if complete == nil {
		t.Fatal("missing complete event")
	}
	if answer.String() != complete.Answer {
		t.Fatalf("reassembled answer differs from result:\n%q\nvs\n%q", answer.String(), complete.Answer)
	}
	if sources == 0 || sources > maxStreamedSources {
		t.Fatalf("expected 1-%d source events, got %d", maxStreamedSources, sources)
	}
}

func TestResearchStreamFailureEmitsErrorEvent(t *testing.T) {
	o := newTestOrchestrator(1)

	events := o.ResearchStream(context.Background(), "capital of France", Options{Mode: modes.Quick})
	var last Event
	for ev := range events {
		last = ev
	}
	if last.Type != EventError {
		t.Fatalf("expected terminal error event, got %v", last.Type)
	}
	payload := last.Data.(ErrorEvent)
	if payload.Error == "" {
		t.Fatal("error event must explain the failure")
	}
}

func TestResearchStreamAbandonedConsumer(t *testing.T) {
	o := newTestOrchestrator(1, fakeResearcher(0, nil, nil), fakeWriter())

	ctx, cancel := context.WithCancel(context.Background())
	events := o.ResearchStream(ctx, "capital of France", Options{Mode: modes.Quick})

	// Read one event, then walk away.
	<-events
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after consumer abandonment")
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	if opts.Mode != modes.Balanced {
		t.Fatalf("default mode = %q", opts.Mode)
	}
	if opts.UserID != "default" {
		t.Fatalf("default user = %q", opts.UserID)
	}
	if opts.SessionID == "" {
		t.Fatal("session id not generated")
	}
}
