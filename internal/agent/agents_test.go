package agent

import (
	"strings"
	"testing"

	"github.com/diogenes-labs/diogenes/internal/protocol"
)

func TestCalculateReliability(t *testing.T) {
	claims := []protocol.VerifiedClaim{
		{Status: protocol.ClaimVerified, Confidence: 1.0},
		{Status: protocol.ClaimDisputed, Confidence: 0.8},
		{Status: protocol.ClaimUnverified, Confidence: 0.5},
	}
	// (1.0*1.0 + 0.8*0.5 + 0.5*0.4) / 3
	got := CalculateReliability(claims)
	want := (1.0 + 0.4 + 0.2) / 3
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestCalculateReliabilityEmpty(t *testing.T) {
	if got := CalculateReliability(nil); got != 0.5 {
		t.Fatalf("expected neutral 0.5 for no claims, got %f", got)
	}
}

func TestExtractClaims(t *testing.T) {
	answer := "Paris is the capital of France and its largest city. Ok. " +
		"The city has a population of over two million residents."
	claims := ExtractClaims(answer, 20)
	if len(claims) != 2 {
		t.Fatalf("expected 2 claims, got %d: %v", len(claims), claims)
	}
	if !strings.Contains(claims[0], "capital of France") {
		t.Fatalf("unexpected first claim: %q", claims[0])
	}
}

func TestExtractClaimsLimit(t *testing.T) {
	answer := strings.Repeat("This sentence is long enough to count as a claim. ", 30)
	claims := ExtractClaims(answer, 20)
	if len(claims) != 20 {
		t.Fatalf("expected claim cap of 20, got %d", len(claims))
	}
}

func TestComputeContentMetrics(t *testing.T) {
	content := "## Key Findings\n\n- Paris is the capital [1].\n- It is large [1][2].\n\n" +
		strings.Repeat("More detail about the city. ", 100)
	m := computeContentMetrics(content, 2)

	if !m.HasHeadings || !m.HasLists {
		t.Fatalf("expected headings and lists detected: %+v", m)
	}
	if m.CitationCount != 3 {
		t.Fatalf("expected 3 markers, got %d", m.CitationCount)
	}
	if m.UniqueCitations != 2 {
		t.Fatalf("expected 2 unique markers, got %d", m.UniqueCitations)
	}
	if m.QualityScore <= 0 || m.QualityScore > 1 {
		t.Fatalf("quality score out of range: %f", m.QualityScore)
	}
}

func TestStripMarkdown(t *testing.T) {
	in := "## Title\n\n**bold** and *italic* with [a link](https://example.com) and `code`."
	out := stripMarkdown(in)
	for _, banned := range []string{"##", "**", "](", "`"} {
		if strings.Contains(out, banned) {
			t.Fatalf("markdown %q left in output %q", banned, out)
		}
	}
	if !strings.Contains(out, "a link") {
		t.Fatalf("link text lost: %q", out)
	}
}

func TestCleanSuggestions(t *testing.T) {
	in := Suggestions{
		Questions: []string{" What about X? ", "Y?", "A much longer question about the topic?", "Another valid question here?", "Fifth question that overflows the cap?", "Sixth?"},
		Topics:    []string{"AI", " Quantum computing ", "ML"},
	}
	out := cleanSuggestions(in)
	if len(out.Questions) > 4 {
		t.Fatalf("expected at most 4 questions, got %d", len(out.Questions))
	}
	for _, q := range out.Questions {
		if len(q) <= 10 {
			t.Fatalf("short question survived: %q", q)
		}
		if q != strings.TrimSpace(q) {
			t.Fatalf("untrimmed question: %q", q)
		}
	}
}
