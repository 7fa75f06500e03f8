package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/citation"
	"github.com/diogenes-labs/diogenes/internal/llm"
	"github.com/diogenes-labs/diogenes/internal/protocol"
)

const comprehensiveSynthesisPrompt = `You are an expert research synthesizer. Create a comprehensive, well-structured response based on the research findings below.

QUERY: %s

RESEARCH FINDINGS:
%s

VERIFIED CLAIMS (with confidence scores):
%s

Requirements:
1. Start with a clear, direct answer to the query
2. Organize content with clear sections and headings
3. Include specific facts with inline citations [1], [2], etc.
4. Note any contradictions or areas of uncertainty
5. End with key takeaways or conclusions

Format as markdown with proper headings (##, ###).
Include a "Key Findings" section at the start.
If there are contradictions, include a "Caveats" section.`

const briefSynthesisPrompt = `You are an expert at providing concise, accurate answers. Create a brief but complete response to the query.

QUERY: %s

RESEARCH FINDINGS:
%s

Requirements:
1. Provide a direct answer in 2-3 paragraphs
2. Include the most important facts with citations [1], [2]
3. Focus on answering the specific question asked
4. Be concise but don't omit critical information`

const academicSynthesisPrompt = `You are an academic research assistant. Create a scholarly response with rigorous citations.

QUERY: %s

RESEARCH FINDINGS:
%s

VERIFIED CLAIMS:
%s

Requirements:
1. Use formal academic language
2. Structure with Introduction, Analysis, Discussion, Conclusion
3. Include all relevant citations in academic format
4. Address limitations and areas for further research
5. Maintain objectivity and present multiple perspectives
6. Use hedging language appropriately (e.g., "suggests", "indicates")`

const technicalSynthesisPrompt = `You are a technical documentation expert. Create a technical response with code examples where relevant.

QUERY: %s

RESEARCH FINDINGS:
%s

Requirements:
1. Provide technical accuracy above all
2. Include code examples in proper markdown code blocks
3. Reference official documentation with citations
4. Explain technical concepts clearly
5. Include relevant warnings or best practices
6. Format for developer readability`

// SynthesisStyle bundles the prompt shape and verification inclusion of
// one output style.
type SynthesisStyle struct {
	Name                string
	IncludeVerification bool
}

var synthesisStyles = map[string]SynthesisStyle{
	"comprehensive": {Name: "comprehensive", IncludeVerification: true},
	"brief":         {Name: "brief", IncludeVerification: false},
	"academic":      {Name: "academic", IncludeVerification: true},
	"technical":     {Name: "technical", IncludeVerification: false},
}

var (
	citationMarkerRe = regexp.MustCompile(`\[\d+\]`)
	headingRe        = regexp.MustCompile(`(?m)^#{1,3}\s`)
	listRe           = regexp.MustCompile(`(?m)^[-*]\s`)
	multiBlankRe     = regexp.MustCompile(`\n{3,}`)
	doubleSpaceRe    = regexp.MustCompile(`  +`)
	headingSpaceRe   = regexp.MustCompile(`(?m)^(#{1,6})([^\s#])`)
	mdHeaderRe       = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	mdBoldRe         = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	mdItalicRe       = regexp.MustCompile(`\*([^*]+)\*`)
	mdLinkRe         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdCodeBlockRe    = regexp.MustCompile("```[^`]+```")
	mdInlineCodeRe   = regexp.MustCompile("`([^`]+)`")
)

// ContentMetrics summarizes the shape of a synthesized answer.
type ContentMetrics struct {
	WordCount       int     `json:"word_count"`
	CitationCount   int     `json:"citation_count"`
	UniqueCitations int     `json:"unique_citations"`
	HasHeadings     bool    `json:"has_headings"`
	HasLists        bool    `json:"has_lists"`
	QualityScore    float64 `json:"quality_score"`
}

// Writer synthesizes research findings into a cited answer.
type Writer struct {
	llm    *llm.Client
	logger *zap.Logger
}

// NewWriter wires the writer's model client.
func NewWriter(client *llm.Client, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{llm: client, logger: logger}
}

func (w *Writer) Type() string { return "writer" }

func (w *Writer) Capabilities() []Capability {
	return []Capability{CapSynthesis}
}

func (w *Writer) Execute(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
	switch task.Type {
	case protocol.TaskSynthesizeAnswer:
		return w.synthesize(ctx, task)
	case protocol.TaskFormatOutput:
		return w.formatOutput(task)
	default:
		return protocol.TaskResult{}, fmt.Errorf("unknown task type for writer: %s", task.Type)
	}
}

func (w *Writer) synthesize(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
	query := task.StringInput("query", "")
	styleName := task.StringInput("style", "comprehensive")
	findings := task.StringInput("findings", "")
	verified, _ := task.Inputs["verified_claims"].([]protocol.VerifiedClaim)
	sources, _ := task.Inputs["sources"].([]citation.SourceCard)

	w.logger.Info("synthesizing answer",
		zap.String("query", truncate(query, 50)),
		zap.String("style", styleName),
	)

	style, ok := synthesisStyles[styleName]
	if !ok {
		style = synthesisStyles["comprehensive"]
	}
	if len(findings) > 6000 {
		findings = findings[:6000]
	}

	claimsText := ""
	if style.IncludeVerification {
		claimsText = formatVerifiedClaims(verified)
		if len(claimsText) > 2000 {
			claimsText = claimsText[:2000]
		}
	}

	var prompt string
	switch style.Name {
	case "brief":
		prompt = fmt.Sprintf(briefSynthesisPrompt, query, findings)
	case "academic":
		prompt = fmt.Sprintf(academicSynthesisPrompt, query, findings, claimsText)
	case "technical":
		prompt = fmt.Sprintf(technicalSynthesisPrompt, query, findings)
	default:
		prompt = fmt.Sprintf(comprehensiveSynthesisPrompt, query, findings, claimsText)
	}

	resp, err := w.llm.Generate(ctx, prompt, llm.Options{
		System: "You are an expert research synthesizer. Create clear, well-cited content.",
	})
	if err != nil {
		return protocol.TaskResult{}, fmt.Errorf("synthesis: %w", err)
	}

	content := cleanMarkdown(resp.Content)
	if len(sources) > 0 {
		content += "\n\n" + citationSection(sources)
	}
	metrics := computeContentMetrics(content, len(sources))

	return protocol.TaskResult{
		TaskID: task.TaskID,
		Status: protocol.StatusSuccess,
		Outputs: map[string]interface{}{
			"content":        content,
			"style":          style.Name,
			"word_count":     metrics.WordCount,
			"citation_count": metrics.CitationCount,
			"metrics":        metrics,
			"tokens_used":    resp.TotalTokens(),
		},
		Confidence: metrics.QualityScore,
	}, nil
}

func (w *Writer) formatOutput(task protocol.TaskAssignment) (protocol.TaskResult, error) {
	content := task.StringInput("content", "")
	format := task.StringInput("format", "markdown")

	var formatted string
	switch format {
	case "plain":
		formatted = stripMarkdown(content)
	case "markdown":
		formatted = cleanMarkdown(content)
	default:
		formatted = content
	}
	return protocol.TaskResult{
		TaskID: task.TaskID,
		Status: protocol.StatusSuccess,
		Outputs: map[string]interface{}{
			"formatted_content": formatted,
			"format":            format,
		},
		Confidence: 1.0,
	}, nil
}

func formatVerifiedClaims(claims []protocol.VerifiedClaim) string {
	if len(claims) == 0 {
		return "No claims have been verified."
	}
	marks := map[protocol.ClaimStatus]string{
		protocol.ClaimVerified:   "✓",
		protocol.ClaimDisputed:   "⚠",
		protocol.ClaimRefuted:    "✗",
		protocol.ClaimUnverified: "?",
	}
	var b strings.Builder
	for _, c := range claims {
		mark, ok := marks[c.Status]
		if !ok {
			mark = "?"
		}
		fmt.Fprintf(&b, "%s [%.0f%%] %s\n", mark, c.Confidence*100, c.Claim)
	}
	return b.String()
}

func citationSection(sources []citation.SourceCard) string {
	lines := []string{"## Sources", ""}
	for _, s := range sources {
		if s.URL != "" {
			lines = append(lines, fmt.Sprintf("[%d] [%s](%s)", s.Index, s.Title, s.URL))
		} else {
			lines = append(lines, fmt.Sprintf("[%d] %s", s.Index, s.Title))
		}
	}
	return strings.Join(lines, "\n")
}

func computeContentMetrics(content string, sourceCount int) ContentMetrics {
	markers := citationMarkerRe.FindAllString(content, -1)
	unique := make(map[string]bool, len(markers))
	for _, m := range markers {
		unique[m] = true
	}

	m := ContentMetrics{
		WordCount:       len(strings.Fields(content)),
		CitationCount:   len(markers),
		UniqueCitations: len(unique),
		HasHeadings:     headingRe.MatchString(content),
		HasLists:        listRe.MatchString(content),
	}

	lengthScore := float64(m.WordCount) / 500
	if lengthScore > 1 {
		lengthScore = 1
	}
	citationScore := 0.8
	if sourceCount > 0 {
		citationScore = float64(m.UniqueCitations) / float64(sourceCount)
		if citationScore > 1 {
			citationScore = 1
		}
	}
	structureScore := 0.5
	if m.HasHeadings {
		structureScore += 0.25
	}
	if m.HasLists {
		structureScore += 0.25
	}
	m.QualityScore = lengthScore*0.3 + citationScore*0.4 + structureScore*0.3
	return m
}

func cleanMarkdown(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = doubleSpaceRe.ReplaceAllString(content, " ")
	content = multiBlankRe.ReplaceAllString(content, "\n\n")
	content = headingSpaceRe.ReplaceAllString(content, "$1 $2")
	return strings.TrimSpace(content)
}

func stripMarkdown(content string) string {
	content = mdHeaderRe.ReplaceAllString(content, "")
	content = mdCodeBlockRe.ReplaceAllString(content, "")
	content = mdBoldRe.ReplaceAllString(content, "$1")
	content = mdItalicRe.ReplaceAllString(content, "$1")
	content = mdLinkRe.ReplaceAllString(content, "$1")
	content = mdInlineCodeRe.ReplaceAllString(content, "$1")
	return strings.TrimSpace(content)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
