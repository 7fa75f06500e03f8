package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/llm"
	"github.com/diogenes-labs/diogenes/internal/processing"
	"github.com/diogenes-labs/diogenes/internal/protocol"
)

const claimVerificationPrompt = `You are a fact-checking expert. Analyze whether the following claim is supported by the provided sources.

CLAIM: %s

SOURCES:
%s

Determine:
1. Is this claim supported, contradicted, or unverified by the sources?
2. What is your confidence level (0.0 to 1.0)?
3. Which sources support it? Which contradict it?

Respond in JSON format:
{
    "status": "verified|disputed|refuted|unverified",
    "confidence": 0.0,
    "supporting_sources": ["url1", "url2"],
    "contradicting_sources": ["url3"],
    "explanation": "Brief explanation"
}`

const batchContradictionPrompt = `You are a logical analysis expert. Analyze the following numbered claims for ANY contradictions between them.

CLAIMS:
%s

Instructions:
- Compare all claims against each other.
- Identify every pair of claims that contradict each other.
- Only report actual contradictions, not mere differences in detail.
- If no contradictions exist, return an empty list.

Respond in JSON format:
{
    "contradictions": [
        {
            "claim1_index": 0,
            "claim2_index": 1,
            "severity": "minor|moderate|major",
            "explanation": "Brief explanation"
        }
    ]
}`

// reliability weight per claim status.
var claimStatusWeights = map[protocol.ClaimStatus]float64{
	protocol.ClaimVerified:   1.0,
	protocol.ClaimDisputed:   0.5,
	protocol.ClaimRefuted:    0.2,
	protocol.ClaimUnverified: 0.4,
}

// Verifier fact-checks claims against crawled sources and flags
// contradictions between them.
type Verifier struct {
	llm    *llm.Client
	scorer *processing.Scorer
	logger *zap.Logger
}

// NewVerifier wires the verifier's model client.
func NewVerifier(client *llm.Client, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		llm:    client,
		scorer: processing.NewScorer(logger),
		logger: logger,
	}
}

func (v *Verifier) Type() string { return "verifier" }

func (v *Verifier) Capabilities() []Capability {
	return []Capability{CapVerification}
}

func (v *Verifier) Execute(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
	switch task.Type {
	case protocol.TaskVerifyClaims:
		return v.verifyClaims(ctx, task)
	case protocol.TaskCheckContradictions:
		return v.checkContradictions(ctx, task)
	case protocol.TaskAssessReliability:
		return v.assessReliability(task)
	default:
		return protocol.TaskResult{}, fmt.Errorf("unknown task type for verifier: %s", task.Type)
	}
}

func (v *Verifier) verifyClaims(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
	claims := task.StringsInput("claims")
	pages, _ := task.Inputs["sources"].([]ProcessedPage)

	if len(claims) == 0 {
		return protocol.TaskResult{
			TaskID: task.TaskID,
			Status: protocol.StatusSuccess,
			Outputs: map[string]interface{}{
				"verified_claims":   []protocol.VerifiedClaim{},
				"reliability_score": 1.0,
			},
			Confidence: 1.0,
		}, nil
	}

	v.logger.Info("verifying claims",
		zap.Int("claims", len(claims)),
		zap.Int("sources", len(pages)),
	)
	sourceText := formatSourcesForPrompt(pages)

	verified := make([]protocol.VerifiedClaim, 0, len(claims))
	for _, claim := range claims {
		result, err := v.verifySingleClaim(ctx, claim, sourceText)
		if err != nil {
			v.logger.Warn("claim verification failed", zap.Error(err))
			result = protocol.VerifiedClaim{
				Claim:      claim,
				Status:     protocol.ClaimUnverified,
				Confidence: 0.5,
			}
		}
		verified = append(verified, result)
	}

	reliability := CalculateReliability(verified)
	contradictions := v.findContradictions(ctx, claims)

	counts := map[protocol.ClaimStatus]int{}
	for _, c := range verified {
		counts[c.Status]++
	}
	return protocol.TaskResult{
		TaskID: task.TaskID,
		Status: protocol.StatusSuccess,
		Outputs: map[string]interface{}{
			"verified_claims":   verified,
			"contradictions":    contradictions,
			"reliability_score": reliability,
			"verified_count":    counts[protocol.ClaimVerified],
			"disputed_count":    counts[protocol.ClaimDisputed],
			"unverified_count":  counts[protocol.ClaimUnverified],
		},
		Confidence: reliability,
	}, nil
}

type claimVerdict struct {
	Status               string   `json:"status"`
	Confidence           float64  `json:"confidence"`
	SupportingSources    []string `json:"supporting_sources"`
	ContradictingSources []string `json:"contradicting_sources"`
	Explanation          string   `json:"explanation"`
}

func (v *Verifier) verifySingleClaim(ctx context.Context, claim, sourceText string) (protocol.VerifiedClaim, error) {
	if len(sourceText) > 4000 {
		sourceText = sourceText[:4000]
	}
	prompt := fmt.Sprintf(claimVerificationPrompt, claim, sourceText)

	var verdict claimVerdict
	err := v.llm.GenerateStructuredWith(ctx, prompt, llm.Options{
		System: "You are a fact-checking assistant. Always respond with valid JSON.",
	}, &verdict)
	if err != nil {
		return protocol.VerifiedClaim{}, err
	}

	status := protocol.ClaimStatus(verdict.Status)
	if _, known := claimStatusWeights[status]; !known {
		status = protocol.ClaimUnverified
	}
	return protocol.VerifiedClaim{
		Claim:                claim,
		Status:               status,
		Confidence:           clampConfidence(verdict.Confidence),
		SupportingSources:    verdict.SupportingSources,
		ContradictingSources: verdict.ContradictingSources,
		Explanation:          verdict.Explanation,
	}, nil
}

func (v *Verifier) checkContradictions(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
	claims := task.StringsInput("claims")
	if len(claims) < 2 {
		return protocol.TaskResult{
			TaskID:     task.TaskID,
			Status:     protocol.StatusSuccess,
			Outputs:    map[string]interface{}{"contradictions": []protocol.Contradiction{}},
			Confidence: 1.0,
		}, nil
	}

	contradictions := v.findContradictions(ctx, claims)
	confidence := 1.0
	if len(contradictions) > 0 {
		confidence = 0.7
	}
	return protocol.TaskResult{
		TaskID: task.TaskID,
		Status: protocol.StatusSuccess,
		Outputs: map[string]interface{}{
			"contradictions":      contradictions,
			"contradiction_count": len(contradictions),
		},
		Confidence: confidence,
	}, nil
}

type contradictionReport struct {
	Contradictions []struct {
		Claim1Index int    `json:"claim1_index"`
		Claim2Index int    `json:"claim2_index"`
		Severity    string `json:"severity"`
		Explanation string `json:"explanation"`
	} `json:"contradictions"`
}

// findContradictions sends all claims in one batched prompt rather than
// comparing pairs with O(n^2) model calls.
func (v *Verifier) findContradictions(ctx context.Context, claims []string) []protocol.Contradiction {
	if len(claims) < 2 {
		return nil
	}
	if len(claims) > 20 {
		claims = claims[:20]
	}

	var numbered strings.Builder
	for i, claim := range claims {
		fmt.Fprintf(&numbered, "[%d] %s\n", i, claim)
	}
	prompt := fmt.Sprintf(batchContradictionPrompt, numbered.String())

	var report contradictionReport
	err := v.llm.GenerateStructuredWith(ctx, prompt, llm.Options{
		System: "You are a logical analysis assistant. Always respond with valid JSON.",
	}, &report)
	if err != nil {
		v.logger.Warn("contradiction detection failed", zap.Error(err))
		return nil
	}

	var out []protocol.Contradiction
	for _, c := range report.Contradictions {
		if c.Claim1Index < 0 || c.Claim1Index >= len(claims) ||
			c.Claim2Index < 0 || c.Claim2Index >= len(claims) {
			continue
		}
		severity := c.Severity
		if severity == "" {
			severity = "minor"
		}
		out = append(out, protocol.Contradiction{
			Claim1:      claims[c.Claim1Index],
			Claim2:      claims[c.Claim2Index],
			Severity:    severity,
			Explanation: c.Explanation,
		})
	}
	return out
}

// SourceAssessment is the reliability verdict for one source.
type SourceAssessment struct {
	URL          string  `json:"url"`
	DomainScore  float64 `json:"domain_score"`
	ContentScore float64 `json:"content_score"`
	OverallScore float64 `json:"overall_score"`
	IsReliable   bool    `json:"is_reliable"`
}

func (v *Verifier) assessReliability(task protocol.TaskAssignment) (protocol.TaskResult, error) {
	pages, _ := task.Inputs["sources"].([]ProcessedPage)

	assessments := make([]SourceAssessment, 0, len(pages))
	reliable := 0
	total := 0.0
	for _, page := range pages {
		domainScore := v.scorer.ScoreDomain(page.URL)
		contentScore := 0.5
		if n := float64(len(page.Content)) / 1000; n < 1 {
			contentScore = n*0.5 + 0.5
		} else {
			contentScore = 1.0
		}
		overall := domainScore*0.6 + contentScore*0.4
		a := SourceAssessment{
			URL:          page.URL,
			DomainScore:  domainScore,
			ContentScore: contentScore,
			OverallScore: overall,
			IsReliable:   overall >= 0.5,
		}
		if a.IsReliable {
			reliable++
		}
		total += overall
		assessments = append(assessments, a)
	}

	avg := 0.5
	if len(assessments) > 0 {
		avg = total / float64(len(assessments))
	}
	return protocol.TaskResult{
		TaskID: task.TaskID,
		Status: protocol.StatusSuccess,
		Outputs: map[string]interface{}{
			"assessments":         assessments,
			"average_reliability": avg,
			"reliable_count":      reliable,
		},
		Confidence: avg,
	}, nil
}

// CalculateReliability reduces per-claim verdicts to one score, each
// claim's confidence weighted by its status.
func CalculateReliability(claims []protocol.VerifiedClaim) float64 {
	if len(claims) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, c := range claims {
		weight, ok := claimStatusWeights[c.Status]
		if !ok {
			weight = 0.5
		}
		sum += c.Confidence * weight
	}
	return sum / float64(len(claims))
}

// ExtractClaims pulls candidate claims out of prose, one per sentence
// over a minimum length.
func ExtractClaims(answer string, limit int) []string {
	flat := strings.ReplaceAll(answer, "\n", " ")
	var claims []string
	for _, sentence := range strings.Split(flat, ".") {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) > 20 {
			claims = append(claims, sentence)
		}
		if limit > 0 && len(claims) >= limit {
			break
		}
	}
	return claims
}

func formatSourcesForPrompt(pages []ProcessedPage) string {
	var b strings.Builder
	limit := len(pages)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		page := pages[i]
		title := page.Title
		if title == "" {
			title = "No title"
		}
		content := page.Content
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		fmt.Fprintf(&b, "[%d] %s\nURL: %s\nContent: %s\n\n", i+1, title, page.URL, content)
	}
	return b.String()
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
