package protocol

// ResearchPlan is the planner's decomposition of a query into sub-queries
// and search strategy hints.
type ResearchPlan struct {
	Query             string   `json:"query"`
	Intent            string   `json:"intent"`
	SubQueries        []string `json:"sub_queries"`
	SourceTypes       []string `json:"source_types"`
	Strategies        []string `json:"strategies"`
	KeyConcepts       []string `json:"key_concepts,omitempty"`
	VerificationLevel string   `json:"verification_level"`
	OutputFormat      string   `json:"output_format"`
}

// FallbackPlan builds a single-subquery plan from the raw query. Used when
// planning is disabled for the mode or the planner model is unavailable; it
// involves no model call.
func FallbackPlan(query string) *ResearchPlan {
	return &ResearchPlan{
		Query:             query,
		Intent:            query,
		SubQueries:        []string{query},
		SourceTypes:       []string{"web"},
		Strategies:        []string{"general"},
		VerificationLevel: "standard",
		OutputFormat:      "prose",
	}
}

// Queries returns the plan's sub-queries, or the original query when the
// plan carries none.
func (p *ResearchPlan) Queries() []string {
	if p == nil || len(p.SubQueries) == 0 {
		if p == nil {
			return nil
		}
		return []string{p.Query}
	}
	return p.SubQueries
}

// ClaimStatus classifies the outcome of verifying one claim.
type ClaimStatus string

const (
	ClaimVerified   ClaimStatus = "verified"
	ClaimDisputed   ClaimStatus = "disputed"
	ClaimRefuted    ClaimStatus = "refuted"
	ClaimUnverified ClaimStatus = "unverified"
)

// VerifiedClaim is one claim assessed against the crawled sources.
type VerifiedClaim struct {
	Claim                string      `json:"claim"`
	Status               ClaimStatus `json:"status"`
	Confidence           float64     `json:"confidence"`
	SupportingSources    []string    `json:"supporting_sources,omitempty"`
	ContradictingSources []string    `json:"contradicting_sources,omitempty"`
	Explanation          string      `json:"explanation,omitempty"`
}

// Contradiction records a conflict between two claims.
type Contradiction struct {
	Claim1      string `json:"claim1"`
	Claim2      string `json:"claim2"`
	Severity    string `json:"severity"`
	Explanation string `json:"explanation,omitempty"`
}
