// Package modes defines research modes: named bundles of pipeline limits
// that trade speed for thoroughness.
//
// Quick does no verification and no iteration. Balanced adds light
// verification. Full and Research add reflection loops and contradiction
// checks. Deep is exhaustive.
package modes

import (
	"fmt"
	"time"
)

// SearchMode selects the depth/speed tradeoff for one research session.
type SearchMode string

const (
	Quick    SearchMode = "quick"
	Balanced SearchMode = "balanced"
	Full     SearchMode = "full"
	Research SearchMode = "research"
	Deep     SearchMode = "deep"
)

// Parse decodes a mode string from a request or a persisted state map,
// falling back to Balanced for anything unrecognized.
func Parse(s string) SearchMode {
	switch SearchMode(s) {
	case Quick, Balanced, Full, Research, Deep:
		return SearchMode(s)
	default:
		return Balanced
	}
}

// Config bounds one research session's pipeline.
type Config struct {
	MaxSearchResults       int
	MaxSourcesToCrawl      int
	MaxChunksForSynthesis  int
	MaxSourcesForSynthesis int
	MaxIterations          int
	EnableReflection       bool
	EnableVerification     bool
	EnableContradictions   bool
	EnablePlanning         bool
	MinQualityScore        float64
	CrawlTimeout           time.Duration
	SynthesisStyle         string
	TargetWordCount        int
}

// TimeBudget is the rough wall-clock budget for the session, used by the
// review loop to decide whether another iteration fits.
func (c Config) TimeBudget() time.Duration {
	return 2 * c.CrawlTimeout
}

var configs = map[SearchMode]Config{
	Quick: {
		MaxSearchResults:       3,
		MaxSourcesToCrawl:      2,
		MaxChunksForSynthesis:  15,
		MaxSourcesForSynthesis: 2,
		MaxIterations:          0,
		EnableReflection:       false,
		EnableVerification:     false,
		EnableContradictions:   false,
		EnablePlanning:         false,
		MinQualityScore:        0.6,
		CrawlTimeout:           15 * time.Second,
		SynthesisStyle:         "concise",
		TargetWordCount:        150,
	},
	Balanced: {
		MaxSearchResults:       8,
		MaxSourcesToCrawl:      10,
		MaxChunksForSynthesis:  40,
		MaxSourcesForSynthesis: 5,
		MaxIterations:          1,
		EnableReflection:       true,
		EnableVerification:     true,
		EnableContradictions:   false,
		EnablePlanning:         true,
		MinQualityScore:        0.5,
		CrawlTimeout:           45 * time.Second,
		SynthesisStyle:         "balanced",
		TargetWordCount:        300,
	},
	Full: {
		MaxSearchResults:       12,
		MaxSourcesToCrawl:      20,
		MaxChunksForSynthesis:  80,
		MaxSourcesForSynthesis: 8,
		MaxIterations:          2,
		EnableReflection:       true,
		EnableVerification:     true,
		EnableContradictions:   true,
		EnablePlanning:         true,
		MinQualityScore:        0.4,
		CrawlTimeout:           60 * time.Second,
		SynthesisStyle:         "comprehensive",
		TargetWordCount:        500,
	},
	Research: {
		MaxSearchResults:       15,
		MaxSourcesToCrawl:      30,
		MaxChunksForSynthesis:  120,
		MaxSourcesForSynthesis: 12,
		MaxIterations:          3,
		EnableReflection:       true,
		EnableVerification:     true,
		EnableContradictions:   true,
		EnablePlanning:         true,
		MinQualityScore:        0.3,
		CrawlTimeout:           90 * time.Second,
		SynthesisStyle:         "academic",
		TargetWordCount:        800,
	},
	Deep: {
		MaxSearchResults:       20,
		MaxSourcesToCrawl:      40,
		MaxChunksForSynthesis:  150,
		MaxSourcesForSynthesis: 15,
		MaxIterations:          5,
		EnableReflection:       true,
		EnableVerification:     true,
		EnableContradictions:   true,
		EnablePlanning:         true,
		MinQualityScore:        0.2,
		CrawlTimeout:           120 * time.Second,
		SynthesisStyle:         "academic",
		TargetWordCount:        1200,
	},
}

// ConfigFor returns the configuration for a mode. Unknown modes get the
// Balanced configuration.
func ConfigFor(mode SearchMode) Config {
	if c, ok := configs[mode]; ok {
		return c
	}
	return configs[Balanced]
}

// Describe returns a short human-readable description of a mode.
func Describe(mode SearchMode) string {
	switch mode {
	case Quick:
		return "Fastest answers, no verification (~10-15s, 2 sources)"
	case Balanced:
		return "Good balance with light verification (~1-2min, 5 sources)"
	case Full:
		return "Thorough research with full verification (~3-5min, 8 sources)"
	case Research:
		return "Academic rigor with cross-referencing (~5-10min, 12 sources)"
	case Deep:
		return "Exhaustive research with maximum accuracy (~10-20min, 15+ sources)"
	default:
		return fmt.Sprintf("Unknown mode %q", string(mode))
	}
}

// All returns every defined mode, in increasing thoroughness order.
func All() []SearchMode {
	return []SearchMode{Quick, Balanced, Full, Research, Deep}
}
