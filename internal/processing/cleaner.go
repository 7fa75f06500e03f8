package processing

import (
	"regexp"
	"strings"
)

// Boilerplate patterns stripped from crawled pages before chunking.
var removePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)\[Skip to .*?\]`),
	regexp.MustCompile(`(?im)\[Menu\]`),
	regexp.MustCompile(`(?im)\[Search\]`),
	regexp.MustCompile(`(?im)\[Close\]`),
	regexp.MustCompile(`(?is)Cookie\s*(Policy|Notice|Consent).*?(\n\n|\z)`),

	regexp.MustCompile(`(?i)(Share|Tweet|Pin|Follow)\s*(on|us)?\s*(Facebook|Twitter|LinkedIn|Instagram|Pinterest)?`),
	regexp.MustCompile(`(?i)Like\s+\d+`),
	regexp.MustCompile(`(?i)Share\s+\d+`),

	regexp.MustCompile(`(?i)Advertisement`),
	regexp.MustCompile(`(?i)Sponsored\s*(Content|Post)?`),

	regexp.MustCompile(`(?i)All Rights Reserved\.?`),
	regexp.MustCompile(`(?im)©\s*\d{4}.*?(\n|\z)`),
	regexp.MustCompile(`(?i)Terms\s*(of\s*)?(Service|Use)`),
	regexp.MustCompile(`(?i)Privacy\s*Policy`),

	regexp.MustCompile(`\[.*?\]\(\s*\)`),
	regexp.MustCompile(`\[\s*\]`),
}

var (
	multiSpaceRe = regexp.MustCompile(` {2,}`)
	multiBlankRe = regexp.MustCompile(`\n{3,}`)

	markdownLinkRe   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	markdownStyleRe  = regexp.MustCompile(`[*_]{1,2}([^*_]+)[*_]{1,2}`)
	markdownHeaderRe = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	codeSpanRe       = regexp.MustCompile("`[^`]+`")
	specialCharRe    = regexp.MustCompile(`[^\w\s.,!?;:\-'"()]`)
	whitespaceRe     = regexp.MustCompile(`\s+`)
)

// Cleaner strips navigation, ads and other boilerplate from raw page
// text so downstream chunking sees only content.
type Cleaner struct {
	minParagraphLength int
	removeShortLines   bool
}

// NewCleaner builds a cleaner with the default thresholds.
func NewCleaner() *Cleaner {
	return &Cleaner{
		minParagraphLength: 50,
		removeShortLines:   true,
	}
}

// Clean removes boilerplate and normalizes whitespace.
func (c *Cleaner) Clean(content string) string {
	if content == "" {
		return ""
	}
	for _, re := range removePatterns {
		content = re.ReplaceAllString(content, "")
	}
	content = normalizeWhitespace(content)
	if c.removeShortLines {
		content = c.dropShortLines(content)
	}
	content = multiBlankRe.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// ExtractMainContent keeps the densest paragraphs, dropping header and
// footer regions whose word density falls below 30% of the average.
func (c *Cleaner) ExtractMainContent(content string) string {
	paragraphs := strings.Split(content, "\n\n")
	if len(paragraphs) <= 3 {
		return content
	}

	type scoredPara struct {
		score float64
		text  string
	}
	scored := make([]scoredPara, 0, len(paragraphs))
	total := 0.0
	for _, para := range paragraphs {
		score := float64(len(strings.Fields(para)))
		if strings.ContainsAny(para, ".!?") {
			score *= 1.5
		}
		scored = append(scored, scoredPara{score, para})
		total += score
	}

	threshold := total / float64(len(scored)) * 0.3
	kept := make([]string, 0, len(scored))
	for _, sp := range scored {
		if sp.score >= threshold {
			kept = append(kept, sp.text)
		}
	}
	return strings.Join(kept, "\n\n")
}

// CleanForEmbedding applies aggressive cleaning for semantic matching:
// markdown formatting, code spans and special characters are removed.
func (c *Cleaner) CleanForEmbedding(content string) string {
	content = c.Clean(content)
	content = markdownLinkRe.ReplaceAllString(content, "$1")
	content = markdownStyleRe.ReplaceAllString(content, "$1")
	content = markdownHeaderRe.ReplaceAllString(content, "")
	content = codeSpanRe.ReplaceAllString(content, "")
	content = specialCharRe.ReplaceAllString(content, " ")
	content = whitespaceRe.ReplaceAllString(content, " ")
	return strings.TrimSpace(content)
}

func normalizeWhitespace(content string) string {
	content = strings.ReplaceAll(content, "\t", " ")
	content = multiSpaceRe.ReplaceAllString(content, " ")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return content
}

func (c *Cleaner) dropShortLines(content string) string {
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		switch {
		case stripped == "":
			kept = append(kept, line) // blank lines separate paragraphs
		case strings.HasPrefix(stripped, "#"):
			kept = append(kept, line)
		case hasListPrefix(stripped):
			kept = append(kept, line)
		case len(stripped) >= c.minParagraphLength:
			kept = append(kept, line)
		case strings.HasSuffix(stripped, ".") || strings.HasSuffix(stripped, "!") ||
			strings.HasSuffix(stripped, "?") || strings.HasSuffix(stripped, ":"):
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func hasListPrefix(s string) bool {
	for _, prefix := range []string{"-", "*", "•", "1.", "2.", "3."} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
