package scraper

import (
	"regexp"
	"strings"
)

// BlockDetector recognises bot walls and challenge pages served in place
// of a product page.
type BlockDetector struct {
	botPatterns     []*regexp.Regexp
	captchaPatterns []*regexp.Regexp
	blockPatterns   []*regexp.Regexp
}

// BlockResult describes a detection.
type BlockResult struct {
	Blocked bool
	Kind    string // "captcha", "http_error" or "bot_wall"
	Score   float64
	Reason  string
}

// NewBlockDetector creates a new block detector
func NewBlockDetector() *BlockDetector {
	return &BlockDetector{
		botPatterns: compileAll(
			`unfortunately we are unable`,
			`access denied`,
			`bot detected`,
			`please verify you are human`,
			`security check`,
			`cloudflare`,
			`imperva`,
			`akamai`,
			`too many requests`,
			`checking your browser`,
			`ddos protection`,
			`request unsuccessful`,
		),
		captchaPatterns: compileAll(
			`captcha`,
			`turnstile`,
			`verify you are human`,
			`click the checkbox`,
		),
		blockPatterns: compileAll(
			`403 forbidden`,
			`429 too many requests`,
			`503 service unavailable`,
			`site temporarily unavailable`,
		),
	}
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// Detect scores body against the known patterns. Scores above 0.3 count as
// blocked. Short bodies with any indicator score higher since challenge
// pages carry little markup.
func (bd *BlockDetector) Detect(body string) BlockResult {
	content := strings.ToLower(body)

	score := 0.0
	var reasons []string
	kind := "bot_wall"

	for _, pattern := range bd.botPatterns {
		if pattern.MatchString(content) {
			score += 0.3
			reasons = append(reasons, pattern.String())
		}
	}

	for _, pattern := range bd.captchaPatterns {
		if pattern.MatchString(content) {
			score += 0.5
			reasons = append(reasons, "CAPTCHA detected: "+pattern.String())
			kind = "captcha"
		}
	}

	for _, pattern := range bd.blockPatterns {
		if pattern.MatchString(content) {
			score += 0.4
			reasons = append(reasons, "HTTP error: "+pattern.String())
			if kind == "bot_wall" {
				kind = "http_error"
			}
		}
	}

	if strings.Contains(content, "javascript") && strings.Contains(content, "disabled") {
		score += 0.2
		reasons = append(reasons, "JavaScript disabled warning")
	}

	if len(content) < 1000 && score > 0 {
		score += 0.2
		reasons = append(reasons, "Very short content with bot indicators")
	}

	if score > 1.0 {
		score = 1.0
	}

	return BlockResult{
		Blocked: score > 0.3,
		Kind:    kind,
		Score:   score,
		Reason:  strings.Join(reasons, "; "),
	}
}
