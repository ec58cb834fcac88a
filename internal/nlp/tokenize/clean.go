package tokenize

import (
	"regexp"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// Cleaning patterns
// ─────────────────────────────────────────────────────────────────────────────

var (
	// Project Gutenberg boilerplate markers. Everything before the START
	// marker line and after the END marker line is front/back matter.
	reGutenbergStart = regexp.MustCompile(`(?m)^\*{3}\s*START OF (?:THE|THIS) PROJECT GUTENBERG EBOOK[^\n]*$`)
	reGutenbergEnd   = regexp.MustCompile(`(?m)^\*{3}\s*END OF (?:THE|THIS) PROJECT GUTENBERG EBOOK[^\n]*$`)

	// Bracketed numeric citation markers: [3], [3,4], [3, 4, 5].
	reCitation = regexp.MustCompile(`\[\d+(?:\s*,\s*\d+)*\]`)

	// Three or more consecutive newlines collapse to one blank line.
	reBlankRuns = regexp.MustCompile(`\n{3,}`)
)

// CleanStats reports what a cleaning pass removed.
type CleanStats struct {
	GutenbergTrimmed bool `json:"gutenberg_trimmed"`
	CitationsRemoved int  `json:"citations_removed"`
	RunesIn          int  `json:"runes_in"`
	RunesOut         int  `json:"runes_out"`
}

// Cleaner normalizes raw text before tokenization. Cleaning happens on the
// raw string, ahead of any offset bookkeeping, so the cleaned text is the
// document text and offsets never need remapping.
type Cleaner struct {
	stripGutenberg     bool
	stripCitations     bool
	collapseBlankLines bool
}

// CleanOption configures a Cleaner.
type CleanOption func(*Cleaner)

// WithStripGutenberg toggles removal of Project Gutenberg front/back matter.
func WithStripGutenberg(on bool) CleanOption {
	return func(c *Cleaner) { c.stripGutenberg = on }
}

// WithStripCitations toggles removal of bracketed numeric citations.
func WithStripCitations(on bool) CleanOption {
	return func(c *Cleaner) { c.stripCitations = on }
}

// WithCollapseBlankLines toggles collapsing runs of blank lines.
func WithCollapseBlankLines(on bool) CleanOption {
	return func(c *Cleaner) { c.collapseBlankLines = on }
}

// NewCleaner creates a Cleaner with every pass enabled.
func NewCleaner(opts ...CleanOption) *Cleaner {
	c := &Cleaner{
		stripGutenberg:     true,
		stripCitations:     true,
		collapseBlankLines: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clean normalizes text and reports what was removed. Line endings are
// always normalized to \n and outer whitespace is trimmed.
func (c *Cleaner) Clean(text string) (string, CleanStats) {
	stats := CleanStats{RunesIn: len([]rune(text))}

	out := strings.ReplaceAll(text, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")

	if c.stripGutenberg {
		out, stats.GutenbergTrimmed = stripGutenberg(out)
	}

	if c.stripCitations {
		matches := reCitation.FindAllStringIndex(out, -1)
		if len(matches) > 0 {
			stats.CitationsRemoved = len(matches)
			out = reCitation.ReplaceAllString(out, "")
		}
	}

	if c.collapseBlankLines {
		out = reBlankRuns.ReplaceAllString(out, "\n\n")
	}

	out = strings.TrimSpace(out)
	stats.RunesOut = len([]rune(out))
	return out, stats
}

// stripGutenberg removes front matter up to and including the START marker
// line and back matter from the END marker line onward. Text without both
// markers is returned untouched.
func stripGutenberg(text string) (string, bool) {
	start := reGutenbergStart.FindStringIndex(text)
	if start == nil {
		return text, false
	}
	end := reGutenbergEnd.FindStringIndex(text)
	if end == nil || end[0] <= start[1] {
		return text, false
	}
	return text[start[1]:end[0]], true
}

// Clean normalizes text with the default cleaner configuration.
func Clean(text string) (string, CleanStats) {
	return NewCleaner().Clean(text)
}
