package ai

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/marba/synapse/internal/models"
)

var (
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	scriptBlocks  = regexp.MustCompile(`(?is)<(script|style|iframe)[^>]*>.*?</(script|style|iframe)>`)
	dangerousTags = regexp.MustCompile(`(?i)</?(script|iframe|object|embed|link|meta|style)[^>]*>`)
	inlineEvents  = regexp.MustCompile(`(?i)\son[a-z]+\s*=\s*("[^"]*"|'[^']*')`)
)

// platformLimits caps text length (in characters) per platform.
var platformLimits = map[string]int{
	"twitter":   280,
	"instagram": 2200,
	"tiktok":    2200,
	"linkedin":  3000,
}

type PostProcessor struct {
	minTextLength int
}

func NewPostProcessor() *PostProcessor {
	return &PostProcessor{minTextLength: 10}
}

// ProcessContent validates and cleans generated content in place.
func (p *PostProcessor) ProcessContent(content *models.GeneratedContent) error {
	content.Text = p.cleanText(content.Text)
	if len(content.Text) < p.minTextLength {
		return fmt.Errorf("content too short, minimum %d characters required", p.minTextLength)
	}

	limit := platformLimits[content.Metadata.Platform]
	content.Text = truncate(content.Text, limit)

	variations := make([]string, 0, len(content.Variations))
	for _, v := range content.Variations {
		v = truncate(p.cleanText(v), limit)
		if v != "" && v != content.Text {
			variations = append(variations, v)
		}
	}
	content.Variations = variations

	content.Metadata.WordCount = len(strings.Fields(content.Text))
	return nil
}

// cleanText strips markup that must never reach a client and normalizes whitespace.
func (p *PostProcessor) cleanText(s string) string {
	s = scriptBlocks.ReplaceAllString(s, "")
	s = dangerousTags.ReplaceAllString(s, "")
	s = inlineEvents.ReplaceAllString(s, "")
	s = controlChars.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")

	// Keep paragraph breaks, collapse everything else.
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit-3])) + "..."
}
