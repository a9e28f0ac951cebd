package ai

import (
	"fmt"
	"strings"

	"github.com/marba/synapse/internal/models"
)

var toneOpeners = map[string][]string{
	"professional":  {"Introducing", "Announcing", "Presenting"},
	"casual":        {"Hey there!", "Quick one:", "So,"},
	"playful":       {"Guess what?", "Plot twist:", "Psst!"},
	"urgent":        {"Don't miss out:", "Last chance:", "Act now:"},
	"inspirational": {"Imagine this:", "Dream bigger:", "It starts today:"},
}

var platformCTAs = map[string]string{
	"instagram": "Tap the link in our bio to learn more.",
	"facebook":  "Share this with a friend who needs it.",
	"linkedin":  "Connect with us to learn how we can help.",
	"twitter":   "Learn more today.",
	"tiktok":    "Follow for more.",
	"blog":      "Read on to learn more.",
	"email":     "Reply to this email to get started.",
}

var bodyTemplates = []string{
	"%s %s from %s.",
	"%s %s, brought to you by %s.",
	"%s everything you love about %s, now from %s.",
}

// composeTemplate renders the variant-th deterministic template for req.
func composeTemplate(req models.GenerateRequest, variant int) string {
	tone := orDefault(req.Tone, "professional")
	openers := toneOpeners[tone]
	opener := openers[variant%len(openers)]
	// Offset the body so the first six variants are all distinct.
	body := bodyTemplates[(variant+variant/len(openers))%len(bodyTemplates)]

	var b strings.Builder
	b.WriteString(fmt.Sprintf(body, opener, req.Topic, orDefault(req.BrandName, "our team")))

	if len(req.Concepts) > 0 {
		b.WriteString(" Think ")
		b.WriteString(joinConcepts(req.Concepts))
		b.WriteString(".")
	}

	cta, ok := platformCTAs[req.Platform]
	if !ok {
		cta = "Learn more today."
	}
	b.WriteString(" ")
	b.WriteString(cta)
	return b.String()
}

func joinConcepts(concepts []string) string {
	switch len(concepts) {
	case 1:
		return concepts[0]
	case 2:
		return concepts[0] + " and " + concepts[1]
	}
	return strings.Join(concepts[:len(concepts)-1], ", ") + " and " + concepts[len(concepts)-1]
}

func variationCount(req models.GenerateRequest) int {
	if req.Variations > 0 {
		return req.Variations
	}
	return 2
}
