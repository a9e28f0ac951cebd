package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marba/synapse/internal/models"
)

// PromptTemplates contains the prompt templates for content generation
var PromptTemplates = struct {
	MarketingContent string
}{
	MarketingContent: `You are an expert marketing copywriter.
Write a %s post for the brand "%s" about the topic below.

Requirements:
1. Tone: %s
2. Weave in these concepts where natural: %s
3. End with a clear call to action suited to the platform
4. Provide %d alternative variations of the post

Format your response as a valid JSON object with these fields:
- text (string)
- variations (array of strings)

Topic: %s`,
}

// BuildContentPrompt creates a prompt for a generation request
func BuildContentPrompt(req models.GenerateRequest) string {
	concepts := "none"
	if len(req.Concepts) > 0 {
		escaped := make([]string, len(req.Concepts))
		for i, c := range req.Concepts {
			escaped[i] = escapeForPrompt(c)
		}
		concepts = strings.Join(escaped, ", ")
	}

	return fmt.Sprintf(PromptTemplates.MarketingContent,
		escapeForPrompt(orDefault(req.Platform, "social media")),
		escapeForPrompt(orDefault(req.BrandName, "our brand")),
		escapeForPrompt(orDefault(req.Tone, "professional")),
		concepts,
		variationCount(req),
		escapeForPrompt(req.Topic))
}

// escapeForPrompt escapes special characters for use in prompts
func escapeForPrompt(s string) string {
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.TrimSpace(s)
}

// ResponseTemplate defines the expected JSON structure of the AI's response
type ResponseTemplate struct {
	Text       string   `json:"text"`
	Variations []string `json:"variations"`
}

// parseResponse decodes a model reply, tolerating markdown code fences.
func parseResponse(response string) (*ResponseTemplate, error) {
	clean := strings.TrimSpace(response)
	if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```json")
		clean = strings.TrimPrefix(clean, "```")
		clean = strings.TrimSuffix(clean, "```")
		clean = strings.TrimSpace(clean)
	}

	var out ResponseTemplate
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Text == "" {
		return nil, fmt.Errorf("response has no text")
	}
	return &out, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
