package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

type GeminiClient struct {
	client  *resty.Client
	apiKey  string
	model   string
	baseURL string
}

type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewGeminiClient(apiKey, model string, timeout time.Duration) *GeminiClient {
	return NewGeminiClientWithBaseURL(defaultGeminiBaseURL, apiKey, model, timeout)
}

// NewGeminiClientWithBaseURL points the client at another endpoint, e.g. a test server.
func NewGeminiClientWithBaseURL(baseURL, apiKey, model string, timeout time.Duration) *GeminiClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiClient{
		client:  resty.New().SetTimeout(timeout),
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
	}
}

// Model returns the configured model name.
func (g *GeminiClient) Model() string {
	return g.model
}

// Generate sends prompt to Gemini and returns the first candidate's text.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	url := fmt.Sprintf("%s/%s:generateContent", g.baseURL, g.model)

	req := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{
				Text: prompt,
			}},
		}},
		GenerationConfig: &generationConfig{
			Temperature:      0.7,
			ResponseMimeType: "application/json",
		},
	}

	var resp geminiResponse
	r, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", g.apiKey).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(url)

	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}

	if r.IsError() {
		return "", fmt.Errorf("API returned status %d", r.StatusCode())
	}

	if resp.Error != nil {
		return "", fmt.Errorf("API error: %s", resp.Error.Message)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	return resp.Candidates[0].Content.Parts[0].Text, nil
}
