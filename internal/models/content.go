package models

import "time"

// Generation modes accepted by the content dispatcher.
const (
	ModeFast     = "fast"
	ModeEnhanced = "enhanced"
)

// GenerateRequest is the input of the content generation dispatcher.
type GenerateRequest struct {
	Mode       string   `json:"mode" validate:"required,oneof=fast enhanced"`
	Topic      string   `json:"topic" validate:"required,max=500"`
	BrandName  string   `json:"brand_name" validate:"max=200"`
	Platform   string   `json:"platform" validate:"omitempty,oneof=instagram facebook linkedin twitter tiktok blog email"`
	Tone       string   `json:"tone" validate:"omitempty,oneof=professional casual playful urgent inspirational"`
	Concepts   []string `json:"concepts" validate:"max=12,dive,required,max=80"`
	Variations int      `json:"variations" validate:"gte=0,lte=5"`
}

// Connection links two concepts discovered by the enhanced generator.
type Connection struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Strength float64 `json:"strength"`
}

// GenerationMetadata describes how a piece of content was produced.
type GenerationMetadata struct {
	ID              string       `json:"id"`
	Mode            string       `json:"mode"`
	Platform        string       `json:"platform,omitempty"`
	Tone            string       `json:"tone,omitempty"`
	WordCount       int          `json:"word_count"`
	Model           string       `json:"model,omitempty"`
	PsychologyScore *float64     `json:"psychology_score,omitempty"`
	Connections     []Connection `json:"connections,omitempty"`
	GeneratedAt     time.Time    `json:"generated_at"`
}

// GeneratedContent is the dispatcher's output.
type GeneratedContent struct {
	Text       string             `json:"text"`
	Variations []string           `json:"variations"`
	Metadata   GenerationMetadata `json:"metadata"`
}
