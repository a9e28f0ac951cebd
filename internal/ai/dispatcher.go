// Package ai implements the content generation dispatcher: a deterministic
// template path ("fast") and a model-backed path ("enhanced").
package ai

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marba/synapse/internal/logger"
	"github.com/marba/synapse/internal/metrics"
	"github.com/marba/synapse/internal/models"
)

const templateModel = "template"

// TextGenerator is a language model backend.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Archive stores generated content.
type Archive interface {
	Save(ctx context.Context, content *models.GeneratedContent) error
}

// ValidationError wraps request validation failures.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid generation request (" + strings.Join(parts, ", ") + ")"
}

// Dispatcher routes a generation request to the path selected by its mode.
type Dispatcher struct {
	generator TextGenerator
	archive   Archive
	post      *PostProcessor
	validate  *validator.Validate
	now       func() time.Time
	newID     func() string
	log       zerolog.Logger
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithGenerator enables model-backed enhanced generation.
func WithGenerator(g TextGenerator) Option {
	return func(d *Dispatcher) { d.generator = g }
}

// WithArchive keeps a copy of every generated piece.
func WithArchive(a Archive) Option {
	return func(d *Dispatcher) { d.archive = a }
}

// WithClock overrides the generation time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithIDGenerator overrides content id generation.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) { d.newID = fn }
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		post:     NewPostProcessor(),
		validate: validator.New(),
		now:      time.Now,
		newID:    uuid.NewString,
		log:      logger.With("content-dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Generate validates req and produces content in the requested mode.
func (d *Dispatcher) Generate(ctx context.Context, req models.GenerateRequest) (*models.GeneratedContent, error) {
	if err := d.validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return nil, &ValidationError{Fields: fields}
		}
		return nil, err
	}

	var (
		content *models.GeneratedContent
		err     error
	)
	switch req.Mode {
	case models.ModeFast:
		content = d.fast(req)
	case models.ModeEnhanced:
		content, err = d.enhanced(ctx, req)
	default:
		return nil, &ValidationError{Fields: map[string]string{"Mode": "oneof"}}
	}
	if err != nil {
		return nil, err
	}

	if err := d.post.ProcessContent(content); err != nil {
		return nil, fmt.Errorf("post-processing failed: %w", err)
	}

	metrics.ContentGenerated.WithLabelValues(content.Metadata.Mode, content.Metadata.Model).Inc()

	if d.archive != nil {
		if err := d.archive.Save(ctx, content); err != nil {
			d.log.Warn().Err(err).Str("id", content.Metadata.ID).Msg("Failed to archive generated content")
		}
	}
	return content, nil
}

func (d *Dispatcher) fast(req models.GenerateRequest) *models.GeneratedContent {
	return d.fromTemplates(req, models.ModeFast)
}

func (d *Dispatcher) enhanced(ctx context.Context, req models.GenerateRequest) (*models.GeneratedContent, error) {
	var content *models.GeneratedContent

	if d.generator == nil {
		content = d.fromTemplates(req, models.ModeEnhanced)
	} else {
		start := time.Now()
		raw, err := d.generator.Generate(ctx, BuildContentPrompt(req))
		if err != nil {
			return nil, fmt.Errorf("error calling %s: %w", d.generator.Model(), err)
		}
		parsed, err := parseResponse(raw)
		if err != nil {
			return nil, fmt.Errorf("error parsing %s response: %w", d.generator.Model(), err)
		}
		d.log.Debug().
			Str("model", d.generator.Model()).
			Dur("duration", time.Since(start)).
			Msg("Generated content")

		content = d.newContent(req, models.ModeEnhanced, d.generator.Model())
		content.Text = parsed.Text
		content.Variations = parsed.Variations
	}

	score := PsychologyScore(content.Text)
	content.Metadata.PsychologyScore = &score
	content.Metadata.Connections = Connections(req.Concepts, content.Text)
	return content, nil
}

func (d *Dispatcher) fromTemplates(req models.GenerateRequest, mode string) *models.GeneratedContent {
	content := d.newContent(req, mode, templateModel)
	content.Text = composeTemplate(req, 0)

	n := variationCount(req)
	content.Variations = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		content.Variations = append(content.Variations, composeTemplate(req, i))
	}
	return content
}

func (d *Dispatcher) newContent(req models.GenerateRequest, mode, model string) *models.GeneratedContent {
	return &models.GeneratedContent{
		Variations: []string{},
		Metadata: models.GenerationMetadata{
			ID:          d.newID(),
			Mode:        mode,
			Platform:    req.Platform,
			Tone:        req.Tone,
			Model:       model,
			GeneratedAt: d.now().UTC(),
		},
	}
}

// persuasionCues groups the signals PsychologyScore looks for.
var persuasionCues = [][]string{
	{"now", "today", "last chance", "limited", "hurry", "don't miss"}, // urgency
	{"only", "exclusive", "rare", "few left", "members"},              // scarcity
	{"join", "loved by", "customers", "community", "everyone"},        // social proof
	{"you", "your"},                                                   // personal address
	{"imagine", "love", "dream", "feel", "discover"},                  // emotion
	{"learn more", "tap", "shop", "reply", "follow", "share", "read"}, // call to action
}

// PsychologyScore rates text in [0, 1] by the share of persuasion cue groups it uses.
func PsychologyScore(text string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, group := range persuasionCues {
		for _, cue := range group {
			if strings.Contains(lower, cue) {
				hits++
				break
			}
		}
	}
	return round2(float64(hits) / float64(len(persuasionCues)))
}

// Connections links every pair of concepts. Strength is the character bigram
// overlap of the two concepts, raised when both appear in text.
func Connections(concepts []string, text string) []models.Connection {
	lower := strings.ToLower(text)
	var out []models.Connection
	for i := 0; i < len(concepts); i++ {
		for j := i + 1; j < len(concepts); j++ {
			a, b := concepts[i], concepts[j]
			strength := 0.3 + 0.5*bigramSimilarity(a, b)
			if strings.Contains(lower, strings.ToLower(a)) && strings.Contains(lower, strings.ToLower(b)) {
				strength += 0.2
			}
			out = append(out, models.Connection{From: a, To: b, Strength: round2(math.Min(strength, 1))})
		}
	}
	return out
}

func bigramSimilarity(a, b string) float64 {
	sa, sb := bigrams(a), bigrams(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for g := range sa {
		if sb[g] {
			inter++
		}
	}
	return float64(inter) / float64(len(sa)+len(sb)-inter)
}

func bigrams(s string) map[string]bool {
	r := []rune(strings.ToLower(strings.TrimSpace(s)))
	out := make(map[string]bool)
	for i := 0; i+1 < len(r); i++ {
		out[string(r[i:i+2])] = true
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
