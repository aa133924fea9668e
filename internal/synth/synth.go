// Package synth turns retrieved passages into a cited answer with a confidence label.
package synth

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hyperjump/blueprint/internal/errs"
	"github.com/hyperjump/blueprint/internal/llm"
	"github.com/hyperjump/blueprint/internal/models"
	"github.com/hyperjump/blueprint/internal/retry"
	"go.uber.org/zap"
)

const (
	DefaultMaxSources         = 3
	DefaultTemperature        = 0.1
	DefaultLowScoreThreshold  = 0.25
	DefaultHighScoreThreshold = 0.5
)

// NoResultsAnswer is returned when retrieval found nothing in the namespace.
const NoResultsAnswer = "I could not find any relevant drawings for this question. Upload the drawing set or check the namespace and try again."

// Synthesizer asks the generation capability for an answer grounded in retrieval hits.
type Synthesizer struct {
	generator     llm.Generator
	policy        retry.Policy
	temperature   float64
	maxSources    int
	lowThreshold  float64
	highThreshold float64
	guardrail     bool
	logger        *zap.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithRetryPolicy sets the policy for generation calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Synthesizer) { s.policy = p }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *Synthesizer) { s.temperature = t }
}

// WithMaxSources caps the number of sources in a result.
func WithMaxSources(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.maxSources = n
		}
	}
}

// WithScoreThresholds sets the best-hit scores below which confidence is forced low or capped at medium.
func WithScoreThresholds(low, high float64) Option {
	return func(s *Synthesizer) {
		s.lowThreshold = low
		s.highThreshold = high
	}
}

// WithMeasurementGuardrail toggles the N.T.S. and scale checks for measurement questions.
func WithMeasurementGuardrail(enabled bool) Option {
	return func(s *Synthesizer) { s.guardrail = enabled }
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synthesizer) { s.logger = l }
}

// NewSynthesizer creates a synthesizer backed by generator.
func NewSynthesizer(generator llm.Generator, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		generator:     generator,
		policy:        retry.DefaultPolicy(),
		temperature:   DefaultTemperature,
		maxSources:    DefaultMaxSources,
		lowThreshold:  DefaultLowScoreThreshold,
		highThreshold: DefaultHighScoreThreshold,
		guardrail:     true,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.Name == "" {
		s.policy.Name = "generation"
	}
	s.policy.Logger = s.logger
	return s
}

// Answer synthesizes a response to query from hits, which must be ordered by non-increasing score.
// With no hits the generator is not called and the result has low confidence and no citations.
// Generation failures after retries are returned as errs.ErrGenerationUnavailable.
func (s *Synthesizer) Answer(ctx context.Context, query string, hits []models.RetrievalHit, window []models.ConversationTurn) (*models.AnswerResult, error) {
	if len(hits) == 0 {
		return &models.AnswerResult{
			Answer:             NoResultsAnswer,
			Confidence:         models.ConfidenceLow,
			DrawingsReferenced: []string{},
			Sources:            []models.Source{},
		}, nil
	}

	req := llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildPrompt(query, hits, window)}},
		Temperature: s.temperature,
		JSON:        true,
	}
	var raw string
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		resp, err := s.generator.Generate(ctx, req)
		if err != nil {
			return err
		}
		raw = resp.Content
		return nil
	})
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrGenerationUnavailable, fmt.Errorf("failed to generate answer: %w", err))
	}

	result := &models.AnswerResult{}
	parsed, ok := parseModelAnswer(raw)
	if ok {
		result.Answer = parsed.Answer
		result.Confidence, _ = models.ParseConfidence(parsed.Confidence)
		result.DrawingsReferenced = citedDrawings(parsed.DrawingsReferenced, s.supporting(hits))
	} else {
		s.logger.Warn("model response is not valid JSON", zap.Int("length", len(raw)))
		result.Answer = strings.TrimSpace(raw)
		result.Confidence = models.ConfidenceLow
		result.DrawingsReferenced = []string{}
		result.Warnings = append(result.Warnings, "The model response could not be parsed; treat this answer with caution.")
	}
	result.Confidence = s.scoreCap(result.Confidence, hits)

	if s.guardrail {
		check := CheckMeasurement(query, hits)
		result.Warnings = append(result.Warnings, check.Warnings...)
		if check.ForceLow {
			result.Confidence = models.ConfidenceLow
		}
	}

	result.Sources, result.MoreSources = collectSources(hits, s.maxSources)
	s.logger.Debug("answer synthesized",
		zap.String("confidence", string(result.Confidence)),
		zap.Int("sources", len(result.Sources)),
		zap.Int("drawings", len(result.DrawingsReferenced)))
	return result, nil
}

// scoreCap bounds the model's self-reported confidence by retrieval quality.
func (s *Synthesizer) scoreCap(c models.Confidence, hits []models.RetrievalHit) models.Confidence {
	best := hits[0].Score
	for _, h := range hits[1:] {
		best = max(best, h.Score)
	}
	switch {
	case best < s.lowThreshold:
		return models.ConfidenceLow
	case best < s.highThreshold:
		return c.Min(models.ConfidenceMedium)
	default:
		return c
	}
}

// supporting returns the hits relevant enough to back a citation. When every hit is
// below the low threshold the model cannot cite any drawing.
func (s *Synthesizer) supporting(hits []models.RetrievalHit) []models.RetrievalHit {
	out := make([]models.RetrievalHit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= s.lowThreshold {
			out = append(out, h)
		}
	}
	return out
}

// citedDrawings keeps the names the model cited that match a hit, spelled as in the hit,
// deduplicated in order of first mention. A citation may omit the file extension.
func citedDrawings(cited []string, hits []models.RetrievalHit) []string {
	known := make(map[string]string, len(hits)*2)
	for _, h := range hits {
		name := h.DrawingName
		known[strings.ToLower(name)] = name
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if _, ok := known[strings.ToLower(stem)]; !ok {
			known[strings.ToLower(stem)] = name
		}
	}
	out := []string{}
	seen := map[string]bool{}
	for _, c := range cited {
		name, ok := known[strings.ToLower(strings.TrimSpace(c))]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// collectSources returns the first occurrence of each (drawing, page) pair up to limit,
// and how many further distinct pairs were left out.
func collectSources(hits []models.RetrievalHit, limit int) ([]models.Source, int) {
	type key struct {
		drawing string
		page    int
	}
	sources := []models.Source{}
	seen := map[key]bool{}
	more := 0
	for _, h := range hits {
		k := key{h.DrawingName, h.Page}
		if seen[k] {
			continue
		}
		seen[k] = true
		if len(sources) < limit {
			sources = append(sources, models.Source{DrawingName: h.DrawingName, Page: h.Page, Score: h.Score})
		} else {
			more++
		}
	}
	return sources, more
}
