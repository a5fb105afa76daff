// Package insights turns portfolio snapshots into generated analysis text.
// The portfolio core only hands a plain list of records to the generator and
// treats whatever comes back as opaque display text.
package insights

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/nestegg-io/nestegg/internal/modules/portfolio"
)

// Record is one position in the snapshot handed to the generator.
type Record struct {
	Name               string  `json:"name"`
	Value              float64 `json:"value"`
	Type               string  `json:"type"`
	GainLoss           float64 `json:"gainLoss"`
	GainLossPercentage float64 `json:"gainLossPercentage"`
}

// Snapshot converts the current position list into generator input records.
func Snapshot(positions []portfolio.Position) []Record {
	records := make([]Record, 0, len(positions))
	for _, pos := range positions {
		rec := Record{
			Name:     pos.Name,
			Value:    pos.Value(),
			Type:     string(pos.Class),
			GainLoss: pos.GainLoss(),
		}
		if pos.BuyPrice > 0 {
			rec.GainLossPercentage = (pos.CurrentPrice - pos.BuyPrice) / pos.BuyPrice * 100
		}
		records = append(records, rec)
	}
	return records
}

// Generator produces analysis text for a prompt. Implemented by
// GeminiGenerator; tests substitute a fake.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator generates text through the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a generator bound to one model.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate sends a single-turn prompt and returns the first candidate's text.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from model %s", g.model)
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// Service exposes the portfolio analysis prompts. Every method degrades to a
// fixed fallback sentence on generator failure so the caller always has
// display text.
type Service struct {
	generator Generator
	log       zerolog.Logger
}

// NewService creates an insights service.
func NewService(generator Generator, log zerolog.Logger) *Service {
	return &Service{
		generator: generator,
		log:       log.With().Str("service", "insights").Logger(),
	}
}

func (s *Service) generate(ctx context.Context, kind, prompt, fallback string, positions []portfolio.Position) string {
	data, err := json.Marshal(Snapshot(positions))
	if err != nil {
		s.log.Error().Err(err).Str("kind", kind).Msg("Failed to marshal snapshot")
		return fallback
	}

	text, err := s.generator.Generate(ctx, prompt+" Portfolio data: "+string(data))
	if err != nil {
		s.log.Warn().Err(err).Str("kind", kind).Msg("Insight generation failed")
		return fallback
	}
	return text
}

// PortfolioSummary generates a brief portfolio overview.
func (s *Service) PortfolioSummary(ctx context.Context, positions []portfolio.Position) string {
	return s.generate(ctx, "summary",
		"Analyze this investment portfolio and provide a brief, insightful summary in 2-3 sentences. Focus on key trends, risks, and opportunities.",
		"Unable to generate summary at this time", positions)
}

// RiskProfile generates a risk analysis.
func (s *Service) RiskProfile(ctx context.Context, positions []portfolio.Position) string {
	return s.generate(ctx, "risk",
		"Analyze the risk profile of this investment portfolio. Consider asset allocation, volatility, and diversification. Provide specific recommendations for risk management in 2-3 sentences.",
		"Unable to analyze risk profile at this time", positions)
}

// RebalancingSuggestions generates rebalancing recommendations.
func (s *Service) RebalancingSuggestions(ctx context.Context, positions []portfolio.Position) string {
	return s.generate(ctx, "rebalancing",
		"Based on this portfolio data, suggest specific rebalancing actions to optimize the asset allocation. Consider modern portfolio theory and diversification principles. Provide actionable recommendations in 2-3 sentences.",
		"Unable to generate rebalancing suggestions at this time", positions)
}

// MarketTrends generates an analysis of market conditions against the
// portfolio.
func (s *Service) MarketTrends(ctx context.Context, positions []portfolio.Position) string {
	return s.generate(ctx, "trends",
		"Analyze how this portfolio might be affected by current market trends. Consider sector performance, market conditions, and economic indicators. Provide insights in 2-3 sentences.",
		"Unable to analyze market trends at this time", positions)
}

// InvestmentIdeas generates suggestions for complementary investments.
func (s *Service) InvestmentIdeas(ctx context.Context, positions []portfolio.Position) string {
	return s.generate(ctx, "ideas",
		"Based on this portfolio's current composition and performance, suggest potential new investment opportunities that could complement the existing assets. Consider diversification, risk profile, and current market conditions. Provide specific suggestions in 2-3 sentences.",
		"Unable to generate investment suggestions at this time", positions)
}
