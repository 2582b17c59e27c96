package industry

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aristath/vantage/internal/domain"
	"github.com/rs/zerolog"
)

// Completer is the slice of the language-model client this layer uses.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

const systemPrompt = "You are an equity sector strategist for a long-horizon portfolio. " +
	"Respond with a single JSON object and nothing else."

const promptTemplate = `Market context:
- macro regime: %s
- equity index 1-month return: %+.1f%%
- VIX: %.1f
- short rate: %.2f%%

Respond with JSON only, in exactly this shape:
{"market_cycle": "EARLY_EXPANSION|MID_EXPANSION|LATE_EXPANSION|RECESSION",
 "rotation_signal": "RISK_ON|RISK_OFF|NEUTRAL",
 "sectors": [{"name": "...", "score": 0.0, "reasoning": "..."}]}

Score up to six sectors between 0 and 1 where 1 is strongest conviction.`

// cycleConfidence maps the model's cycle call to a confidence level.
// Expansion calls are easier to corroborate than turning points.
var cycleConfidence = map[string]float64{
	"EARLY_EXPANSION": 0.8,
	"MID_EXPANSION":   0.8,
	"LATE_EXPANSION":  0.7,
	"RECESSION":       0.7,
}

const (
	defaultCycleConfidence = 0.6
	fallbackConfidence     = 0.4
)

// Service produces the industry layer score: sector convictions from
// the language model when available, a static defensive playbook when
// it is not. Only malformed or out-of-contract model output makes the
// layer unavailable.
type Service struct {
	completer Completer
	log       zerolog.Logger
}

// NewService creates an industry service. A nil completer means no
// model is configured and every run takes the playbook path.
func NewService(completer Completer, log zerolog.Logger) *Service {
	return &Service{
		completer: completer,
		log:       log.With().Str("service", "industry").Logger(),
	}
}

// Analyze asks the sector model for its view and maps the top sector
// convictions onto the shared [-1, 1] scale. Upstream failures fall
// back to the playbook with degraded status; a cancelled context and
// out-of-contract output propagate as errors.
func (s *Service) Analyze(ctx context.Context, in Input) (domain.LayerScore, Analysis, error) {
	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	if s.completer == nil {
		return s.playbookFallback(asOf, "no model configured")
	}

	raw, err := s.completer.Complete(ctx, systemPrompt, buildPrompt(in))
	if err != nil {
		if ctx.Err() != nil {
			return domain.LayerScore{}, Analysis{}, ctx.Err()
		}
		return s.playbookFallback(asOf, fmt.Sprintf("model call failed: %v", err))
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		return domain.LayerScore{}, Analysis{}, err
	}

	score := sectorScore(analysis.Sectors)
	confidence, ok := cycleConfidence[analysis.MarketCycle]
	if !ok {
		confidence = defaultCycleConfidence
	}

	s.log.Debug().
		Str("cycle", analysis.MarketCycle).
		Str("rotation", analysis.RotationSignal).
		Int("sectors", len(analysis.Sectors)).
		Float64("score", score).
		Msg("Parsed sector analysis")

	ls := domain.NewLayerScore(domain.LayerIndustry, score, confidence, asOf)
	ls.Summary = fmt.Sprintf("%s cycle, rotation %s, top sector %s",
		analysis.MarketCycle, analysis.RotationSignal, topSectorName(analysis.Sectors))
	return ls, analysis, nil
}

func (s *Service) playbookFallback(asOf time.Time, cause string) (domain.LayerScore, Analysis, error) {
	analysis := playbookAnalysis()
	score := sectorScore(analysis.Sectors)

	s.log.Info().Str("cause", cause).Msg("Using sector playbook fallback")

	ls := domain.DegradedLayerScore(domain.LayerIndustry, score, fallbackConfidence, asOf, domain.ReasonUpstreamError)
	ls.Summary = fmt.Sprintf("sector playbook fallback (%s)", cause)
	return ls, analysis, nil
}

func buildPrompt(in Input) string {
	summary := in.MacroSummary
	if summary == "" {
		summary = "unknown"
	}
	return fmt.Sprintf(promptTemplate, summary, in.IndexReturn1M*100, in.VolLevel, in.ShortRate*100)
}

// parseAnalysis decodes the model's JSON, tolerating a surrounding
// code fence, and enforces the output contract: at least one sector,
// every score inside [0, 1].
func parseAnalysis(raw string) (Analysis, error) {
	const op = "parse_industry_analysis"

	var analysis Analysis
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &analysis); err != nil {
		return Analysis{}, domain.NewInvalidLayerOutput(op, fmt.Sprintf("malformed sector analysis: %v", err))
	}
	if len(analysis.Sectors) == 0 {
		return Analysis{}, domain.NewInvalidLayerOutput(op, "analysis contains no sectors")
	}
	for _, sec := range analysis.Sectors {
		if math.IsNaN(sec.Score) || sec.Score < 0 || sec.Score > 1 {
			return Analysis{}, domain.NewInvalidLayerOutput(op,
				fmt.Sprintf("sector %q score %v outside [0,1]", sec.Name, sec.Score))
		}
	}

	analysis.Source = "model"
	return analysis, nil
}

// stripCodeFences unwraps a ```json ... ``` block when the model adds
// one despite the JSON-only instruction.
func stripCodeFences(text string) string {
	if !strings.Contains(text, "```") {
		return strings.TrimSpace(text)
	}
	parts := strings.SplitN(text, "```", 3)
	if len(parts) < 2 {
		return strings.TrimSpace(text)
	}
	body := strings.TrimPrefix(parts[1], "json")
	return strings.TrimSpace(body)
}

// sectorScore maps the mean of the top three sector convictions from
// [0, 1] onto the shared [-1, 1] layer scale.
func sectorScore(sectors []SectorView) float64 {
	sorted := make([]SectorView, len(sectors))
	copy(sorted, sectors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	n := 3
	if len(sorted) < n {
		n = len(sorted)
	}
	sum := 0.0
	for _, sec := range sorted[:n] {
		sum += sec.Score
	}
	return 2*(sum/float64(n)) - 1
}

func topSectorName(sectors []SectorView) string {
	top := sectors[0]
	for _, sec := range sectors[1:] {
		if sec.Score > top.Score {
			top = sec
		}
	}
	return top.Name
}

// playbookAnalysis is the static defensive tilt used when the model is
// unreachable. The top three scores average exactly 0.5 so the layer
// reads neutral rather than inventing a view.
func playbookAnalysis() Analysis {
	return Analysis{
		MarketCycle:    "MID_EXPANSION",
		RotationSignal: "NEUTRAL",
		Source:         "playbook",
		Sectors: []SectorView{
			{Name: "Consumer Staples", Score: 0.55, Reasoning: "demand holds across cycles"},
			{Name: "Healthcare", Score: 0.5, Reasoning: "earnings stability, low rate sensitivity"},
			{Name: "Utilities", Score: 0.45, Reasoning: "bond proxy, lags if rates climb"},
			{Name: "Technology", Score: 0.4, Reasoning: "duration risk without a rate anchor"},
			{Name: "Financials", Score: 0.4, Reasoning: "spread income against credit cycle risk"},
			{Name: "Energy", Score: 0.35, Reasoning: "commodity beta with no directional view"},
		},
	}
}
