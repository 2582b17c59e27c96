package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/vantage/internal/config"
	"github.com/aristath/vantage/internal/domain"
	"github.com/rs/zerolog"
)

// Assembler turns an analysis bundle into the run report: total score,
// decision, sized allocation and the plain-text narrative.
type Assembler struct {
	policy config.ReportPolicy
	log    zerolog.Logger
}

// NewAssembler creates a report assembler from policy.
func NewAssembler(policy config.ReportPolicy, log zerolog.Logger) *Assembler {
	return &Assembler{
		policy: policy,
		log:    log.With().Str("service", "report").Logger(),
	}
}

// Assemble maps the composite score onto the 0-100 decision scale,
// picks the allocation band for the decision and applies the risk
// layer's position-sizing factor. A non-positive factor means the risk
// layer had no view and sizing stays at 1.
func (a *Assembler) Assemble(runID string, bundle domain.AnalysisBundle, positionSizing float64) Report {
	if positionSizing <= 0 {
		positionSizing = 1
	}

	total := clampTotal(50 + 50*bundle.CompositeScore)
	decision := a.decide(total)
	allocation := applySizing(a.allocationFor(decision), positionSizing)

	unavailable := make([]UnavailableLayer, 0)
	for _, ls := range bundle.UnavailableLayers() {
		unavailable = append(unavailable, UnavailableLayer{Layer: ls.Layer, Reason: ls.Reason})
	}

	rep := Report{
		ID:             runID,
		GeneratedAt:    bundle.GeneratedAt,
		Bundle:         bundle,
		Decision:       decision,
		TotalScore:     total,
		Allocation:     allocation,
		PositionSizing: positionSizing,
		Unavailable:    unavailable,
	}
	rep.Narrative = a.narrative(rep)

	a.log.Info().
		Str("run_id", runID).
		Str("decision", string(decision)).
		Float64("total_score", total).
		Int("unavailable_layers", len(unavailable)).
		Msg("Assembled report")

	return rep
}

func (a *Assembler) decide(total float64) Decision {
	p := a.policy
	switch {
	case total >= p.StrongBuyThreshold:
		return DecisionStrongBuy
	case total >= p.BuyThreshold:
		return DecisionBuy
	case total >= p.HoldThreshold:
		return DecisionHold
	case total >= p.ReduceThreshold:
		return DecisionReduce
	default:
		return DecisionSell
	}
}

func (a *Assembler) allocationFor(decision Decision) config.AllocationBand {
	switch decision {
	case DecisionStrongBuy:
		return a.policy.StrongBuyAllocation
	case DecisionBuy:
		return a.policy.BuyAllocation
	case DecisionHold:
		return a.policy.HoldAllocation
	case DecisionReduce:
		return a.policy.ReduceAllocation
	default:
		return a.policy.SellAllocation
	}
}

// actionFor is the one-line instruction printed next to the decision
func actionFor(decision Decision) string {
	switch decision {
	case DecisionStrongBuy:
		return "aggressively add risk assets"
	case DecisionBuy:
		return "increase risk asset weight"
	case DecisionHold:
		return "maintain current positions"
	case DecisionReduce:
		return "trim risk asset weight"
	default:
		return "sharply reduce risk assets"
	}
}

// applySizing scales the equity slice by the risk factor. Cash is the
// only buffer: equities can grow at most by the cash slice, and what
// equities give up flows back to cash, so the band still sums to 100.
func applySizing(band config.AllocationBand, factor float64) config.AllocationBand {
	adjusted := band.Equities * factor
	if max := band.Equities + band.Cash; adjusted > max {
		adjusted = max
	}
	if adjusted < 0 {
		adjusted = 0
	}
	return config.AllocationBand{
		Equities: adjusted,
		Bonds:    band.Bonds,
		Cash:     band.Equities + band.Cash - adjusted,
	}
}

func (a *Assembler) narrative(rep Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "ANALYSIS RUN %s\n", rep.ID)
	fmt.Fprintf(&b, "generated %s\n\n", rep.GeneratedAt.UTC().Format(time.RFC3339))

	b.WriteString("LAYERS\n")
	for _, ls := range rep.Bundle.Layers {
		if !ls.Available() {
			fmt.Fprintf(&b, "  %-10s unavailable (%s)\n", ls.Layer, ls.Reason)
			continue
		}
		fmt.Fprintf(&b, "  %-10s %-9s score %+.2f  confidence %.2f\n",
			ls.Layer, ls.Status, *ls.Score, *ls.Confidence)
		if ls.Summary != "" {
			fmt.Fprintf(&b, "             %s\n", ls.Summary)
		}
	}

	b.WriteString("\nCOMPOSITE\n")
	fmt.Fprintf(&b, "  score %+.2f  confidence %.2f\n", rep.Bundle.CompositeScore, rep.Bundle.CompositeConfidence)

	b.WriteString("\nDECISION\n")
	fmt.Fprintf(&b, "  total score %.1f/100\n", rep.TotalScore)
	fmt.Fprintf(&b, "  %s: %s\n", rep.Decision, actionFor(rep.Decision))
	fmt.Fprintf(&b, "  allocation: equities %.0f%%, bonds %.0f%%, cash %.0f%% (position sizing x%.2f)\n",
		rep.Allocation.Equities, rep.Allocation.Bonds, rep.Allocation.Cash, rep.PositionSizing)

	return b.String()
}

func clampTotal(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}
