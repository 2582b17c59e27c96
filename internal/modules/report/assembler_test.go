package report

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/aristath/vantage/internal/config"
	"github.com/aristath/vantage/internal/domain"
	"github.com/rs/zerolog"
)

var testGeneratedAt = time.Date(2025, 8, 20, 18, 0, 0, 0, time.UTC)

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	return NewAssembler(config.NewDefaultPolicy().Report, zerolog.Nop())
}

// bundleWithComposite builds a minimal bundle whose composite score is
// set directly; layer content only matters for narrative tests.
func bundleWithComposite(composite float64) domain.AnalysisBundle {
	macro := domain.NewLayerScore(domain.LayerMacro, composite, 0.8, testGeneratedAt)
	macro.Summary = "macro regime summary line"
	risk := domain.NewLayerScore(domain.LayerRisk, composite, 0.85, testGeneratedAt)

	return domain.AnalysisBundle{
		GeneratedAt: testGeneratedAt,
		Layers: []domain.LayerScore{
			macro,
			domain.UnavailableLayerScore(domain.LayerIndustry, testGeneratedAt, domain.ReasonTimeout),
			risk,
			domain.UnavailableLayerScore(domain.LayerSentiment, testGeneratedAt, domain.ReasonMissingData),
		},
		CompositeScore:      composite,
		CompositeConfidence: 0.6,
	}
}

func TestAssembleDecisionBands(t *testing.T) {
	tests := []struct {
		name      string
		composite float64
		wantTotal float64
		want      Decision
	}{
		{"strong buy", 0.8, 90, DecisionStrongBuy},
		{"strong buy lower edge", 0.5, 75, DecisionStrongBuy},
		{"buy", 0.3, 65, DecisionBuy},
		{"buy lower edge", 0.2, 60, DecisionBuy},
		{"hold at neutral", 0, 50, DecisionHold},
		{"hold lower edge", -0.2, 40, DecisionHold},
		{"reduce", -0.4, 30, DecisionReduce},
		{"reduce lower edge", -0.5, 25, DecisionReduce},
		{"sell below reduce", -0.52, 24, DecisionSell},
		{"sell at floor", -1, 0, DecisionSell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asm := newTestAssembler(t)

			rep := asm.Assemble("run-1", bundleWithComposite(tt.composite), 1)
			if math.Abs(rep.TotalScore-tt.wantTotal) > 1e-9 {
				t.Errorf("TotalScore = %v, want %v", rep.TotalScore, tt.wantTotal)
			}
			if rep.Decision != tt.want {
				t.Errorf("Decision = %v, want %v", rep.Decision, tt.want)
			}
		})
	}
}

func TestAssembleAllocationFollowsDecision(t *testing.T) {
	asm := newTestAssembler(t)

	rep := asm.Assemble("run-1", bundleWithComposite(0.3), 1)
	want := config.NewDefaultPolicy().Report.BuyAllocation
	if rep.Allocation != want {
		t.Errorf("Allocation = %+v, want the BUY band %+v", rep.Allocation, want)
	}
}

func TestApplySizing(t *testing.T) {
	band := config.AllocationBand{Equities: 60, Bonds: 30, Cash: 10}

	tests := []struct {
		name   string
		factor float64
		want   config.AllocationBand
	}{
		{"neutral factor unchanged", 1.0, config.AllocationBand{Equities: 60, Bonds: 30, Cash: 10}},
		{"low risk adds from cash", 1.1, config.AllocationBand{Equities: 66, Bonds: 30, Cash: 4}},
		{"cap at equities plus cash", 1.5, config.AllocationBand{Equities: 70, Bonds: 30, Cash: 0}},
		{"high risk moves to cash", 0.4, config.AllocationBand{Equities: 24, Bonds: 30, Cash: 46}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applySizing(band, tt.factor)
			if math.Abs(got.Equities-tt.want.Equities) > 1e-9 ||
				math.Abs(got.Bonds-tt.want.Bonds) > 1e-9 ||
				math.Abs(got.Cash-tt.want.Cash) > 1e-9 {
				t.Errorf("applySizing(%v) = %+v, want %+v", tt.factor, got, tt.want)
			}
			if math.Abs(got.Total()-100) > 1e-9 {
				t.Errorf("sized band sums to %v, want 100", got.Total())
			}
		})
	}
}

func TestAssembleNonPositiveSizingDefaultsToOne(t *testing.T) {
	asm := newTestAssembler(t)

	rep := asm.Assemble("run-1", bundleWithComposite(0), 0)
	if rep.PositionSizing != 1 {
		t.Errorf("PositionSizing = %v, want 1", rep.PositionSizing)
	}
	if rep.Allocation != config.NewDefaultPolicy().Report.HoldAllocation {
		t.Errorf("Allocation = %+v, want the unsized HOLD band", rep.Allocation)
	}
}

func TestAssembleListsUnavailableLayers(t *testing.T) {
	asm := newTestAssembler(t)

	rep := asm.Assemble("run-1", bundleWithComposite(0.1), 1)
	if len(rep.Unavailable) != 2 {
		t.Fatalf("len(Unavailable) = %d, want 2", len(rep.Unavailable))
	}
	if rep.Unavailable[0].Layer != domain.LayerIndustry || rep.Unavailable[0].Reason != domain.ReasonTimeout {
		t.Errorf("Unavailable[0] = %+v, want industry/timeout", rep.Unavailable[0])
	}
	if rep.Unavailable[1].Layer != domain.LayerSentiment || rep.Unavailable[1].Reason != domain.ReasonMissingData {
		t.Errorf("Unavailable[1] = %+v, want sentiment/missing_data", rep.Unavailable[1])
	}
}

func TestNarrativeRendersLayersAndDecision(t *testing.T) {
	asm := newTestAssembler(t)

	rep := asm.Assemble("run-42", bundleWithComposite(0.3), 1)

	for _, want := range []string{
		"ANALYSIS RUN run-42",
		"macro",
		"macro regime summary line",
		"industry   unavailable (timeout)",
		"sentiment  unavailable (missing_data)",
		"total score 65.0/100",
		"BUY: increase risk asset weight",
		"equities 60%, bonds 30%, cash 10%",
	} {
		if !strings.Contains(rep.Narrative, want) {
			t.Errorf("narrative missing %q:\n%s", want, rep.Narrative)
		}
	}
}

func TestTotalScoreClampedToScale(t *testing.T) {
	asm := newTestAssembler(t)

	if rep := asm.Assemble("run-1", bundleWithComposite(1), 1); rep.TotalScore != 100 {
		t.Errorf("TotalScore = %v, want 100", rep.TotalScore)
	}
	if rep := asm.Assemble("run-1", bundleWithComposite(-1), 1); rep.TotalScore != 0 {
		t.Errorf("TotalScore = %v, want 0", rep.TotalScore)
	}
}
