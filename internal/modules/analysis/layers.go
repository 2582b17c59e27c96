package analysis

import (
	"context"

	"github.com/aristath/vantage/internal/domain"
	"github.com/aristath/vantage/internal/modules/industry"
	"github.com/aristath/vantage/internal/modules/macro"
	"github.com/aristath/vantage/internal/modules/risk"
	"github.com/aristath/vantage/internal/modules/sentiment"
)

// The layer adapters bind each analysis service to the inputs gathered
// for one run. Macro and risk are pure computations, so their adapters
// ignore the context; the runner's deadline still bounds them.

type macroLayer struct {
	svc *macro.Service
	in  macro.Input
}

func (l macroLayer) Name() domain.LayerName { return domain.LayerMacro }

func (l macroLayer) Analyze(_ context.Context) (domain.LayerScore, error) {
	score, _, err := l.svc.Evaluate(l.in)
	return score, err
}

type industryLayer struct {
	svc *industry.Service
	in  industry.Input
}

func (l industryLayer) Name() domain.LayerName { return domain.LayerIndustry }

func (l industryLayer) Analyze(ctx context.Context) (domain.LayerScore, error) {
	score, _, err := l.svc.Analyze(ctx, l.in)
	return score, err
}

type riskLayer struct {
	svc *risk.Service
	in  risk.Input
}

func (l riskLayer) Name() domain.LayerName { return domain.LayerRisk }

func (l riskLayer) Analyze(_ context.Context) (domain.LayerScore, error) {
	score, _, err := l.svc.ComputeRiskMetrics(l.in)
	return score, err
}

type sentimentLayer struct {
	svc *sentiment.Service
	in  sentiment.Input
}

func (l sentimentLayer) Name() domain.LayerName { return domain.LayerSentiment }

func (l sentimentLayer) Analyze(ctx context.Context) (domain.LayerScore, error) {
	score, _, err := l.svc.Analyze(ctx, l.in)
	return score, err
}
