package sentiment

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aristath/vantage/internal/clients/sentimentapi"
	"github.com/aristath/vantage/internal/config"
	"github.com/aristath/vantage/internal/domain"
	"github.com/rs/zerolog"
)

// Fetcher is the slice of the sentiment API client this layer uses.
type Fetcher interface {
	Configured() bool
	Fetch(ctx context.Context) (sentimentapi.Payload, error)
}

const (
	defaultAPIConfidence = 0.6
	keywordBaseConf      = 0.5
	keywordConfPerHit    = 0.05
	keywordMaxConf       = 0.9
)

// Service produces the sentiment layer score. A scored API payload is
// used as-is; unscored headlines, from the API or a local feed, go
// through the keyword scorer with degraded status.
type Service struct {
	fetcher Fetcher
	policy  config.SentimentPolicy
	log     zerolog.Logger
}

// NewService creates a sentiment service. A nil fetcher means no
// sentiment API is configured and only local headlines can score.
func NewService(fetcher Fetcher, policy config.SentimentPolicy, log zerolog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		policy:  policy,
		log:     log.With().Str("service", "sentiment").Logger(),
	}
}

// Analyze scores news sentiment. Precedence: upstream score, upstream
// headlines through the keyword scorer, then local headline snippets.
// The layer errors only when none of those yields anything.
func (s *Service) Analyze(ctx context.Context, in Input) (domain.LayerScore, Reading, error) {
	const op = "analyze_sentiment"

	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	if s.fetcher != nil && s.fetcher.Configured() {
		payload, err := s.fetcher.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return domain.LayerScore{}, Reading{}, ctx.Err()
			}
			s.log.Warn().Err(err).Msg("Sentiment API unavailable, trying local headlines")
		} else {
			if !payload.AsOf.IsZero() {
				asOf = payload.AsOf
			}
			if payload.Score != nil {
				return s.fromUpstream(op, payload, asOf)
			}
			if len(payload.Headlines) > 0 {
				ls, reading := s.fromKeywords(payload.Headlines, asOf, "upstream feed published headlines without a score")
				return ls, reading, nil
			}
		}
	}

	if len(in.Headlines) > 0 {
		ls, reading := s.fromKeywords(in.Headlines, asOf, "no sentiment API, scored local headlines")
		return ls, reading, nil
	}

	return domain.LayerScore{}, Reading{}, domain.NewInsufficientData(op, "no sentiment source yielded anything")
}

// fromUpstream validates and passes through an already-scored payload
func (s *Service) fromUpstream(op string, payload sentimentapi.Payload, asOf time.Time) (domain.LayerScore, Reading, error) {
	score := *payload.Score
	if math.IsNaN(score) || score < -1 || score > 1 {
		return domain.LayerScore{}, Reading{}, domain.NewInvalidLayerOutput(op,
			fmt.Sprintf("upstream sentiment score %v outside [-1,1]", score))
	}

	confidence := defaultAPIConfidence
	if payload.Confidence != nil {
		confidence = *payload.Confidence
		if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
			return domain.LayerScore{}, Reading{}, domain.NewInvalidLayerOutput(op,
				fmt.Sprintf("upstream sentiment confidence %v outside [0,1]", confidence))
		}
	}

	reading := Reading{
		Score:      score,
		Confidence: confidence,
		Source:     "api",
		Headlines:  len(payload.Headlines),
	}

	s.log.Debug().
		Float64("score", score).
		Float64("confidence", confidence).
		Msg("Using upstream sentiment score")

	ls := domain.NewLayerScore(domain.LayerSentiment, score, confidence, asOf)
	ls.Summary = fmt.Sprintf("news sentiment %.2f from upstream feed", score)
	return ls, reading, nil
}

// fromKeywords scores headlines by keyword hits. It always produces a
// degraded score: keyword counting is a coarse stand-in for a scored
// feed, so the reason code says what was missing.
func (s *Service) fromKeywords(headlines []string, asOf time.Time, cause string) (domain.LayerScore, Reading) {
	bull, bear := s.countHits(headlines)

	total := bull + bear
	if total < 1 {
		total = 1
	}
	score := clampScore(float64(bull-bear) / float64(total))

	spread := bull - bear
	if spread < 0 {
		spread = -spread
	}
	confidence := keywordBaseConf + keywordConfPerHit*float64(spread)
	if confidence > keywordMaxConf {
		confidence = keywordMaxConf
	}

	reading := Reading{
		Score:       score,
		Confidence:  confidence,
		Source:      "keywords",
		BullishHits: bull,
		BearishHits: bear,
		Headlines:   len(headlines),
	}

	s.log.Debug().
		Int("bullish_hits", bull).
		Int("bearish_hits", bear).
		Int("headlines", len(headlines)).
		Float64("score", score).
		Msg("Scored headlines by keywords")

	ls := domain.DegradedLayerScore(domain.LayerSentiment, score, confidence, asOf, domain.ReasonMissingData)
	ls.Summary = fmt.Sprintf("keyword sentiment %.2f over %d headlines (%s)", score, len(headlines), cause)
	return ls, reading
}

func (s *Service) countHits(headlines []string) (bull, bear int) {
	for _, headline := range headlines {
		lower := strings.ToLower(headline)
		for _, kw := range s.policy.BullishKeywords {
			if strings.Contains(lower, kw) {
				bull++
			}
		}
		for _, kw := range s.policy.BearishKeywords {
			if strings.Contains(lower, kw) {
				bear++
			}
		}
	}
	return bull, bear
}

func clampScore(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
