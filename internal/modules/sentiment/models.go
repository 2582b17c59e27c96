package sentiment

import "time"

// Input carries what the layer needs beyond its own client: headline
// snippets from any locally configured feed, used by the keyword
// scorer when the sentiment API is absent or unscored.
type Input struct {
	Headlines []string
	AsOf      time.Time
}

// Reading is the sentiment layer's working: where the score came from
// and, for keyword scoring, the hit counts behind it.
type Reading struct {
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"`
	BullishHits int     `json:"bullish_hits,omitempty"`
	BearishHits int     `json:"bearish_hits,omitempty"`
	Headlines   int     `json:"headlines"`
}
