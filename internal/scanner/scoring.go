// Package scanner selects the day's trading candidates: news-driven
// catalyst scoring, market-data gates, and final ranking.
package scanner

import (
	"math"
	"time"

	"github.com/TradingApplication/catalyst-trading-system/internal/models"
)

// recencyScaleHours controls how fast an article's contribution decays: a
// four-hour-old story is worth e^-1 of a fresh one.
const recencyScaleHours = 4.0

// keywordWeightCap bounds the stacked keyword multiplier.
const keywordWeightCap = 2.0

var defaultTierWeights = map[int]float64{
	1: 1.0,
	2: 0.8,
	3: 0.6,
	4: 0.4,
	5: 0.2,
}

var marketWeights = map[models.MarketState]float64{
	models.MarketPreMarket:  2.0,
	models.MarketRegular:    1.0,
	models.MarketAfterHours: 0.8,
	models.MarketWeekend:    0.5,
}

var keywordWeights = map[string]float64{
	"fda":        1.5,
	"merger":     1.3,
	"bankruptcy": 1.3,
	"earnings":   1.2,
	"guidance":   1.15,
}

// ItemScore weighs one article with the default tier weights: source
// reliability, exponential recency decay, catalyst keyword multipliers, and
// the market session it landed in.
func ItemScore(item models.NewsItem, now time.Time) float64 {
	return itemScore(item, now, defaultTierWeights)
}

func itemScore(item models.NewsItem, now time.Time, tiers map[int]float64) float64 {
	tier, ok := tiers[item.SourceTier]
	if !ok {
		tier = tiers[5]
	}

	recency := math.Exp(-item.AgeAt(now).Hours() / recencyScaleHours)

	keyword := 1.0
	for _, category := range item.Keywords {
		if w, ok := keywordWeights[category]; ok {
			keyword *= w
		}
	}
	if keyword > keywordWeightCap {
		keyword = keywordWeightCap
	}

	market, ok := marketWeights[item.MarketState]
	if !ok {
		market = 1.0
	}
	return tier * recency * keyword * market
}

// CatalystScore aggregates a symbol's article scores onto a 0..100 scale.
func CatalystScore(items []models.NewsItem, now time.Time) float64 {
	return catalystScore(items, now, defaultTierWeights)
}

func catalystScore(items []models.NewsItem, now time.Time, tiers map[int]float64) float64 {
	var sum float64
	for _, item := range items {
		sum += itemScore(item, now, tiers)
	}
	return math.Min(100, 100*sum)
}

// TechnicalScore rates a snapshot around a neutral 50: relative volume on a
// log scale and intraday price change, clipped to 0..100.
func TechnicalScore(snap models.MarketSnapshot) float64 {
	score := 50.0
	if snap.RelativeVolume > 0 {
		score += 10 * math.Log10(snap.RelativeVolume)
	}
	score += 2 * snap.PriceChangePct
	return math.Max(0, math.Min(100, score))
}

// CombinedScore blends catalyst and technical scores 70/30. Catalyst
// dominates: this system trades news, the tape only vets it.
func CombinedScore(catalyst, technical float64) float64 {
	return 0.7*catalyst + 0.3*technical
}
