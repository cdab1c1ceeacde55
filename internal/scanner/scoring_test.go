package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/TradingApplication/catalyst-trading-system/internal/models"
)

var scoreNow = time.Date(2025, 8, 20, 15, 0, 0, 0, time.UTC)

func scoredItem(tier int, age time.Duration, state models.MarketState, keywords ...string) models.NewsItem {
	return models.NewsItem{
		SourceTier:  tier,
		PublishedAt: scoreNow.Add(-age),
		MarketState: state,
		Keywords:    keywords,
	}
}

func TestItemScoreComposition(t *testing.T) {
	// Tier-1 earnings story, one hour old, during the regular session:
	// 1.0 * e^(-1/4) * 1.2 * 1.0
	item := scoredItem(1, time.Hour, models.MarketRegular, "earnings")
	assert.InDelta(t, 0.9346, ItemScore(item, scoreNow), 0.0001)

	// The same story pre-market doubles, after-hours fades.
	item.MarketState = models.MarketPreMarket
	assert.InDelta(t, 1.8691, ItemScore(item, scoreNow), 0.0001)
	item.MarketState = models.MarketAfterHours
	assert.InDelta(t, 0.7476, ItemScore(item, scoreNow), 0.0001)

	// A tier-5 blog carries a fifth of the weight.
	blog := scoredItem(5, time.Hour, models.MarketRegular, "earnings")
	assert.InDelta(t, 0.1869, ItemScore(blog, scoreNow), 0.0001)

	// Unknown tiers rate as tier 5.
	unknown := scoredItem(9, time.Hour, models.MarketRegular, "earnings")
	assert.Equal(t, ItemScore(blog, scoreNow), ItemScore(unknown, scoreNow))
}

func TestItemScoreKeywordCap(t *testing.T) {
	stacked := scoredItem(1, 0, models.MarketRegular, "fda", "merger", "earnings")
	capped := scoredItem(1, 0, models.MarketRegular)
	// 1.5 * 1.3 * 1.2 = 2.34, capped at 2.0.
	assert.InDelta(t, 2.0*ItemScore(capped, scoreNow), ItemScore(stacked, scoreNow), 0.0001)

	// Uncategorized keywords contribute nothing.
	plain := scoredItem(1, 0, models.MarketRegular, "concerns")
	assert.Equal(t, ItemScore(capped, scoreNow), ItemScore(plain, scoreNow))
}

func TestCatalystScoreScalesAndCaps(t *testing.T) {
	one := scoredItem(1, time.Hour, models.MarketRegular, "earnings")
	assert.InDelta(t, 93.46, CatalystScore([]models.NewsItem{one}, scoreNow), 0.01)

	// Plenty of strong items saturate at 100.
	var pile []models.NewsItem
	for i := 0; i < 5; i++ {
		pile = append(pile, scoredItem(1, 0, models.MarketPreMarket, "fda"))
	}
	assert.Equal(t, 100.0, CatalystScore(pile, scoreNow))

	assert.Zero(t, CatalystScore(nil, scoreNow))
}

func TestTechnicalScore(t *testing.T) {
	assert.InDelta(t, 59.01, TechnicalScore(models.MarketSnapshot{
		RelativeVolume: 2.0, PriceChangePct: 3.0,
	}), 0.01)

	// Neutral tape sits at 50.
	assert.Equal(t, 50.0, TechnicalScore(models.MarketSnapshot{RelativeVolume: 1.0}))

	// Clipped at both ends.
	assert.Equal(t, 0.0, TechnicalScore(models.MarketSnapshot{
		RelativeVolume: 0.1, PriceChangePct: -30,
	}))
	assert.Equal(t, 100.0, TechnicalScore(models.MarketSnapshot{
		RelativeVolume: 10, PriceChangePct: 25,
	}))
}

func TestCombinedScoreBlend(t *testing.T) {
	assert.InDelta(t, 83.12, CombinedScore(93.456, 59.01), 0.01)
	assert.Equal(t, 100.0, CombinedScore(100, 100))
	assert.Equal(t, 70.0, CombinedScore(100, 0))
}
