// Package news implements the collection pipeline: source fan-out,
// normalization, content-fingerprint deduplication, tier-based confirmation
// tracking, and coordinated-narrative detection.
package news

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/symbols"
)

const (
	defaultTier        = 5
	breakingMaxAge     = 30 * time.Minute
	fingerprintSep     = "\x1f"
	confirmationWindow = 4 * time.Hour
	snippetMaxLen      = 500 // news_raw.snippet column width
)

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	tickerRE     = regexp.MustCompile(`\$?[A-Z]{1,5}\b`)

	// Query parameters that vary per click but not per article.
	trackingParams = map[string]bool{
		"fbclid": true, "gclid": true, "ref": true, "source": true,
		"cmpid": true, "ncid": true, "ito": true,
	}

	// Category precedence when a headline matches several; the strongest
	// catalyst wins the primary_catalyst slot.
	categoryPriority = []string{
		"fda", "merger", "bankruptcy", "earnings", "guidance", "short",
		"insider", "lawsuit", "breakthrough", "pump", "dump", "concerns",
	}
)

// Normalizer turns raw source articles into canonical NewsItems.
type Normalizer struct {
	tiers    map[string]int
	breaking *regexp.Regexp
	lexicon  map[string][]string
	positive []string
	negative []string
	symbols  *symbols.Set
	loc      *time.Location
	sessions sessionWindows
}

type sessionWindows struct {
	preStart, open, close, afterClose int // minutes since midnight, market time
}

// NewNormalizer builds a normalizer from the collector configuration. The
// schedule windows double as the article market-state boundaries.
func NewNormalizer(cfg config.CollectorConfig, sched config.ScheduleConfig, set *symbols.Set, loc *time.Location) (*Normalizer, error) {
	breaking, err := regexp.Compile(cfg.BreakingPattern)
	if err != nil {
		return nil, err
	}

	windows := sessionWindows{}
	for _, w := range []struct {
		raw  string
		dest *int
	}{
		{sched.PremarketStart, &windows.preStart},
		{sched.MarketOpen, &windows.open},
		{sched.MarketClose, &windows.close},
		{sched.AfterHoursClose, &windows.afterClose},
	} {
		t, err := time.Parse("15:04", w.raw)
		if err != nil {
			return nil, err
		}
		*w.dest = t.Hour()*60 + t.Minute()
	}

	tiers := make(map[string]int, len(cfg.SourceTiers))
	for name, tier := range cfg.SourceTiers {
		tiers[strings.ToLower(name)] = tier
	}

	return &Normalizer{
		tiers:    tiers,
		breaking: breaking,
		lexicon:  cfg.Lexicon,
		positive: cfg.PositiveSentiment,
		negative: cfg.NegativeSentiment,
		symbols:  set,
		loc:      loc,
		sessions: windows,
	}, nil
}

// Normalize produces the canonical record for one raw article. feedTier is
// the tier of the source adapter that fetched it, used when the publisher
// itself is not in the tier map.
func (n *Normalizer) Normalize(raw models.RawArticle, feedTier int, now time.Time) models.NewsItem {
	headline := strings.TrimSpace(raw.Headline)
	tier := n.TierFor(raw.Source, feedTier)
	keywords := n.Keywords(headline, raw.Snippet)
	tickers := n.Tickers(headline + " " + raw.Snippet)

	item := models.NewsItem{
		Fingerprint:  Fingerprint(headline, raw.Source, raw.PublishedAt),
		Headline:     headline,
		Source:       raw.Source,
		SourceURL:    CanonicalURL(raw.URL),
		PublishedAt:  raw.PublishedAt.UTC(),
		CollectedAt:  now.UTC(),
		Snippet:      truncateSnippet(strings.TrimSpace(raw.Snippet)),
		Keywords:     keywords,
		Tickers:      tickers,
		MarketState:  n.MarketStateAt(raw.PublishedAt),
		SourceTier:   tier,
		Sentiment:    n.Sentiment(headline + " " + raw.Snippet),
		Metadata:     raw.Metadata,
		LastSeen:     now.UTC(),
		Confirmation: models.ConfirmationUnconfirmed,
	}

	symbol := strings.ToUpper(strings.TrimPrefix(raw.Symbol, "$"))
	if symbol == "" && len(tickers) > 0 {
		symbol = tickers[0]
	}
	if symbol != "" && n.symbols.IsKnown(symbol) {
		item.Symbol = &symbol
	}

	item.Breaking = tier <= 2 && now.Sub(item.PublishedAt) < breakingMaxAge &&
		n.breaking.MatchString(headline)

	if item.Symbol != nil && len(keywords) > 0 {
		cluster := ClusterID(*item.Symbol, item.PublishedAt, keywords)
		item.ClusterID = &cluster
	}
	return item
}

// truncateSnippet bounds a snippet to the stored column width, counting
// characters rather than bytes so a multi-byte rune is never split.
func truncateSnippet(s string) string {
	if len(s) <= snippetMaxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= snippetMaxLen {
		return s
	}
	return string(runes[:snippetMaxLen])
}

// Fingerprint derives the stable content identity of an article: the
// whitespace-collapsed lowercase headline, the lowercase source, and the
// publication time rounded down to the minute. Re-fetching the same article
// always lands on the same row.
func Fingerprint(headline, source string, published time.Time) string {
	normalized := whitespaceRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(headline)), " ")
	minute := published.UTC().Truncate(time.Minute).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(normalized + fingerprintSep + strings.ToLower(source) + fingerprintSep + minute))
	return hex.EncodeToString(sum[:])
}

// CanonicalURL strips per-click tracking parameters and fragments so the
// stored URL is stable across syndicated copies.
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for param := range q {
		if trackingParams[param] || strings.HasPrefix(param, "utm_") {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}

// ClusterID identifies a narrative: same symbol, same UTC date, same keyword
// category set. Articles that later join the narrative hash to the same id.
func ClusterID(symbol string, published time.Time, categories []string) string {
	sorted := append([]string(nil), categories...)
	sort.Strings(sorted)
	sum := sha1.Sum([]byte(symbol + "|" + published.UTC().Format("2006-01-02") + "|" + strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])
}

// TierFor resolves the reliability tier of a publisher, falling back to the
// fetching feed's tier and finally to the lowest tier.
func (n *Normalizer) TierFor(source string, feedTier int) int {
	if tier, ok := n.tiers[strings.ToLower(source)]; ok {
		return tier
	}
	if feedTier >= 1 && feedTier <= 5 {
		return feedTier
	}
	return defaultTier
}

// Tickers extracts mentioned symbols in first-appearance order. Tokens must
// pass the exchange allow-list; prose words shaped like tickers are dropped.
func (n *Normalizer) Tickers(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, match := range tickerRE.FindAllString(text, -1) {
		sym := strings.ToUpper(strings.TrimPrefix(match, "$"))
		if seen[sym] || !n.symbols.IsKnown(sym) {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}

// Keywords returns the lexicon categories triggered by the headline and
// snippet, in priority order.
func (n *Normalizer) Keywords(headline, snippet string) []string {
	text := strings.ToLower(headline + " " + snippet)
	var out []string
	for _, category := range categoryPriority {
		for _, trigger := range n.lexicon[category] {
			if strings.Contains(text, trigger) {
				out = append(out, category)
				break
			}
		}
	}
	return out
}

// PrimaryCategory picks the strongest catalyst from a category list.
func PrimaryCategory(categories []string) string {
	rank := make(map[string]int, len(categoryPriority))
	for i, c := range categoryPriority {
		rank[c] = i
	}
	best, bestRank := "", len(categoryPriority)
	for _, c := range categories {
		if r, ok := rank[c]; ok && r < bestRank {
			best, bestRank = c, r
		}
	}
	if best == "" && len(categories) > 0 {
		return categories[0]
	}
	return best
}

// Sentiment returns the sentiment trigger words present in the text.
func (n *Normalizer) Sentiment(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, w := range n.positive {
		if strings.Contains(lower, w) {
			out = append(out, w)
		}
	}
	for _, w := range n.negative {
		if strings.Contains(lower, w) {
			out = append(out, w)
		}
	}
	return out
}

// MarketStateAt classifies a publication instant against the market-time
// session windows. The open boundary belongs to the regular session.
// Weekday hours outside every session share the weekend bucket.
func (n *Normalizer) MarketStateAt(t time.Time) models.MarketState {
	local := t.In(n.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return models.MarketWeekend
	}
	minutes := local.Hour()*60 + local.Minute()
	switch {
	case minutes >= n.sessions.preStart && minutes < n.sessions.open:
		return models.MarketPreMarket
	case minutes >= n.sessions.open && minutes < n.sessions.close:
		return models.MarketRegular
	case minutes >= n.sessions.close && minutes < n.sessions.afterClose:
		return models.MarketAfterHours
	default:
		return models.MarketWeekend
	}
}
