// Package symbols holds the allow-list of known exchange symbols used to
// filter ticker-shaped tokens extracted from headlines.
package symbols

import "strings"

// Words that match the ticker pattern but are prose, not symbols.
var exclusions = map[string]bool{
	"A": true, "I": true, "THE": true, "AND": true, "OR": true, "TO": true,
	"IN": true, "OF": true, "FOR": true, "ON": true, "AT": true, "BY": true,
	"CEO": true, "CFO": true, "IPO": true, "FDA": true, "SEC": true,
	"NYSE": true, "ETF": true, "USA": true, "GDP": true, "AI": true,
	"EPS": true, "US": true, "UK": true, "EU": true, "Q": true,
}

// defaultUniverse seeds the allow-list with liquid US large/mid caps; the
// full list is replaced at boot from the configured symbol file when one is
// provided.
var defaultUniverse = []string{
	"AAPL", "MSFT", "GOOGL", "GOOG", "AMZN", "NVDA", "META", "TSLA", "AMD",
	"INTC", "NFLX", "CRM", "ORCL", "ADBE", "AVGO", "QCOM", "TXN", "MU",
	"AMAT", "PLTR", "SNOW", "SHOP", "SQ", "PYPL", "COIN", "UBER", "LYFT",
	"ABNB", "DASH", "RBLX", "U", "NET", "DDOG", "ZS", "CRWD", "OKTA",
	"MDB", "TEAM", "WDAY", "NOW", "PANW", "FTNT", "JPM", "BAC", "WFC",
	"GS", "MS", "C", "SCHW", "BLK", "V", "MA", "AXP", "COF", "JNJ",
	"PFE", "MRK", "ABBV", "LLY", "BMY", "AMGN", "GILD", "BIIB", "MRNA",
	"BNTX", "VRTX", "REGN", "XOM", "CVX", "COP", "SLB", "OXY", "BA",
	"CAT", "DE", "GE", "HON", "LMT", "RTX", "MMM", "UPS", "FDX", "WMT",
	"TGT", "COST", "HD", "LOW", "NKE", "SBUX", "MCD", "DIS", "CMCSA",
	"T", "VZ", "TMUS", "F", "GM", "RIVN", "LCID", "NIO", "GME", "AMC",
}

// Set is a symbol allow-list.
type Set struct {
	known map[string]bool
}

// NewSet builds an allow-list; a nil or empty universe falls back to the
// built-in default.
func NewSet(universe []string) *Set {
	if len(universe) == 0 {
		universe = defaultUniverse
	}
	known := make(map[string]bool, len(universe))
	for _, sym := range universe {
		known[strings.ToUpper(sym)] = true
	}
	return &Set{known: known}
}

// IsKnown reports whether sym is a recognized exchange symbol and not an
// excluded prose word.
func (s *Set) IsKnown(sym string) bool {
	sym = strings.ToUpper(strings.TrimPrefix(sym, "$"))
	if exclusions[sym] {
		return false
	}
	return s.known[sym]
}

// Size returns the number of known symbols.
func (s *Set) Size() int {
	return len(s.known)
}
