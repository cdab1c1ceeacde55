package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultUniverseExcludesFixtureSymbols(t *testing.T) {
	set := NewSet(nil)

	assert.True(t, set.IsKnown("AAPL"))
	assert.True(t, set.IsKnown("$nvda"))
	assert.False(t, set.IsKnown("ACME"))
	assert.False(t, set.IsKnown("SYMB"))
}

func TestExclusionsBeatUniverse(t *testing.T) {
	set := NewSet([]string{"FDA", "ACME"})

	assert.False(t, set.IsKnown("FDA"), "prose words never count as symbols")
	assert.True(t, set.IsKnown("ACME"))
	assert.Equal(t, 2, set.Size())
}
