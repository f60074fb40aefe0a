package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSKU(t *testing.T) {
	assert.Equal(t, "W12X26A992", NormalizeSKU("w12x26-a992"))
	assert.Equal(t, "ABC123", NormalizeSKU("abc.123"))
	assert.Equal(t, "ABC123", NormalizeSKU(" ABC 123 "))
}

func TestNormalizeDescription(t *testing.T) {
	t.Run("punctuation splits words", func(t *testing.T) {
		assert.Equal(t, "steel beam w12x26 20", NormalizeDescription("Steel Beam W12X26, 20'"))
	})

	t.Run("fractions survive", func(t *testing.T) {
		assert.Equal(t, "anchor bolt 3/4", NormalizeDescription("Anchor Bolt 3/4"))
	})

	t.Run("decimals survive", func(t *testing.T) {
		assert.Equal(t, "conduit 12.5", NormalizeDescription("Conduit 12.5"))
	})

	t.Run("trailing separators drop", func(t *testing.T) {
		assert.Equal(t, "rebar 5", NormalizeDescription("Rebar #5."))
	})
}

func TestStripUnitSuffixes(t *testing.T) {
	assert.Equal(t, "anchor bolt 3/4", StripUnitSuffixes("anchor bolt 3/4 in ea"))
	assert.Equal(t, "concrete mix", StripUnitSuffixes("concrete mix cy"))
	assert.Equal(t, "steel beam w12x26", StripUnitSuffixes("steel beam w12x26"))
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, "structural_steel", NormalizeCategory("Structural Steel"))
	assert.Equal(t, "concrete", NormalizeCategory(" Concrete "))
	assert.Equal(t, "", NormalizeCategory(""))
}

func TestNormalizeUnit(t *testing.T) {
	assert.Equal(t, "ft", NormalizeUnit("Feet"))
	assert.Equal(t, "ea", NormalizeUnit("EACH"))
	assert.Equal(t, "ea", NormalizeUnit("EA."))
	assert.Equal(t, "lb", NormalizeUnit("lbs"))
	assert.Equal(t, "cy", NormalizeUnit("cubic yards"))
	assert.Equal(t, "widget", NormalizeUnit("widget"))
}

func TestApplyUnknownNormalizerIsIdentity(t *testing.T) {
	assert.Equal(t, "Value", Apply("Value", "no_such_normalizer"))
}

func TestApplyChain(t *testing.T) {
	got := ApplyChain("  Steel   Beam  ", "ndescription", "collapse_whitespace")
	assert.Equal(t, "steel beam", got)
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a \t b\n c "))
}
