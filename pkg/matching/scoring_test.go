package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwise/fern/pkg/models"
	"github.com/costwise/fern/pkg/taxonomy"
)

func TestTokenOverlap(t *testing.T) {
	t.Run("identical sets", func(t *testing.T) {
		assert.Equal(t, 1.0, TokenOverlap([]string{"steel", "beam"}, []string{"beam", "steel"}))
	})

	t.Run("partial overlap", func(t *testing.T) {
		assert.InDelta(t, 1.0/3.0, TokenOverlap([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	})

	t.Run("disjoint sets", func(t *testing.T) {
		assert.Equal(t, 0.0, TokenOverlap([]string{"a"}, []string{"b"}))
	})

	t.Run("both empty is neutral", func(t *testing.T) {
		assert.Equal(t, 0.5, TokenOverlap(nil, nil))
	})

	t.Run("one empty", func(t *testing.T) {
		assert.Equal(t, 0.0, TokenOverlap([]string{"a"}, nil))
		assert.Equal(t, 0.0, TokenOverlap(nil, []string{"a"}))
	})

	t.Run("duplicates count once", func(t *testing.T) {
		assert.Equal(t, 1.0, TokenOverlap([]string{"a", "a"}, []string{"a"}))
	})
}

func TestNumericCloseness(t *testing.T) {
	t.Run("identical signatures", func(t *testing.T) {
		assert.Equal(t, 1.0, NumericCloseness([]float64{12, 26, 20}, []float64{12, 26, 20}))
	})

	t.Run("order does not matter", func(t *testing.T) {
		assert.Equal(t, 1.0, NumericCloseness([]float64{26, 12}, []float64{12, 26}))
	})

	t.Run("missing signature is neutral", func(t *testing.T) {
		assert.Equal(t, 0.5, NumericCloseness(nil, []float64{12}))
		assert.Equal(t, 0.5, NumericCloseness([]float64{12}, nil))
		assert.Equal(t, 0.5, NumericCloseness(nil, nil))
	})

	t.Run("relative difference", func(t *testing.T) {
		assert.InDelta(t, 0.5, NumericCloseness([]float64{10}, []float64{20}), 1e-9)
	})

	t.Run("length mismatch penalized by coverage", func(t *testing.T) {
		// Pairs (12,12) and (20,26) average 0.8846, coverage 2/3.
		assert.InDelta(t, 0.5897, NumericCloseness([]float64{12, 26, 20}, []float64{12, 26}), 1e-3)
	})
}

func TestCategoryScore(t *testing.T) {
	tax := taxonomy.NewSnapshot(map[string]string{
		"structural_steel": "steel",
		"misc_steel":       "steel",
		"rebar":            "concrete",
	})

	t.Run("exact match", func(t *testing.T) {
		assert.Equal(t, 1.0, CategoryScore("structural_steel", "structural_steel", tax))
	})

	t.Run("siblings are related", func(t *testing.T) {
		assert.Equal(t, 0.5, CategoryScore("structural_steel", "misc_steel", tax))
	})

	t.Run("parent and child are related", func(t *testing.T) {
		assert.Equal(t, 0.5, CategoryScore("structural_steel", "steel", tax))
		assert.Equal(t, 0.5, CategoryScore("steel", "misc_steel", tax))
	})

	t.Run("unrelated categories", func(t *testing.T) {
		assert.Equal(t, 0.0, CategoryScore("structural_steel", "rebar", tax))
	})

	t.Run("nil taxonomy falls back to exact only", func(t *testing.T) {
		assert.Equal(t, 1.0, CategoryScore("steel", "steel", nil))
		assert.Equal(t, 0.0, CategoryScore("structural_steel", "misc_steel", nil))
	})

	t.Run("missing key scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, CategoryScore("", "steel", tax))
		assert.Equal(t, 0.0, CategoryScore("steel", "", tax))
	})
}

func TestUnitCompat(t *testing.T) {
	t.Run("identical units", func(t *testing.T) {
		score, compatible := UnitCompat("ft", "ft")
		assert.Equal(t, 1.0, score)
		assert.True(t, compatible)
	})

	t.Run("same measurement dimension", func(t *testing.T) {
		score, compatible := UnitCompat("ft", "m")
		assert.Equal(t, 0.7, score)
		assert.True(t, compatible)

		score, compatible = UnitCompat("cf", "gal")
		assert.Equal(t, 0.7, score)
		assert.True(t, compatible)
	})

	t.Run("missing unit is neutral", func(t *testing.T) {
		score, compatible := UnitCompat("", "ft")
		assert.Equal(t, 0.5, score)
		assert.True(t, compatible)
	})

	t.Run("incompatible units", func(t *testing.T) {
		score, compatible := UnitCompat("ft", "kg")
		assert.Equal(t, 0.0, score)
		assert.False(t, compatible)
	})
}

func TestScorePerfectMatch(t *testing.T) {
	scorer := NewScorer(DefaultWeights())

	item, err := Normalize("Steel Beam W12x26, 20ft", Attributes{Category: "Structural Steel", Unit: "ea"})
	require.NoError(t, err)
	candidate, err := Normalize("Steel Beam W12X26 20 ft", Attributes{Category: "Structural Steel", Unit: "each"})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, scorer.Score(item, candidate, nil), 1e-9)
}

func TestScoreRanksExactShapeAboveVariant(t *testing.T) {
	scorer := NewScorer(DefaultWeights())

	item, err := Normalize("Steel Beam W12x26, 20ft", Attributes{Category: "Structural Steel", Unit: "ea"})
	require.NoError(t, err)
	exact, err := Normalize("Steel Beam W12x26 20ft", Attributes{Category: "Structural Steel", Unit: "ea"})
	require.NoError(t, err)
	variant, err := Normalize("Steel Beam W10x22 20ft", Attributes{Category: "Structural Steel", Unit: "ea"})
	require.NoError(t, err)

	exactScore := scorer.Score(item, exact, nil)
	variantScore := scorer.Score(item, variant, nil)

	assert.Greater(t, exactScore, variantScore)
	assert.InDelta(t, 1.0, exactScore, 1e-9)
	assert.Less(t, variantScore, 0.9)
}

func TestScoreUnitMismatchCeiling(t *testing.T) {
	scorer := NewScorer(DefaultWeights())

	item, err := Normalize("Steel Beam W12x26", Attributes{Category: "Structural Steel", Unit: "ft"})
	require.NoError(t, err)
	candidate, err := Normalize("Steel Beam W12x26", Attributes{Category: "Structural Steel", Unit: "kg"})
	require.NoError(t, err)

	// Text, numbers and category all agree, but the unit mismatch caps the
	// composite regardless.
	assert.Equal(t, unitMismatchCeiling, scorer.Score(item, candidate, nil))
}

func TestScoreIsDeterministic(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	tax := taxonomy.NewSnapshot(map[string]string{"structural_steel": "steel", "misc_steel": "steel"})

	item, err := Normalize("Steel Beam W12x26, 20ft", Attributes{Category: "Structural Steel", Unit: "ea"})
	require.NoError(t, err)
	candidate, err := Normalize("Steel Plate 12x26", Attributes{Category: "Misc Steel", Unit: "ea"})
	require.NoError(t, err)

	first := scorer.Score(item, candidate, tax)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, scorer.Score(item, candidate, tax))
	}
}

func TestRankCandidates(t *testing.T) {
	candidates := []models.Candidate{
		{PriceEntryID: "entry-3", Score: 0.8},
		{PriceEntryID: "entry-1", Score: 0.95},
		{PriceEntryID: "entry-4", Score: 0.8},
		{PriceEntryID: "entry-2", Score: 0.8},
	}

	RankCandidates(candidates)

	assert.Equal(t, "entry-1", candidates[0].PriceEntryID)
	// Equal scores break the tie by price entry id ascending.
	assert.Equal(t, "entry-2", candidates[1].PriceEntryID)
	assert.Equal(t, "entry-3", candidates[2].PriceEntryID)
	assert.Equal(t, "entry-4", candidates[3].PriceEntryID)
}
