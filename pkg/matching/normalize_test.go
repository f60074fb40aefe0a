package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwise/fern/pkg/models"
)

func TestNormalizeStructuralSteelItem(t *testing.T) {
	record, err := Normalize("Steel Beam W12x26, 20ft", Attributes{
		Category: "Structural Steel",
		Unit:     "EA",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"steel", "beam", "w12x26"}, record.Tokens)
	assert.Equal(t, []float64{12, 26, 20}, record.NumericSignature)
	assert.Equal(t, "structural_steel", record.CategoryKey)
	assert.Equal(t, "ea", record.UnitKey)
}

func TestNormalizeFractions(t *testing.T) {
	record, err := Normalize("Anchor Bolt 3/4 in ea", Attributes{Category: "Fasteners"})
	require.NoError(t, err)

	assert.Equal(t, []string{"anchor", "bolt"}, record.Tokens)
	assert.Equal(t, []float64{0.75}, record.NumericSignature)
}

func TestNormalizeDecimalsAndBareNumbers(t *testing.T) {
	record, err := Normalize("Rebar #5 12.5 ft", Attributes{Category: "Concrete"})
	require.NoError(t, err)

	assert.Equal(t, []string{"rebar"}, record.Tokens)
	assert.Equal(t, []float64{5, 12.5}, record.NumericSignature)
}

func TestNormalizeAttachedUnitNumbers(t *testing.T) {
	record, err := Normalize("Conduit 20ft 3in", Attributes{Category: "Electrical"})
	require.NoError(t, err)

	assert.Equal(t, []string{"conduit"}, record.Tokens)
	assert.Equal(t, []float64{20, 3}, record.NumericSignature)
}

func TestNormalizeMalformedRecord(t *testing.T) {
	_, err := Normalize("   ", Attributes{Category: ""})
	require.Error(t, err)

	var malformed *models.MalformedRecordError
	assert.ErrorAs(t, err, &malformed)
}

func TestNormalizeCategoryOnlyRecord(t *testing.T) {
	record, err := Normalize("", Attributes{Category: "Concrete"})
	require.NoError(t, err)

	assert.Empty(t, record.Tokens)
	assert.Equal(t, "concrete", record.CategoryKey)
}

func TestNormalizeUnitAliases(t *testing.T) {
	record, err := Normalize("Lumber 2x4", Attributes{Category: "Wood", Unit: "Feet"})
	require.NoError(t, err)

	assert.Equal(t, "ft", record.UnitKey)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	attrs := Attributes{Category: "Structural Steel", Unit: "ea"}

	first, err := Normalize("Steel Beam W12x26, 20ft Grade A992", attrs)
	require.NoError(t, err)
	second, err := Normalize("Steel Beam W12x26, 20ft Grade A992", attrs)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
