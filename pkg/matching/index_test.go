package matching

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwise/fern/pkg/models"
)

var indexReferenceDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func priceEntry(id, description, category string) models.PriceEntry {
	return models.PriceEntry{
		ID:          id,
		Description: description,
		Category:    category,
		Unit:        "ea",
		ValidFrom:   indexReferenceDate.AddDate(0, -1, 0),
	}
}

func mustNormalize(t *testing.T, description, category string) NormalizedRecord {
	t.Helper()
	record, err := Normalize(description, Attributes{Category: category, Unit: "ea"})
	require.NoError(t, err)
	return record
}

func TestBuildIndexFiltersValidityWindow(t *testing.T) {
	expired := priceEntry("entry-1", "Steel Beam W12x26", "Structural Steel")
	expiredAt := indexReferenceDate.AddDate(0, 0, -7)
	expired.ValidTo = &expiredAt

	future := priceEntry("entry-2", "Steel Beam W12x26", "Structural Steel")
	future.ValidFrom = indexReferenceDate.AddDate(0, 1, 0)

	current := priceEntry("entry-3", "Steel Beam W12x26", "Structural Steel")

	idx := BuildIndex([]models.PriceEntry{expired, future, current}, indexReferenceDate, 0)

	assert.Equal(t, 1, idx.Size())
	set, err := idx.Generate(mustNormalize(t, "Steel Beam W12x26", "Structural Steel"))
	require.NoError(t, err)
	require.Len(t, set.Entries, 1)
	assert.Equal(t, "entry-3", set.Entries[0].Entry.ID)
}

func TestBuildIndexDropsUnnormalizableEntries(t *testing.T) {
	idx := BuildIndex([]models.PriceEntry{priceEntry("entry-1", "", "")}, indexReferenceDate, 0)
	assert.Equal(t, 0, idx.Size())
}

func TestGenerateCategoryBlocking(t *testing.T) {
	entries := []models.PriceEntry{
		priceEntry("entry-1", "Steel Beam W12x26", "Structural Steel"),
		priceEntry("entry-2", "Steel Beam W10x22", "Structural Steel"),
		priceEntry("entry-3", "Concrete Mix 4000psi", "Concrete"),
	}
	idx := BuildIndex(entries, indexReferenceDate, 0)

	set, err := idx.Generate(mustNormalize(t, "Steel Beam W12x26 20ft", "Structural Steel"))
	require.NoError(t, err)

	assert.False(t, set.LowConfidence)
	ids := entryIDs(set)
	assert.Contains(t, ids, "entry-1")
	assert.Contains(t, ids, "entry-2")
	assert.NotContains(t, ids, "entry-3")
}

func TestGenerateIncludesCrossCategoryTrigramHits(t *testing.T) {
	entries := []models.PriceEntry{
		priceEntry("entry-1", "Steel Beam W12x26", "Structural Steel"),
		priceEntry("entry-2", "Steel Plate 12x26", "Misc Steel"),
		priceEntry("entry-3", "Concrete Mix 4000psi", "Concrete"),
	}
	idx := BuildIndex(entries, indexReferenceDate, 0)

	set, err := idx.Generate(mustNormalize(t, "Steel Beam W12x26", "Structural Steel"))
	require.NoError(t, err)

	assert.False(t, set.LowConfidence)
	ids := entryIDs(set)
	assert.Contains(t, ids, "entry-1")
	// Shares the "steel" trigrams even though the category differs.
	assert.Contains(t, ids, "entry-2")
}

func TestGenerateFallbackOnUnknownCategory(t *testing.T) {
	entries := []models.PriceEntry{
		priceEntry("entry-1", "Steel Beam W12x26", "Structural Steel"),
		priceEntry("entry-2", "Concrete Mix 4000psi", "Concrete"),
	}
	idx := BuildIndex(entries, indexReferenceDate, 0)

	set, err := idx.Generate(mustNormalize(t, "Steel Beam W12x26", "Imported Fixtures"))
	require.NoError(t, err)

	assert.True(t, set.LowConfidence)
	require.NotEmpty(t, set.Entries)
	// Fallback still ranks by token overlap, so the steel beam leads.
	assert.Equal(t, "entry-1", set.Entries[0].Entry.ID)
}

func TestGenerateRespectsCandidateLimit(t *testing.T) {
	var entries []models.PriceEntry
	for i := 0; i < 10; i++ {
		entries = append(entries, priceEntry(fmt.Sprintf("entry-%02d", i), "Steel Beam W12x26", "Structural Steel"))
	}
	idx := BuildIndex(entries, indexReferenceDate, 3)

	set, err := idx.Generate(mustNormalize(t, "Steel Beam W12x26", "Structural Steel"))
	require.NoError(t, err)

	assert.Len(t, set.Entries, 3)
	// Identical overlap resolves by entry id ascending.
	assert.Equal(t, "entry-00", set.Entries[0].Entry.ID)
	assert.Equal(t, "entry-01", set.Entries[1].Entry.ID)
	assert.Equal(t, "entry-02", set.Entries[2].Entry.ID)
}

func TestGenerateIsDeterministic(t *testing.T) {
	entries := []models.PriceEntry{
		priceEntry("entry-2", "Steel Beam W10x22", "Structural Steel"),
		priceEntry("entry-1", "Steel Beam W12x26", "Structural Steel"),
		priceEntry("entry-3", "Steel Channel C8x11", "Structural Steel"),
	}
	item := mustNormalize(t, "Steel Beam W12x26", "Structural Steel")

	first, err := BuildIndex(entries, indexReferenceDate, 0).Generate(item)
	require.NoError(t, err)
	second, err := BuildIndex([]models.PriceEntry{entries[2], entries[0], entries[1]}, indexReferenceDate, 0).Generate(item)
	require.NoError(t, err)

	assert.Equal(t, entryIDs(first), entryIDs(second))
}

func TestGenerateExhaustedOnEmptyIndex(t *testing.T) {
	idx := BuildIndex(nil, indexReferenceDate, 0)

	set, err := idx.Generate(mustNormalize(t, "Steel Beam W12x26", "Structural Steel"))

	require.Error(t, err)
	var exhausted *models.CandidateSetExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.True(t, models.IsRecoverableItemError(err))
	assert.True(t, set.LowConfidence)
	assert.Empty(t, set.Entries)
}

func entryIDs(set CandidateSet) []string {
	ids := make([]string, 0, len(set.Entries))
	for _, e := range set.Entries {
		ids = append(ids, e.Entry.ID)
	}
	return ids
}
