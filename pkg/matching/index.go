package matching

import (
	"sort"
	"time"

	"github.com/costwise/fern/pkg/models"
)

// DefaultCandidateLimit bounds how many price entries the generator hands
// to the scorer per item.
const DefaultCandidateLimit = 50

// IndexedEntry pairs a price entry with its normalized record.
type IndexedEntry struct {
	Entry  models.PriceEntry
	Record NormalizedRecord
}

// Index is the blocking index over the price book for one batch run. It is
// built once from the entries valid at the batch reference date and then
// read concurrently by the item workers; it is never mutated after build.
//
// Blocking is keyed by category key and token trigrams so candidate
// generation stays sub-quadratic. Entries sharing the item's category are
// never excluded by blocking; the bounded truncation happens only after
// the cheap overlap ranking.
type Index struct {
	limit      int
	entries    []IndexedEntry
	byCategory map[string][]int
	byTrigram  map[string][]int
}

// BuildIndex normalizes every price entry valid at referenceDate and
// assembles the blocking index. Entries outside their validity window are
// excluded up front, so matching only ever sees the price book as it stood
// at the reference date. Entries that cannot be normalized are dropped.
func BuildIndex(entries []models.PriceEntry, referenceDate time.Time, limit int) *Index {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	idx := &Index{
		limit:      limit,
		byCategory: make(map[string][]int),
		byTrigram:  make(map[string][]int),
	}

	// Deterministic entry order regardless of storage order.
	sorted := append([]models.PriceEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, entry := range sorted {
		if !entry.ValidAt(referenceDate) {
			continue
		}
		record, err := Normalize(entry.Description, Attributes{Category: entry.Category, Unit: entry.Unit})
		if err != nil {
			continue
		}

		pos := len(idx.entries)
		idx.entries = append(idx.entries, IndexedEntry{Entry: entry, Record: record})

		if record.CategoryKey != "" {
			idx.byCategory[record.CategoryKey] = append(idx.byCategory[record.CategoryKey], pos)
		}
		for _, trigram := range recordTrigrams(record) {
			idx.byTrigram[trigram] = append(idx.byTrigram[trigram], pos)
		}
	}

	return idx
}

// Size returns the number of indexed entries.
func (idx *Index) Size() int {
	return len(idx.entries)
}

// CandidateSet is the generator's output for one item. LowConfidence marks
// the degraded fallback path (zero indexed entries for the item's
// category); the flag travels with the proposal so reviewers and the
// aggregator can see the candidate set was not category-blocked.
type CandidateSet struct {
	Entries       []IndexedEntry
	LowConfidence bool
}

// Generate retrieves a bounded, plausible candidate set for the item.
//
// Normal path: every entry sharing the item's category plus trigram hits
// from other categories, ranked by cheap token overlap and truncated to
// the limit. Degraded path, taken when the item's category has no indexed
// entries at all: a bounded category-agnostic token-overlap scan, an
// explicit fallback rather than a silent empty result. When even the
// fallback comes up empty the error is a CandidateSetExhaustedError, which
// IsRecoverableItemError classifies as item-level.
func (idx *Index) Generate(item NormalizedRecord) (CandidateSet, error) {
	categoryHits := idx.byCategory[item.CategoryKey]

	if item.CategoryKey == "" || len(categoryHits) == 0 {
		entries := idx.fallbackScan(item)
		if len(entries) == 0 {
			return CandidateSet{LowConfidence: true}, &models.CandidateSetExhaustedError{}
		}
		return CandidateSet{Entries: entries, LowConfidence: true}, nil
	}

	seen := make(map[int]struct{}, len(categoryHits))
	positions := make([]int, 0, len(categoryHits))
	for _, pos := range categoryHits {
		seen[pos] = struct{}{}
		positions = append(positions, pos)
	}
	for _, trigram := range recordTrigrams(item) {
		for _, pos := range idx.byTrigram[trigram] {
			if _, ok := seen[pos]; ok {
				continue
			}
			seen[pos] = struct{}{}
			positions = append(positions, pos)
		}
	}

	return CandidateSet{Entries: idx.takeTop(item, positions)}, nil
}

// fallbackScan is the degraded category-agnostic path: rank every indexed
// entry by token overlap and keep the top slice.
func (idx *Index) fallbackScan(item NormalizedRecord) []IndexedEntry {
	positions := make([]int, len(idx.entries))
	for i := range idx.entries {
		positions[i] = i
	}
	return idx.takeTop(item, positions)
}

// takeTop ranks candidate positions by token overlap (entry id ascending
// as the tie-break, for reproducibility) and returns at most limit
// entries.
func (idx *Index) takeTop(item NormalizedRecord, positions []int) []IndexedEntry {
	type ranked struct {
		pos     int
		overlap float64
	}

	rankedPositions := make([]ranked, 0, len(positions))
	for _, pos := range positions {
		rankedPositions = append(rankedPositions, ranked{
			pos:     pos,
			overlap: TokenOverlap(item.Tokens, idx.entries[pos].Record.Tokens),
		})
	}

	sort.Slice(rankedPositions, func(i, j int) bool {
		if rankedPositions[i].overlap != rankedPositions[j].overlap {
			return rankedPositions[i].overlap > rankedPositions[j].overlap
		}
		return idx.entries[rankedPositions[i].pos].Entry.ID < idx.entries[rankedPositions[j].pos].Entry.ID
	})

	if len(rankedPositions) > idx.limit {
		rankedPositions = rankedPositions[:idx.limit]
	}

	result := make([]IndexedEntry, len(rankedPositions))
	for i, r := range rankedPositions {
		result[i] = idx.entries[r.pos]
	}
	return result
}

// recordTrigrams returns the distinct token trigrams of a record, in first
// occurrence order. Short tokens index as themselves.
func recordTrigrams(record NormalizedRecord) []string {
	seen := make(map[string]struct{})
	var trigrams []string

	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		trigrams = append(trigrams, t)
	}

	for _, token := range record.Tokens {
		if len(token) <= 3 {
			add(token)
			continue
		}
		for i := 0; i+3 <= len(token); i++ {
			add(token[i : i+3])
		}
	}
	return trigrams
}
