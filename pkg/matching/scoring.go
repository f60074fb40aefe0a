package matching

import (
	"math"
	"sort"

	"github.com/costwise/fern/pkg/models"
	"github.com/costwise/fern/pkg/taxonomy"
)

// Weights are the feature-channel weights of the composite score. The
// defaults are the calibrated production values; they are configuration,
// not ground truth, and can be tuned per deployment.
type Weights struct {
	TokenOverlap     float64
	NumericCloseness float64
	Category         float64
	UnitCompat       float64
}

// DefaultWeights returns the calibrated channel weights.
func DefaultWeights() Weights {
	return Weights{
		TokenOverlap:     0.4,
		NumericCloseness: 0.3,
		Category:         0.2,
		UnitCompat:       0.1,
	}
}

// unitMismatchCeiling caps the composite score when units are incompatible
// with no known conversion. A hard ceiling rather than a weighted penalty:
// a unit mismatch means the match is categorically wrong no matter how well
// the text lines up.
const unitMismatchCeiling = 0.3

// Scorer computes weighted similarity between a schedule item and a price
// entry candidate. Deterministic and stateless: identical inputs always
// yield the identical score.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given channel weights.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Score computes the composite similarity in [0,1] between an item and a
// candidate. taxonomy may be nil, in which case only exact category matches
// count.
func (s *Scorer) Score(item, candidate NormalizedRecord, tax *taxonomy.Snapshot) float64 {
	tokens := TokenOverlap(item.Tokens, candidate.Tokens)
	numeric := NumericCloseness(item.NumericSignature, candidate.NumericSignature)
	category := CategoryScore(item.CategoryKey, candidate.CategoryKey, tax)
	unitScore, compatible := UnitCompat(item.UnitKey, candidate.UnitKey)

	composite := tokens*s.weights.TokenOverlap +
		numeric*s.weights.NumericCloseness +
		category*s.weights.Category +
		unitScore*s.weights.UnitCompat

	if !compatible && composite > unitMismatchCeiling {
		composite = unitMismatchCeiling
	}

	return clamp01(composite)
}

// TokenOverlap is the Jaccard similarity of the two token sets. Two empty
// sets are treated as neutral rather than identical: there is no textual
// evidence either way.
func TokenOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0.5
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.5
	}
	return float64(intersection) / float64(union)
}

// NumericCloseness compares numeric signatures as sorted sequences. A
// missing signature on either side is neutral 0.5: absence of dimensions is
// not evidence of a mismatch. Sequences of different length are penalized
// proportionally.
func NumericCloseness(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.5
	}

	sortedA := append([]float64(nil), a...)
	sortedB := append([]float64(nil), b...)
	sort.Float64s(sortedA)
	sort.Float64s(sortedB)

	n := min(len(sortedA), len(sortedB))
	var sum float64
	for i := 0; i < n; i++ {
		sum += pairCloseness(sortedA[i], sortedB[i])
	}

	coverage := float64(n) / float64(max(len(sortedA), len(sortedB)))
	return (sum / float64(n)) * coverage
}

// pairCloseness is the inverse relative difference of two values, 1.0 for
// an exact match.
func pairCloseness(x, y float64) float64 {
	if x == y {
		return 1.0
	}
	denom := math.Max(math.Abs(x), math.Abs(y))
	if denom == 0 {
		return 1.0
	}
	closeness := 1.0 - math.Abs(x-y)/denom
	if closeness < 0 {
		return 0.0
	}
	return closeness
}

// CategoryScore is 1.0 for an exact category-key match, 0.5 when the
// taxonomy relates the two keys through a parent, and 0 otherwise.
func CategoryScore(itemKey, candidateKey string, tax *taxonomy.Snapshot) float64 {
	if itemKey == "" || candidateKey == "" {
		return 0.0
	}
	if itemKey == candidateKey {
		return 1.0
	}
	if tax != nil && tax.Related(itemKey, candidateKey) {
		return 0.5
	}
	return 0.0
}

// unitGroups maps canonical unit keys to their measurement dimension.
// Units in the same group have known conversion factors.
var unitGroups = map[string]string{
	"ft": "length", "in": "length", "m": "length", "mm": "length",
	"cm": "length", "lf": "length", "lm": "length",
	"sf": "area", "sy": "area",
	"cf": "volume", "cy": "volume", "gal": "volume", "l": "volume",
	"lb": "mass", "kg": "mass", "ton": "mass",
	"ea": "count", "box": "count", "bag": "count", "roll": "count",
	"sheet": "count", "bundle": "count", "pallet": "count",
}

// UnitCompat scores vendor/unit compatibility. Identical units score 1.0;
// units with a known conversion (same measurement dimension) score 0.7 and
// remain compatible; a missing unit on either side is neutral. Anything
// else is incompatible, which triggers the composite ceiling.
func UnitCompat(a, b string) (score float64, compatible bool) {
	if a == "" || b == "" {
		return 0.5, true
	}
	if a == b {
		return 1.0, true
	}
	groupA, okA := unitGroups[a]
	groupB, okB := unitGroups[b]
	if okA && okB && groupA == groupB {
		return 0.7, true
	}
	return 0.0, false
}

// RankCandidates sorts scored candidates by score descending with price
// entry id ascending as the stable tie-break, so ranking is reproducible
// across runs. Sorting an already-ranked list is a no-op.
func RankCandidates(candidates []models.Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].PriceEntryID < candidates[j].PriceEntryID
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
