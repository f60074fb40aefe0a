// Package matching implements the item-to-price matching pipeline with a
// clear separation:
// - Normalization = pure derivation of comparable records
// - Candidate generation = bounded blocking lookup (performance step)
// - Scoring = deterministic weighted comparison (correctness step)
package matching

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/costwise/fern/pkg/models"
	"github.com/costwise/fern/pkg/normalizers"
)

// NormalizedRecord is the comparable form of a schedule item or price
// entry. Tokens are ordered descriptive words with pure numerics removed;
// the numeric signature carries dimensions, gauges and lengths separately
// so numeric mismatches can be penalized more heavily than textual ones.
type NormalizedRecord struct {
	Tokens           []string
	CategoryKey      string
	UnitKey          string
	NumericSignature []float64
}

// Attributes are the structured fields that accompany raw description text.
type Attributes struct {
	Category string
	Unit     string
}

// dimensionRe matches shape designators like "w12x26" or "10x22x3".
var dimensionRe = regexp.MustCompile(`^[a-z]*(\d+(?:\.\d+)?)(?:x(\d+(?:\.\d+)?))+$`)

// numberUnitRe matches a number with an attached unit word like "20ft".
var numberUnitRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)([a-z]+)$`)

// fractionRe matches vulgar fractions like "3/4".
var fractionRe = regexp.MustCompile(`^(\d+)/(\d+)$`)

// numberRe matches a bare number token.
var numberRe = regexp.MustCompile(`^\d+(?:\.\d+)?$`)

var attachedUnits = map[string]struct{}{
	"ft": {}, "in": {}, "mm": {}, "cm": {}, "m": {}, "lf": {}, "sf": {},
	"cf": {}, "cy": {}, "sy": {}, "lb": {}, "lbs": {}, "kg": {}, "ga": {},
	"gal": {},
}

// Normalize canonicalizes raw schedule-item or price-entry text into a
// comparable record. It is a pure function: identical inputs always yield
// identical output, so re-running a batch is reproducible.
//
// Returns MalformedRecordError when both the description and the category
// are empty; the caller decides whether to skip the record or flag it for
// manual classification.
func Normalize(rawText string, attrs Attributes) (NormalizedRecord, error) {
	if strings.TrimSpace(rawText) == "" && strings.TrimSpace(attrs.Category) == "" {
		return NormalizedRecord{}, &models.MalformedRecordError{}
	}

	cleaned := normalizers.ApplyChain(rawText, "ndescription", "strip_units", "collapse_whitespace")

	record := NormalizedRecord{
		CategoryKey: normalizers.NormalizeCategory(attrs.Category),
		UnitKey:     normalizers.NormalizeUnit(attrs.Unit),
	}

	for _, word := range strings.Fields(cleaned) {
		tokens, nums := classifyToken(word)
		record.Tokens = append(record.Tokens, tokens...)
		record.NumericSignature = append(record.NumericSignature, nums...)
	}

	return record, nil
}

// classifyToken splits a raw word into descriptive tokens and numeric
// signature values. Dimension designators ("w12x26") contribute both: the
// whole token stays descriptive and its numbers join the signature.
func classifyToken(word string) ([]string, []float64) {
	if numberRe.MatchString(word) {
		n, _ := strconv.ParseFloat(word, 64)
		return nil, []float64{n}
	}

	if m := fractionRe.FindStringSubmatch(word); m != nil {
		num, _ := strconv.ParseFloat(m[1], 64)
		den, _ := strconv.ParseFloat(m[2], 64)
		if den != 0 {
			return nil, []float64{num / den}
		}
		return nil, nil
	}

	if m := numberUnitRe.FindStringSubmatch(word); m != nil {
		if _, ok := attachedUnits[m[2]]; ok {
			n, _ := strconv.ParseFloat(m[1], 64)
			return nil, []float64{n}
		}
	}

	if dimensionRe.MatchString(word) {
		return []string{word}, extractNumbers(word)
	}

	return []string{word}, nil
}

var embeddedNumberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

func extractNumbers(word string) []float64 {
	matches := embeddedNumberRe.FindAllString(word, -1)
	nums := make([]float64, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.ParseFloat(m, 64)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	return nums
}
