// Package normalizers provides field normalization functions for matching
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	// Register built-in normalizers
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("remove_whitespace", RemoveWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("strip_units", StripUnitSuffixes)
	Register("nsku", NormalizeSKU)
	Register("ndescription", NormalizeDescription)
	Register("ncategory", NormalizeCategory)
	Register("nunit", NormalizeUnit)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Uppercase converts string to uppercase
func Uppercase(s string) string {
	return strings.ToUpper(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

var spaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace squashes runs of whitespace into single spaces
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// unitSuffixes are measurement suffixes that vendors append inconsistently.
// Matched as whole trailing words after lowercasing.
var unitSuffixes = []string{
	"ea", "each", "pc", "pcs", "piece", "pieces",
	"ft", "feet", "foot", "lf", "sf", "cf", "sy", "cy",
	"in", "inch", "inches", "mm", "cm", "lm",
	"lb", "lbs", "kg", "ton", "tons",
	"gal", "gallon", "l", "liter",
	"box", "bag", "roll", "sheet", "bundle", "pallet",
}

// StripUnitSuffixes removes trailing unit-of-measure words from a
// description ("anchor bolt 3/4 in ea" -> "anchor bolt 3/4")
func StripUnitSuffixes(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for len(words) > 0 {
		last := strings.Trim(words[len(words)-1], ".,;:")
		stripped := false
		for _, suffix := range unitSuffixes {
			if last == suffix {
				words = words[:len(words)-1]
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return strings.Join(words, " ")
}

// NormalizeSKU canonicalizes a vendor SKU for comparison
// - Uppercase
// - Remove separators (dashes, dots, spaces)
func NormalizeSKU(s string) string {
	s = strings.ToUpper(s)
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeDescription normalizes a component description for tokenizing
// - Lowercase
// - Punctuation becomes whitespace (so "W12X26,20'" splits cleanly)
// - Fraction and decimal separators between digits survive ("3/4", "12.5")
// - Collapse whitespace
func NormalizeDescription(s string) string {
	runes := []rune(strings.ToLower(s))
	var result strings.Builder
	prevSpace := false
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
			prevSpace = false
		case (r == '.' || r == '/') && i > 0 && i < len(runes)-1 &&
			unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			result.WriteRune(r)
			prevSpace = false
		default:
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(result.String())
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeCategory canonicalizes a category label into a category key
// ("Structural Steel" -> "structural_steel")
func NormalizeCategory(s string) string {
	s = NormalizeDescription(s)
	return strings.ReplaceAll(s, " ", "_")
}

// unitAliases maps long unit-of-measure spellings to their short forms
var unitAliases = map[string]string{
	"each": "ea", "piece": "ea", "pieces": "ea", "pc": "ea", "pcs": "ea",
	"feet": "ft", "foot": "ft", "'": "ft",
	"inch": "in", "inches": "in", `"`: "in",
	"meter": "m", "meters": "m", "metre": "m",
	"millimeter": "mm", "millimeters": "mm",
	"pound": "lb", "pounds": "lb", "lbs": "lb",
	"square feet": "sf", "sq ft": "sf",
	"cubic yard": "cy", "cubic yards": "cy",
	"linear feet": "lf", "lin ft": "lf",
}

// NormalizeUnit canonicalizes a unit-of-measure label to its short form
func NormalizeUnit(s string) string {
	s = strings.TrimSpace(strings.ToLower(strings.Trim(s, ".")))
	if short, ok := unitAliases[s]; ok {
		return short
	}
	return s
}
