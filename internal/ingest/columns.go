package ingest

import "strings"

// Matcher locates a column within a header row. Implementations must be
// stateless so a single matcher can serve concurrent normalizations.
type Matcher interface {
	// Match returns the index of the first matching header, or false when no
	// header matches.
	Match(headers []string) (int, bool)
}

// KeywordMatcher matches headers by case-insensitive substring. A header
// matches when it contains any of the configured keywords.
type KeywordMatcher struct {
	keywords []string
}

// NewKeywordMatcher builds a matcher over the given keywords. Keywords are
// lowered once at construction.
func NewKeywordMatcher(keywords ...string) KeywordMatcher {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(strings.TrimSpace(k))
	}
	return KeywordMatcher{keywords: lowered}
}

// Match returns the first header containing any keyword.
func (m KeywordMatcher) Match(headers []string) (int, bool) {
	for i, h := range headers {
		if m.matches(h) {
			return i, true
		}
	}
	return 0, false
}

// MatchAll returns every header index containing any keyword, in header order.
func (m KeywordMatcher) MatchAll(headers []string) []int {
	var out []int
	for i, h := range headers {
		if m.matches(h) {
			out = append(out, i)
		}
	}
	return out
}

func (m KeywordMatcher) matches(header string) bool {
	low := strings.ToLower(strings.TrimSpace(header))
	if low == "" {
		return false
	}
	for _, k := range m.keywords {
		if strings.Contains(low, k) {
			return true
		}
	}
	return false
}

// Default matchers for the columns the engine understands.

// DateMatcher matches the date-bearing column.
func DateMatcher() KeywordMatcher { return NewKeywordMatcher("date") }

// WeightMatcher matches the body-weight column.
func WeightMatcher() KeywordMatcher { return NewKeywordMatcher("weight") }

// EnergyMatcher matches a dedicated energy-intake column.
func EnergyMatcher() KeywordMatcher {
	return NewKeywordMatcher("energy", "kcal", "calorie")
}

// MacroClass identifies one macronutrient family for the energy fallback.
type MacroClass string

const (
	MacroAlcohol MacroClass = "alcohol"
	MacroFat     MacroClass = "fat"
	MacroCarbs   MacroClass = "carbs"
	MacroProtein MacroClass = "protein"
)

// KcalPerGram returns the energy factor for converting grams of the macro.
func (c MacroClass) KcalPerGram() float64 {
	switch c {
	case MacroAlcohol:
		return 7.0
	case MacroFat:
		return 9.0
	case MacroCarbs, MacroProtein:
		return 4.0
	}
	return 0
}

// macroOrder fixes classification priority: each header belongs to the first
// class it matches, so "Fat (g)" never doubles as carbs.
var macroOrder = []struct {
	class    MacroClass
	keywords KeywordMatcher
}{
	{MacroAlcohol, NewKeywordMatcher("alcohol")},
	{MacroFat, NewKeywordMatcher("fat")},
	{MacroCarbs, NewKeywordMatcher("carb")},
	{MacroProtein, NewKeywordMatcher("protein")},
}

// ClassifyMacros maps each macro class to the header indexes belonging to it.
// Classes with no matching header are absent from the result.
func ClassifyMacros(headers []string) map[MacroClass][]int {
	found := make(map[MacroClass][]int)
	for i, h := range headers {
		for _, m := range macroOrder {
			if m.keywords.matches(h) {
				found[m.class] = append(found[m.class], i)
				break
			}
		}
	}
	return found
}
