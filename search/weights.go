package search

// Weights is the six-component weight tuple from spec §4.7. Every
// constructed Weights must sum to 1.0 (see Sum / the tests in
// weights_test.go).
type Weights struct {
	Vector     float64
	Text       float64
	Taxonomy   float64
	Quality    float64
	Freshness  float64
	Popularity float64
}

func (w Weights) Sum() float64 {
	return w.Vector + w.Text + w.Taxonomy + w.Quality + w.Freshness + w.Popularity
}

var baseWeights = map[QueryClass]Weights{
	ClassEmpty:    {Vector: 0.00, Text: 0.00, Taxonomy: 0.00, Quality: 0.50, Freshness: 0.30, Popularity: 0.20},
	ClassShort:    {Vector: 0.50, Text: 0.20, Taxonomy: 0.15, Quality: 0.05, Freshness: 0.05, Popularity: 0.05},
	ClassEntity:   {Vector: 0.30, Text: 0.35, Taxonomy: 0.20, Quality: 0.05, Freshness: 0.05, Popularity: 0.05},
	ClassCategory: {Vector: 0.35, Text: 0.15, Taxonomy: 0.30, Quality: 0.10, Freshness: 0.05, Popularity: 0.05},
	ClassPhrase:   {Vector: 0.30, Text: 0.40, Taxonomy: 0.15, Quality: 0.05, Freshness: 0.05, Popularity: 0.05},
	ClassGeneral:  {Vector: 0.40, Text: 0.25, Taxonomy: 0.15, Quality: 0.10, Freshness: 0.05, Popularity: 0.05},
}

// LegacyWeights is the use_enhanced_relevance=false fixed blend (spec
// §4.7): V=0.7, T=0.3, everything else 0.
var LegacyWeights = Weights{Vector: 0.7, Text: 0.3}

// filteredBonus is the Tx adjustment applied when any taxonomy filter is
// active: +0.10 on Taxonomy, subtracted proportionally from Vector/Text so
// the total still sums to 1.0 (spec §4.7).
const filteredBonus = 0.10

// WeightsFor returns the weight tuple for class, adjusted for "filtered"
// state (spec §4.7's asterisked row). The adjustment is proportional to
// the class's own V:T ratio so the invariant Sum()==1.0 is preserved
// exactly regardless of which class or filter state is in play.
func WeightsFor(class QueryClass, filtered bool) Weights {
	w := baseWeights[class]
	if !filtered {
		return w
	}
	vt := w.Vector + w.Text
	if vt <= 0 {
		// no V/T budget to draw from (the "empty" class): the bonus has
		// nowhere proportional to come from, so Taxonomy absorbs it from
		// Quality+Freshness+Popularity proportionally instead.
		rest := w.Quality + w.Freshness + w.Popularity
		if rest <= 0 {
			return w
		}
		factor := filteredBonus / rest
		w.Quality -= w.Quality * factor
		w.Freshness -= w.Freshness * factor
		w.Popularity -= w.Popularity * factor
		w.Taxonomy += filteredBonus
		return w
	}
	vShare := w.Vector / vt
	tShare := w.Text / vt
	w.Vector -= filteredBonus * vShare
	w.Text -= filteredBonus * tShare
	w.Taxonomy += filteredBonus
	return w
}
