package query

import "unicode/utf8"

// Fuzziness thresholds in runes. Terms shorter than fuzzyOneEdit match
// exactly; terms of fuzzyTwoEdits runes or more tolerate two edits.
const (
	fuzzyOneEdit  = 3
	fuzzyTwoEdits = 6
)

// autoFuzziness is the Elasticsearch rendering of Fuzziness.
const autoFuzziness = "AUTO:3,6"

// Fuzziness returns the number of edits tolerated when matching term.
func Fuzziness(term string) int {
	n := utf8.RuneCountInString(term)
	switch {
	case n >= fuzzyTwoEdits:
		return 2
	case n >= fuzzyOneEdit:
		return 1
	default:
		return 0
	}
}
