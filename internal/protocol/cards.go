package protocol

import "strings"

var rankNames = map[string]string{
	"k": "king",
	"q": "queen",
	"j": "jack",
}

// NormalizeRank expands the single-letter court ranks (k, q, j, either case)
// to their names. Every other rank is returned unchanged.
func NormalizeRank(rank string) string {
	if name, ok := rankNames[strings.ToLower(rank)]; ok {
		return name
	}
	return rank
}

// CardIdentifier builds the "<suit>_<rank>" identifier used by renderers,
// e.g. "spades_king".
func CardIdentifier(suit, rank string) string {
	return strings.ToLower(strings.TrimSpace(suit)) + "_" + NormalizeRank(strings.TrimSpace(rank))
}
