package textutil

import (
	"regexp"
	"sort"
	"strings"
)

// tokenSplitPattern matches non-alphanumeric character sequences for tokenization.
var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Tokenize splits text into lowercase tokens, filtering short tokens.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	raw := tokenSplitPattern.Split(lowered, -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		if len(token) < 3 {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

var stopWords = func() map[string]struct{} {
	words := strings.Fields(`
		about above after again against all also and any are because been before being below
		between both but can could did does doing don down during each few for from further
		had has have having her here hers herself him himself his how into its itself just
		like more most much must not now off once only other our ours ourselves out over own
		really right same she should some such than that the their theirs them themselves then
		there these they this those through too under until very was way well were what when
		where which while who whom why will with would yeah you your yours yourself yourselves
		going know think thing things get got gonna want actually lot kind mean okay said say
		one two three make made see look good let`)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()

// ExtractKeywords returns up to limit lowercase keyword tags. Curated terms
// (topics, speakers, takeaways) come first in the order given; remaining
// slots are filled with the most frequent non-stop-word tokens of text.
func ExtractKeywords(curated []string, text string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	out := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	add := func(term string) bool {
		term = CollapseWhitespace(strings.ToLower(term))
		if term == "" {
			return false
		}
		if _, ok := seen[term]; ok {
			return false
		}
		seen[term] = struct{}{}
		out = append(out, term)
		return len(out) >= limit
	}
	for _, term := range curated {
		if add(term) {
			return out
		}
	}

	counts := make(map[string]int)
	order := make(map[string]int)
	for _, token := range Tokenize(text) {
		if _, stop := stopWords[token]; stop {
			continue
		}
		if isNumeric(token) {
			continue
		}
		if _, ok := order[token]; !ok {
			order[token] = len(order)
		}
		counts[token]++
	}
	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return order[terms[i]] < order[terms[j]]
	})
	for _, term := range terms {
		if add(term) {
			break
		}
	}
	return out
}

func isNumeric(token string) bool {
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
