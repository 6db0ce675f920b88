package usecase

import "strings"

// Similarity blend weights. Multi-word product names benefit more from
// order-insensitive token overlap than from raw character edit distance,
// which over-penalizes word reordering and inserted brand qualifiers.
const (
	jaccardWeight = 0.6
	editWeight    = 0.4
)

// CombinedSimilarity scores how alike two raw product names are, in [0,1].
// Symmetric: CombinedSimilarity(a, b) == CombinedSimilarity(b, a).
//
// Rules, first match wins:
//  1. byte-identical raw strings score 1.0
//  2. identical normalized forms score 1.0
//  3. one normalized form being a prefix of the other scores
//     0.9 + 0.1*(shorter/longer), so near-identical prefixes beat
//     short-vs-long ones
//  4. otherwise a normalized Levenshtein score, blended with Jaccard token
//     overlap for multi-word names
func CombinedSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	normA := NormalizeProductName(a)
	normB := NormalizeProductName(b)
	if normA == normB {
		return 1.0
	}

	if strings.HasPrefix(normA, normB) || strings.HasPrefix(normB, normA) {
		shorter, longer := len(normA), len(normB)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return 0.9 + 0.1*float64(shorter)/float64(longer)
	}

	dist := levenshteinDistance(normA, normB)
	maxLen := max(len([]rune(normA)), len([]rune(normB)))
	normLev := 1.0
	if maxLen > 0 {
		normLev = 1.0 - float64(dist)/float64(maxLen)
	}

	tokensA := strings.Fields(normA)
	tokensB := strings.Fields(normB)

	// Single-word names carry no bag-of-words signal; the edit score is
	// all there is
	if len(tokensA) <= 1 && len(tokensB) <= 1 {
		return normLev
	}

	return jaccardWeight*jaccardSimilarity(tokensA, tokensB) + editWeight*normLev
}

// levenshteinDistance calculates the exact edit distance between two
// strings, with unit cost for substitution, insertion and deletion.
// Uses two rows instead of the full DP table for space efficiency.
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len([]rune(s2))
	}
	if len(s2) == 0 {
		return len([]rune(s1))
	}

	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)

	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}

// jaccardSimilarity computes |intersection| / |union| over two token lists
// treated as sets. Two empty sets score 1.0.
func jaccardSimilarity(tokens1, tokens2 []string) float64 {
	union := make(map[string]bool, len(tokens1)+len(tokens2))
	set1 := make(map[string]bool, len(tokens1))
	for _, t := range tokens1 {
		set1[t] = true
		union[t] = true
	}

	intersection := 0
	seen := make(map[string]bool, len(tokens2))
	for _, t := range tokens2 {
		union[t] = true
		if set1[t] && !seen[t] {
			intersection++
			seen[t] = true
		}
	}

	if len(union) == 0 {
		return 1.0
	}
	return float64(intersection) / float64(len(union))
}
