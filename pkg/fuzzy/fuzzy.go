package fuzzy

import (
	"strings"
)

// Distance is the Levenshtein edit distance between two normalized strings.
func Distance(s1, s2 string) int {
	s1 = normalize(s1)
	s2 = normalize(s2)

	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	r1 := []rune(s1)
	r2 := []rune(s2)
	m, n := len(r1), len(r2)

	d := make([][]int, m+1)
	for i := range d {
		d[i] = make([]int, n+1)
		d[i][0] = i
	}
	for j := 0; j <= n; j++ {
		d[0][j] = j
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			d[i][j] = min3(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
		}
	}
	return d[m][n]
}

// Match reports whether query matches text within the edit-distance
// threshold, counting substring and prefix hits as matches.
func Match(query, text string, threshold int) bool {
	query = normalize(query)
	text = normalize(text)

	if strings.Contains(text, query) {
		return true
	}
	for _, word := range strings.Fields(text) {
		if Distance(query, word) <= threshold {
			return true
		}
		if strings.HasPrefix(word, query) {
			return true
		}
	}
	return false
}

// Threshold picks a typo tolerance proportional to query length.
func Threshold(query string) int {
	switch {
	case len(query) <= 3:
		return 1
	case len(query) >= 8:
		return 3
	default:
		return 2
	}
}

// Score ranks how well an email matches a query. Subject hits outweigh
// sender hits; zero means no match.
func Score(query, subject, sender string) float64 {
	query = normalize(query)
	score := 0.0

	subjectNorm := normalize(subject)
	if strings.Contains(subjectNorm, query) {
		score += 100.0
	} else {
		for _, word := range strings.Fields(subjectNorm) {
			if dist := Distance(query, word); dist <= 2 {
				score += 50.0 - float64(dist)*15
			} else if strings.HasPrefix(word, query) {
				score += 40.0
			}
		}
	}

	senderNorm := normalize(sender)
	if strings.Contains(senderNorm, query) {
		score += 60.0
	} else {
		for _, word := range strings.Fields(senderNorm) {
			if dist := Distance(query, word); dist <= 2 {
				score += 30.0 - float64(dist)*10
			}
		}
	}

	return score
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}

func normalize(s string) string {
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}
