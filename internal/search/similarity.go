package search

import "math"

// Similarity is the classic TF-IDF scoring model:
//
//	score(t,d) = √tf · idf² · norm · boost
//	idf        = 1 + ln(N / (df+1))
//	norm       = 1 / √fieldLength
type Similarity struct{}

// Idf returns the inverse document frequency of a term in docFreq of numDocs docs.
func (Similarity) Idf(docFreq, numDocs int) float64 {
	return 1 + math.Log(float64(numDocs)/float64(docFreq+1))
}

// Tf dampens a raw or sloppy frequency.
func (Similarity) Tf(freq float64) float64 { return math.Sqrt(freq) }

// Norm is the length normalization for a field of length terms.
func (Similarity) Norm(length int) float64 {
	if length <= 0 {
		return 0
	}
	return 1 / math.Sqrt(float64(length))
}

// SloppyFreq is the frequency credited to a phrase match spanning distance
// extra positions.
func (Similarity) SloppyFreq(distance int) float64 { return 1 / float64(distance+1) }

// Coord rewards docs matching more of a boolean query's scoring clauses.
func (Similarity) Coord(overlap, maxOverlap int) float64 {
	if maxOverlap == 0 {
		return 1
	}
	return float64(overlap) / float64(maxOverlap)
}
