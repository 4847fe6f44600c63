package search

import (
	"sort"

	"github.com/marpdocs/marpsearch/internal/store"
)

// fusedCandidate carries one chunk's scores through fusion.
type fusedCandidate struct {
	ChunkID      string
	RawLexical   float64
	RawSemantic  float64
	NormLexical  float64
	NormSemantic float64
	Combined     float64
	InLexical    bool
	InSemantic   bool
	MatchedTerms []string
}

// fuse merges the lexical and semantic candidate sets into a single
// deduplicated ranking.
//
// Each signal's raw scores are min-max normalized within its own
// candidate set; a set whose scores are all equal normalizes to 1.0
// for every member. A chunk present in only one set contributes 0 for
// the missing signal. The combined score is
//
//	combined = w_lexical * norm_lexical + w_semantic * norm_semantic
//
// Ordering is combined score descending, then raw semantic score
// descending, then chunk id ascending.
func fuse(lexical []*store.LexicalResult, semantic []*store.VectorResult, weights Weights) []*fusedCandidate {
	if len(lexical) == 0 && len(semantic) == 0 {
		return []*fusedCandidate{}
	}

	byID := make(map[string]*fusedCandidate, len(lexical)+len(semantic))

	lexScores := make([]float64, len(lexical))
	for i, r := range lexical {
		lexScores[i] = r.Score
	}
	lexNorm := minMaxNormalize(lexScores)
	for i, r := range lexical {
		c := getOrCreate(byID, r.ChunkID)
		c.RawLexical = r.Score
		c.NormLexical = lexNorm[i]
		c.InLexical = true
		c.MatchedTerms = r.MatchedTerms
	}

	semScores := make([]float64, len(semantic))
	for i, r := range semantic {
		semScores[i] = float64(r.Similarity)
	}
	semNorm := minMaxNormalize(semScores)
	for i, r := range semantic {
		c := getOrCreate(byID, r.ChunkID)
		c.RawSemantic = float64(r.Similarity)
		c.NormSemantic = semNorm[i]
		c.InSemantic = true
	}

	results := make([]*fusedCandidate, 0, len(byID))
	for _, c := range byID {
		c.Combined = weights.Lexical*c.NormLexical + weights.Semantic*c.NormSemantic
		results = append(results, c)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Combined != b.Combined {
			return a.Combined > b.Combined
		}
		if a.RawSemantic != b.RawSemantic {
			return a.RawSemantic > b.RawSemantic
		}
		return a.ChunkID < b.ChunkID
	})

	return results
}

func getOrCreate(m map[string]*fusedCandidate, id string) *fusedCandidate {
	if c, ok := m[id]; ok {
		return c
	}
	c := &fusedCandidate{ChunkID: id}
	m[id] = c
	return c
}

// minMaxNormalize scales scores to [0, 1] within the set. A set whose
// scores are all equal maps to 1.0 for every member, which keeps a
// single-result set from normalizing to zero.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	normalized := make([]float64, len(scores))
	if max == min {
		for i := range normalized {
			normalized[i] = 1.0
		}
		return normalized
	}

	span := max - min
	for i, s := range scores {
		normalized[i] = (s - min) / span
	}
	return normalized
}
