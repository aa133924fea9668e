package search

import (
	"sort"

	"github.com/hyperjump/blueprint/internal/keyword"
	"github.com/hyperjump/blueprint/internal/models"
	"github.com/hyperjump/blueprint/internal/vector"
)

// FusedResult holds a chunk hit with its keyword and semantic contributions.
type FusedResult struct {
	Hit           models.RetrievalHit
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeKeywordScores normalizes keyword scores to [0,1] by max.
func NormalizeKeywordScores(results []*keyword.KeywordResult) map[string]float64 {
	if len(results) == 0 {
		return make(map[string]float64)
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	normalized := make(map[string]float64, len(results))
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

func hitFromMatch(m vector.Match) models.RetrievalHit {
	return models.RetrievalHit{
		ChunkID:     m.ID,
		DocumentID:  m.Metadata.DocumentID,
		DrawingName: m.Metadata.DrawingName,
		Page:        m.Metadata.Page,
		Text:        m.Metadata.Text,
		Score:       m.Score,
	}
}

func hitFromKeyword(r *keyword.KeywordResult) models.RetrievalHit {
	return models.RetrievalHit{
		ChunkID:     r.ID,
		DocumentID:  r.DocumentID,
		DrawingName: r.DrawingName,
		Page:        r.Page,
		Text:        r.Text,
	}
}

// Fuse merges vector matches with keyword results. The fused score is
// (1-keywordWeight)*cosine + keywordWeight*normalizedBM25; a weight of 0 keeps the cosine scores unchanged.
// Results are sorted by non-increasing score, ties broken by chunk ID.
func Fuse(matches []vector.Match, keywordResults []*keyword.KeywordResult, keywordWeight float64) []*FusedResult {
	keywordScores := NormalizeKeywordScores(keywordResults)
	byID := make(map[string]*FusedResult, len(matches)+len(keywordResults))
	for _, m := range matches {
		byID[m.ID] = &FusedResult{Hit: hitFromMatch(m), SemanticScore: m.Score}
	}
	for _, r := range keywordResults {
		if fr, ok := byID[r.ID]; ok {
			fr.KeywordScore = keywordScores[r.ID]
			continue
		}
		byID[r.ID] = &FusedResult{Hit: hitFromKeyword(r), KeywordScore: keywordScores[r.ID]}
	}

	results := make([]*FusedResult, 0, len(byID))
	for _, fr := range byID {
		if keywordWeight > 0 {
			fr.Hit.Score = (1-keywordWeight)*fr.SemanticScore + keywordWeight*fr.KeywordScore
		}
		results = append(results, fr)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Hit.Score != results[j].Hit.Score {
			return results[i].Hit.Score > results[j].Hit.Score
		}
		return results[i].Hit.ChunkID < results[j].Hit.ChunkID
	})
	return results
}
