package alarms

import (
	"math"
	"regexp"
	"strings"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

// Field weights for the similarity score. Weights of absent fields are
// excluded and the remainder re-normalized.
const (
	weightTitle       = 0.40
	weightDescription = 0.20
	weightHost        = 0.15
	weightService     = 0.15
	weightTags        = 0.10
)

var tokenSplitRe = regexp.MustCompile(`[^a-z0-9]+`)

// Similarity computes a continuous [0,1] similarity between two alarms using
// weighted field comparison. Title and description use text-vector cosine
// similarity, host and service exact match, tags the fraction of shared keys
// with equal values.
func Similarity(a, b *database.Alarm) float64 {
	var weighted, total float64

	if a.Title != "" || b.Title != "" {
		weighted += weightTitle * TextSimilarity(a.Title, b.Title)
		total += weightTitle
	}
	if a.Description != "" || b.Description != "" {
		weighted += weightDescription * TextSimilarity(a.Description, b.Description)
		total += weightDescription
	}
	if a.Host != "" || b.Host != "" {
		weighted += weightHost * exactMatch(a.Host, b.Host)
		total += weightHost
	}
	if a.Service != "" || b.Service != "" {
		weighted += weightService * exactMatch(a.Service, b.Service)
		total += weightService
	}
	if len(a.Tags) > 0 || len(b.Tags) > 0 {
		weighted += weightTags * tagSimilarity(a.Tags, b.Tags)
		total += weightTags
	}

	if total == 0 {
		return 0
	}
	return weighted / total
}

// TextSimilarity returns the cosine similarity of two texts' term-frequency
// vectors. Identical strings score exactly 1.0 and empty-vs-non-empty scores
// exactly 0.0, regardless of vectorization internals.
func TextSimilarity(x, y string) float64 {
	if x == "" || y == "" {
		return 0
	}
	if x == y {
		return 1
	}

	vx := termFrequencies(x)
	vy := termFrequencies(y)
	if len(vx) == 0 || len(vy) == 0 {
		return 0
	}

	var dot, normX, normY float64
	for term, fx := range vx {
		normX += fx * fx
		if fy, ok := vy[term]; ok {
			dot += fx * fy
		}
	}
	for _, fy := range vy {
		normY += fy * fy
	}
	if normX == 0 || normY == 0 {
		return 0
	}
	return dot / (math.Sqrt(normX) * math.Sqrt(normY))
}

func termFrequencies(text string) map[string]float64 {
	tokens := tokenSplitRe.Split(strings.ToLower(text), -1)
	freqs := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		freqs[tok]++
	}
	return freqs
}

func exactMatch(x, y string) float64 {
	if x != "" && x == y {
		return 1
	}
	return 0
}

// tagSimilarity is the number of keys present in both maps with equal values
// over the number of distinct keys across both maps
func tagSimilarity(a, b database.Labels) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	union := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		union[k] = struct{}{}
	}
	for k := range b {
		union[k] = struct{}{}
	}
	matches := 0
	for k, va := range a {
		if vb, ok := b[k]; ok && va == vb {
			matches++
		}
	}
	return float64(matches) / float64(len(union))
}
