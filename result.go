package vision

import (
	"cmp"
	"slices"
	"strings"

	"github.com/otic/vision/store"
	"github.com/otic/vision/token"
)

// Verdict is the categorical outcome of a recognition.
type Verdict int

const (
	// Unregistered: no candidate reached RegisterThreshold.
	Unregistered Verdict = iota
	// Registered: one candidate clearly matched.
	Registered
	// Ambiguous: several strong candidates within AmbiguityMargin. Not an
	// error; the caller disambiguates.
	Ambiguous
)

func (v Verdict) String() string {
	switch v {
	case Unregistered:
		return "Unregistered"
	case Registered:
		return "Registered"
	case Ambiguous:
		return "Ambiguous"
	default:
		return "Unknown"
	}
}

// Source reports where the candidates of a result came from.
type Source int

const (
	// SourceFullScan: the token store was scanned in full.
	SourceFullScan Source = iota
	// SourceCache: the candidate index shortlist was trusted.
	SourceCache
	// SourceBucketRead: the shortlist was trusted after the buckets of the
	// query were read through from the token store.
	SourceBucketRead
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceBucketRead:
		return "bucket_read"
	case SourceFullScan:
		return "full_scan"
	default:
		return "unknown"
	}
}

// Candidate is a scored product.
type Candidate struct {
	Match store.ProductMatch
	Score float64
}

// RecognitionResult is produced fresh per call and never persisted.
type RecognitionResult struct {
	QueryToken token.VisualToken
	// Candidates are ordered by descending score, ties by ascending ProductID.
	Candidates []Candidate
	Verdict    Verdict
	// Confidence is the top score, or 0 without candidates.
	Confidence float64
	Source     Source
}

// Best returns the top candidate.
func (r *RecognitionResult) Best() (Candidate, bool) {
	if r == nil || len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Decide applies the verdict policy to scored candidates in any order.
//
//  1. No candidates: Unregistered, confidence 0.
//  2. best ≥ RegisterThreshold and best − second ≥ AmbiguityMargin: Registered.
//  3. best ≥ RegisterThreshold otherwise: Ambiguous.
//  4. Otherwise: Unregistered, confidence = best.
func Decide(candidates []Candidate, cfg Config) (Verdict, float64) {
	if len(candidates) == 0 {
		return Unregistered, 0
	}

	best, second := candidates[0].Score, 0.0
	for _, c := range candidates[1:] {
		switch {
		case c.Score > best:
			best, second = c.Score, best
		case c.Score > second:
			second = c.Score
		}
	}

	if best < cfg.RegisterThreshold {
		return Unregistered, best
	}
	if len(candidates) == 1 || best-second >= cfg.AmbiguityMargin {
		return Registered, best
	}
	return Ambiguous, best
}

func sortCandidates(cs []Candidate) {
	slices.SortFunc(cs, func(a, b Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Match.ProductID, b.Match.ProductID)
	})
}
