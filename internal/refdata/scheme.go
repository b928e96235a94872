package refdata

import (
	"context"
	"sort"
	"strings"

	"fundlens/internal/models"
)

// Scoring thresholds: auto-accept the top candidate when its score clears
// acceptThreshold, or when it leads the runner-up by at least gapThreshold.
const (
	acceptThreshold = 0.75
	gapThreshold    = 0.10
)

// SchemeSearcher is the search-by-name collaborator (mfapi search endpoint).
type SchemeSearcher interface {
	Search(ctx context.Context, text string) ([]models.SchemeCandidate, error)
}

// SchemeResolver re-scores raw search hits with name-similarity heuristics
// and decides whether the top match can be accepted without the user.
type SchemeResolver struct {
	searcher SchemeSearcher
}

func NewSchemeResolver(searcher SchemeSearcher) *SchemeResolver {
	return &SchemeResolver{searcher: searcher}
}

// ResolveSchemeCandidates returns candidates ranked best-first.
func (s *SchemeResolver) ResolveSchemeCandidates(ctx context.Context, query string) ([]models.SchemeCandidate, error) {
	raw, err := s.searcher.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	scored := make([]models.SchemeCandidate, 0, len(raw))
	for _, c := range raw {
		c.Score = ScoreSchemeName(query, c.SchemeName)
		scored = append(scored, c)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored, nil
}

// ResolveSchemeCode picks a scheme code automatically when the match is
// unambiguous; otherwise it returns AmbiguousSchemeError with the ranked
// list so the caller can disambiguate. It never silently defaults.
func (s *SchemeResolver) ResolveSchemeCode(ctx context.Context, query string) (string, error) {
	candidates, err := s.ResolveSchemeCandidates(ctx, query)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", &models.AmbiguousSchemeError{Query: query}
	}
	top := candidates[0]
	if top.Score > acceptThreshold {
		return top.SchemeCode, nil
	}
	if len(candidates) == 1 || top.Score-candidates[1].Score > gapThreshold {
		return top.SchemeCode, nil
	}
	return "", &models.AmbiguousSchemeError{Query: query, Candidates: candidates}
}

// plan-variant terms that bias the score. A penalty term present in the
// query itself is what the user wants, so the penalty is waived.
var (
	bonusTerms   = []string{"direct", "growth"}
	penaltyTerms = []string{"regular", "idcw", "dividend", "bonus"}
)

// ScoreSchemeName combines a string-similarity ratio with fixed plan-variant
// heuristics: modern retail queries mean the Direct/Growth variant unless
// they say otherwise.
func ScoreSchemeName(query, name string) float64 {
	q := strings.ToLower(query)
	n := strings.ToLower(name)
	score := similarityRatio(q, n)

	for _, term := range bonusTerms {
		if strings.Contains(n, term) {
			score += 0.05
		}
	}
	for _, term := range penaltyTerms {
		if strings.Contains(n, term) && !strings.Contains(q, term) {
			score -= 0.05
		}
	}
	return score
}

// similarityRatio is the Ratcliff/Obershelp ratio: twice the total length of
// recursively matched blocks over the combined length.
func similarityRatio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matched := matchingBlocks([]rune(a), []rune(b))
	return 2 * float64(matched) / float64(len([]rune(a))+len([]rune(b)))
}

func matchingBlocks(a, b []rune) int {
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingBlocks(a[:ai], b[:bi])
	total += matchingBlocks(a[ai+size:], b[bi+size:])
	return total
}

func longestMatch(a, b []rune) (ai, bi, size int) {
	// j2len[j] is the length of the common run ending at a[i-1], b[j-1].
	j2len := make(map[int]int)
	for i := range a {
		next := make(map[int]int)
		for j := range b {
			if a[i] == b[j] {
				k := j2len[j-1] + 1
				next[j] = k
				if k > size {
					ai, bi, size = i-k+1, j-k+1, k
				}
			}
		}
		j2len = next
	}
	return ai, bi, size
}
