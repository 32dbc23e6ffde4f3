package vocab

import (
	"slices"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SearchQuery is the input of Search. Filter narrows the candidate set the
// same way it does for ListItems.
type SearchQuery struct {
	Text          string     `json:"text"`
	Filter        ItemFilter `json:"filter"`
	IncludePublic bool       `json:"include_public,omitempty"`
	Limit         int        `json:"limit,omitempty"`
}

// Validate checks the query text and limit.
func (q SearchQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Text, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&q.Limit, validation.Min(0), validation.Max(1000)),
	)
}

// SearchHit is a ranked search result. Field names the best matching field.
type SearchHit struct {
	Item  Item    `json:"item"`
	Score float64 `json:"score"`
	Field string  `json:"field"`
}

// Field weights. Matches on the source text count the most.
const (
	weightSource  = 3
	weightTarget  = 2
	weightExample = 1
)

// Match levels before weighting. A substring match scores between
// levelSubstring and levelSubstring+positionBonus depending on how early it
// starts; a fuzzy match scores below levelFuzzy.
const (
	levelExact     = 3.0
	levelSubstring = 2.0
	positionBonus  = 0.5
	levelFuzzy     = 1.0
)

var folder = cases.Fold()

// normalize folds case, strips diacritics and collapses whitespace so
// "Café" and "cafe" compare equal.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(folder.String(stripped)), " ")
}

type ranker struct {
	query       string
	maxDistance int
	minScore    float64
}

func newRanker(text string, cfg Config) ranker {
	return ranker{
		query:       normalize(text),
		maxDistance: cfg.SearchMaxDistance,
		minScore:    cfg.SearchMinScore,
	}
}

// rank scores items and returns those at or above the minimum score, ordered
// by score desc, source text asc and ID asc.
func (r ranker) rank(items []Item, limit int) []SearchHit {
	hits := make([]SearchHit, 0, len(items))
	for _, it := range items {
		if hit, ok := r.score(it); ok {
			hits = append(hits, hit)
		}
	}

	slices.SortFunc(hits, func(a, b SearchHit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		if c := strings.Compare(a.Item.SourceText, b.Item.SourceText); c != 0 {
			return c
		}
		return compareIDs(a.Item.ID, b.Item.ID)
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func (r ranker) score(it Item) (SearchHit, bool) {
	fields := []struct {
		name   string
		text   string
		weight float64
	}{
		{"source_text", it.SourceText, weightSource},
		{"target_text", it.TargetText, weightTarget},
		{"example_source", it.ExampleSource, weightExample},
		{"example_target", it.ExampleTarget, weightExample},
	}

	hit := SearchHit{Item: it}
	best := 0.0
	for _, f := range fields {
		s := r.fieldScore(f.text) * f.weight
		if s > best {
			best = s
			hit.Field = f.name
		}
		hit.Score += s
	}
	if hit.Score == 0 || hit.Score < r.minScore {
		return SearchHit{}, false
	}
	return hit, true
}

func (r ranker) fieldScore(text string) float64 {
	if text == "" || r.query == "" {
		return 0
	}
	t := normalize(text)

	if t == r.query {
		return levelExact
	}
	if pos := strings.Index(t, r.query); pos >= 0 {
		return levelSubstring + positionBonus*(1-float64(pos)/float64(len(t)))
	}

	// Fuzzy matching only makes sense for queries longer than the tolerated
	// distance.
	if r.maxDistance == 0 || len([]rune(r.query)) <= r.maxDistance {
		return 0
	}
	best := -1
	candidates := append(strings.Fields(t), t)
	for _, c := range candidates {
		if d := boundedDistance(c, r.query, r.maxDistance); d >= 0 && (best < 0 || d < best) {
			best = d
		}
	}
	if best < 0 {
		return 0
	}
	return levelFuzzy * (1 - float64(best)/float64(r.maxDistance+1))
}

// boundedDistance returns the Levenshtein distance between a and b, or -1
// when it exceeds bound.
func boundedDistance(a, b string, bound int) int {
	ra, rb := []rune(a), []rune(b)
	if d := len(ra) - len(rb); d > bound || -d > bound {
		return -1
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, curr[j])
		}
		if rowMin > bound {
			return -1
		}
		prev, curr = curr, prev
	}

	if prev[len(rb)] > bound {
		return -1
	}
	return prev[len(rb)]
}

func sortIDs(ids []uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, compareIDs)
	return slices.Compact(out)
}
