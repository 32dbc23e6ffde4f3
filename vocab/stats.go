package vocab

// MasteredThreshold is the mastery from which an item counts as mastered.
const MasteredThreshold = 80

// Stats aggregates the items a caller can see.
type Stats struct {
	Lists          int            `json:"lists"`
	Items          int            `json:"items"`
	ByCategory     map[string]int `json:"by_category"`
	ByDifficulty   map[int]int    `json:"by_difficulty"`
	AverageMastery float64        `json:"average_mastery"`
	Mastered       int            `json:"mastered"`
	TotalReviews   int            `json:"total_reviews"`
}

func computeStats(lists int, items []Item) Stats {
	s := Stats{
		Lists:        lists,
		Items:        len(items),
		ByCategory:   make(map[string]int),
		ByDifficulty: make(map[int]int),
	}

	mastery := 0
	for _, it := range items {
		category := it.Category
		if category == "" {
			category = "uncategorized"
		}
		s.ByCategory[category]++
		s.ByDifficulty[it.Difficulty]++
		mastery += it.Mastery
		s.TotalReviews += it.ReviewCount
		if it.Mastery >= MasteredThreshold {
			s.Mastered++
		}
	}
	if len(items) > 0 {
		s.AverageMastery = float64(mastery) / float64(len(items))
	}
	return s
}
