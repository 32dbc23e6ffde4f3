package vocab

import (
	"time"

	"github.com/goliatone/go-vocabulary-store/authz"
	"github.com/google/uuid"
)

// ListKind separates lists built by users from curated collections.
type ListKind string

const (
	KindCustom  ListKind = "custom"
	KindCurated ListKind = "curated"
)

// List groups items under one owner and visibility.
type List struct {
	ID          uuid.UUID        `json:"id"`
	OwnerID     string           `json:"owner_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Visibility  authz.Visibility `json:"visibility"`
	Kind        ListKind         `json:"kind"`
	SourceLang  string           `json:"source_lang"`
	TargetLang  string           `json:"target_lang"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Resource returns the authorization view of the list.
func (l List) Resource() authz.Resource {
	return authz.Resource{OwnerID: l.OwnerID, Visibility: l.Visibility}
}

// Public reports whether non owners may read the list.
func (l List) Public() bool { return l.Visibility == authz.Public }

// Item is one learning unit. Its ID never changes once assigned.
type Item struct {
	ID            uuid.UUID `json:"id"`
	ListID        uuid.UUID `json:"list_id"`
	SourceText    string    `json:"source_text"`
	TargetText    string    `json:"target_text"`
	Category      string    `json:"category,omitempty"`
	Difficulty    int       `json:"difficulty"`
	PartOfSpeech  string    `json:"part_of_speech,omitempty"`
	ExampleSource string    `json:"example_source,omitempty"`
	ExampleTarget string    `json:"example_target,omitempty"`
	Pronunciation string    `json:"pronunciation,omitempty"`
	AudioURL      string    `json:"audio_url,omitempty"`
	Mastery       int       `json:"mastery"`
	ReviewCount   int       `json:"review_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewList is the input of CreateList.
type NewList struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Visibility  authz.Visibility `json:"visibility"`
	Kind        ListKind         `json:"kind"`
	SourceLang  string           `json:"source_lang"`
	TargetLang  string           `json:"target_lang"`
}

// NewItem is the input of AddItem and AddBatch.
type NewItem struct {
	ListID        uuid.UUID `json:"list_id"`
	SourceText    string    `json:"source_text"`
	TargetText    string    `json:"target_text"`
	Category      string    `json:"category,omitempty"`
	Difficulty    int       `json:"difficulty"`
	PartOfSpeech  string    `json:"part_of_speech,omitempty"`
	ExampleSource string    `json:"example_source,omitempty"`
	ExampleTarget string    `json:"example_target,omitempty"`
	Pronunciation string    `json:"pronunciation,omitempty"`
	AudioURL      string    `json:"audio_url,omitempty"`
}

func (n NewItem) build(id uuid.UUID, now time.Time) Item {
	return Item{
		ID:            id,
		ListID:        n.ListID,
		SourceText:    n.SourceText,
		TargetText:    n.TargetText,
		Category:      n.Category,
		Difficulty:    n.Difficulty,
		PartOfSpeech:  n.PartOfSpeech,
		ExampleSource: n.ExampleSource,
		ExampleTarget: n.ExampleTarget,
		Pronunciation: n.Pronunciation,
		AudioURL:      n.AudioURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ItemPatch lists the fields UpdateItem changes. Nil fields are left alone.
type ItemPatch struct {
	SourceText    *string `json:"source_text,omitempty"`
	TargetText    *string `json:"target_text,omitempty"`
	Category      *string `json:"category,omitempty"`
	Difficulty    *int    `json:"difficulty,omitempty"`
	PartOfSpeech  *string `json:"part_of_speech,omitempty"`
	ExampleSource *string `json:"example_source,omitempty"`
	ExampleTarget *string `json:"example_target,omitempty"`
	Pronunciation *string `json:"pronunciation,omitempty"`
	AudioURL      *string `json:"audio_url,omitempty"`
	Mastery       *int    `json:"mastery,omitempty"`
	ReviewCount   *int    `json:"review_count,omitempty"`
}

// Fields returns the column names set in the patch, in a stable order.
func (p ItemPatch) Fields() []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(p.SourceText != nil, "source_text")
	add(p.TargetText != nil, "target_text")
	add(p.Category != nil, "category")
	add(p.Difficulty != nil, "difficulty")
	add(p.PartOfSpeech != nil, "part_of_speech")
	add(p.ExampleSource != nil, "example_source")
	add(p.ExampleTarget != nil, "example_target")
	add(p.Pronunciation != nil, "pronunciation")
	add(p.AudioURL != nil, "audio_url")
	add(p.Mastery != nil, "mastery")
	add(p.ReviewCount != nil, "review_count")
	return fields
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool { return len(p.Fields()) == 0 }

// Apply copies the set fields onto it. ID and ListID are never touched.
func (p ItemPatch) Apply(it *Item) {
	setString(&it.SourceText, p.SourceText)
	setString(&it.TargetText, p.TargetText)
	setString(&it.Category, p.Category)
	setString(&it.PartOfSpeech, p.PartOfSpeech)
	setString(&it.ExampleSource, p.ExampleSource)
	setString(&it.ExampleTarget, p.ExampleTarget)
	setString(&it.Pronunciation, p.Pronunciation)
	setString(&it.AudioURL, p.AudioURL)
	if p.Difficulty != nil {
		it.Difficulty = *p.Difficulty
	}
	if p.Mastery != nil {
		it.Mastery = *p.Mastery
	}
	if p.ReviewCount != nil {
		it.ReviewCount = *p.ReviewCount
	}
}

// ListPatch lists the fields UpdateList changes.
type ListPatch struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Visibility  *authz.Visibility `json:"visibility,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ListPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Visibility == nil
}

// Apply copies the set fields onto l.
func (p ListPatch) Apply(l *List) {
	setString(&l.Name, p.Name)
	setString(&l.Description, p.Description)
	if p.Visibility != nil {
		l.Visibility = *p.Visibility
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// SortField names a column items can be ordered by.
type SortField string

const (
	SortCreatedAt  SortField = "created_at"
	SortSourceText SortField = "source_text"
	SortDifficulty SortField = "difficulty"
	SortMastery    SortField = "mastery"
)

// Sort orders query results. Ties are always broken by ID ascending.
type Sort struct {
	Field SortField `json:"field,omitempty"`
	Desc  bool      `json:"desc,omitempty"`
}

// ItemFilter restricts the items a query returns. Zero values do not filter.
type ItemFilter struct {
	IDs           []uuid.UUID `json:"ids,omitempty"`
	ListIDs       []uuid.UUID `json:"list_ids,omitempty"`
	Category      string      `json:"category,omitempty"`
	PartOfSpeech  string      `json:"part_of_speech,omitempty"`
	MinDifficulty int         `json:"min_difficulty,omitempty"`
	MaxDifficulty int         `json:"max_difficulty,omitempty"`
	MinMastery    *int        `json:"min_mastery,omitempty"`
	MaxMastery    *int        `json:"max_mastery,omitempty"`
}

// Match reports whether it passes the filter.
func (f ItemFilter) Match(it Item) bool {
	if len(f.IDs) > 0 && !containsID(f.IDs, it.ID) {
		return false
	}
	if len(f.ListIDs) > 0 && !containsID(f.ListIDs, it.ListID) {
		return false
	}
	if f.Category != "" && f.Category != it.Category {
		return false
	}
	if f.PartOfSpeech != "" && f.PartOfSpeech != it.PartOfSpeech {
		return false
	}
	if f.MinDifficulty > 0 && it.Difficulty < f.MinDifficulty {
		return false
	}
	if f.MaxDifficulty > 0 && it.Difficulty > f.MaxDifficulty {
		return false
	}
	if f.MinMastery != nil && it.Mastery < *f.MinMastery {
		return false
	}
	if f.MaxMastery != nil && it.Mastery > *f.MaxMastery {
		return false
	}
	return true
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// ItemQuery is the input of ListItems and Stats.
//
// When Filter.ListIDs is empty the query covers every list the caller owns,
// plus public lists when IncludePublic is set. Named lists must all be
// readable by the caller.
type ItemQuery struct {
	Filter        ItemFilter `json:"filter"`
	IncludePublic bool       `json:"include_public,omitempty"`
	Sort          Sort       `json:"sort"`
	Limit         int        `json:"limit,omitempty"`
	Offset        int        `json:"offset,omitempty"`
}

// Page is one page of items with the total number of matches.
type Page struct {
	Items  []Item `json:"items"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// utc returns it with its timestamps in UTC. Cached values decode in local
// time.
func (it Item) utc() Item {
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	return it
}

func utcItems(items []Item) []Item {
	for i := range items {
		items[i] = items[i].utc()
	}
	return items
}
