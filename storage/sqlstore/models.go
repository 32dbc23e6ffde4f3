package sqlstore

import (
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-vocabulary-store/authz"
	"github.com/goliatone/go-vocabulary-store/vocab"
)

type listRecord struct {
	bun.BaseModel `bun:"table:vocab_lists,alias:vl"`

	ID          string    `bun:"id,pk"`
	OwnerID     string    `bun:"owner_id,notnull"`
	Name        string    `bun:"name,notnull"`
	Description string    `bun:"description,notnull"`
	Visibility  string    `bun:"visibility,notnull"`
	Kind        string    `bun:"kind,notnull"`
	SourceLang  string    `bun:"source_lang,notnull"`
	TargetLang  string    `bun:"target_lang,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

type itemRecord struct {
	bun.BaseModel `bun:"table:vocab_items,alias:vi"`

	ID            string    `bun:"id,pk"`
	ListID        string    `bun:"list_id,notnull"`
	SourceText    string    `bun:"source_text,notnull"`
	TargetText    string    `bun:"target_text,notnull"`
	Category      string    `bun:"category,notnull"`
	Difficulty    int       `bun:"difficulty,notnull"`
	PartOfSpeech  string    `bun:"part_of_speech,notnull"`
	ExampleSource string    `bun:"example_source,notnull"`
	ExampleTarget string    `bun:"example_target,notnull"`
	Pronunciation string    `bun:"pronunciation,notnull"`
	AudioURL      string    `bun:"audio_url,notnull"`
	Mastery       int       `bun:"mastery,notnull"`
	ReviewCount   int       `bun:"review_count,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func newListRecord(l vocab.List) *listRecord {
	return &listRecord{
		ID:          l.ID.String(),
		OwnerID:     l.OwnerID,
		Name:        l.Name,
		Description: l.Description,
		Visibility:  string(l.Visibility),
		Kind:        string(l.Kind),
		SourceLang:  l.SourceLang,
		TargetLang:  l.TargetLang,
		CreatedAt:   dbTime(l.CreatedAt),
		UpdatedAt:   dbTime(l.UpdatedAt),
	}
}

func (r *listRecord) list() (vocab.List, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return vocab.List{}, err
	}
	return vocab.List{
		ID:          id,
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		Description: r.Description,
		Visibility:  authz.Visibility(r.Visibility),
		Kind:        vocab.ListKind(r.Kind),
		SourceLang:  r.SourceLang,
		TargetLang:  r.TargetLang,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}, nil
}

func newItemRecord(it vocab.Item) *itemRecord {
	return &itemRecord{
		ID:            it.ID.String(),
		ListID:        it.ListID.String(),
		SourceText:    it.SourceText,
		TargetText:    it.TargetText,
		Category:      it.Category,
		Difficulty:    it.Difficulty,
		PartOfSpeech:  it.PartOfSpeech,
		ExampleSource: it.ExampleSource,
		ExampleTarget: it.ExampleTarget,
		Pronunciation: it.Pronunciation,
		AudioURL:      it.AudioURL,
		Mastery:       it.Mastery,
		ReviewCount:   it.ReviewCount,
		CreatedAt:     dbTime(it.CreatedAt),
		UpdatedAt:     dbTime(it.UpdatedAt),
	}
}

func (r *itemRecord) item() (vocab.Item, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return vocab.Item{}, err
	}
	listID, err := uuid.Parse(r.ListID)
	if err != nil {
		return vocab.Item{}, err
	}
	return vocab.Item{
		ID:            id,
		ListID:        listID,
		SourceText:    r.SourceText,
		TargetText:    r.TargetText,
		Category:      r.Category,
		Difficulty:    r.Difficulty,
		PartOfSpeech:  r.PartOfSpeech,
		ExampleSource: r.ExampleSource,
		ExampleTarget: r.ExampleTarget,
		Pronunciation: r.Pronunciation,
		AudioURL:      r.AudioURL,
		Mastery:       r.Mastery,
		ReviewCount:   r.ReviewCount,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}, nil
}

func listHandlers() repository.ModelHandlers[*listRecord] {
	return repository.ModelHandlers[*listRecord]{
		NewRecord: func() *listRecord { return &listRecord{} },
		GetID: func(r *listRecord) uuid.UUID {
			id, _ := uuid.Parse(r.ID)
			return id
		},
		SetID: func(r *listRecord, id uuid.UUID) { r.ID = id.String() },
		GetIdentifier: func() string { return "name" },
	}
}

func itemHandlers() repository.ModelHandlers[*itemRecord] {
	return repository.ModelHandlers[*itemRecord]{
		NewRecord: func() *itemRecord { return &itemRecord{} },
		GetID: func(r *itemRecord) uuid.UUID {
			id, _ := uuid.Parse(r.ID)
			return id
		},
		SetID: func(r *itemRecord, id uuid.UUID) { r.ID = id.String() },
		GetIdentifier: func() string { return "source_text" },
	}
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
