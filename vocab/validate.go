package vocab

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-vocabulary-store/authz"
	"github.com/google/uuid"
)

const (
	MinDifficulty = 1
	MaxDifficulty = 10
	MinMastery    = 0
	MaxMastery    = 100

	maxTextLength = 500
)

var requiredID = validation.By(func(value any) error {
	id, _ := value.(uuid.UUID)
	if id == uuid.Nil {
		return errors.New("cannot be blank")
	}
	return nil
})

var visibilityRule = validation.In(authz.Public, authz.Private)

// Validate checks the ranges and required fields of a new item.
func (n NewItem) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ListID, requiredID),
		validation.Field(&n.SourceText, validation.Required, validation.RuneLength(1, maxTextLength)),
		validation.Field(&n.TargetText, validation.Required, validation.RuneLength(1, maxTextLength)),
		validation.Field(&n.Category, validation.RuneLength(0, 64)),
		validation.Field(&n.Difficulty, validation.Required, validation.Min(MinDifficulty), validation.Max(MaxDifficulty)),
		validation.Field(&n.PartOfSpeech, validation.RuneLength(0, 32)),
		validation.Field(&n.ExampleSource, validation.RuneLength(0, 2*maxTextLength)),
		validation.Field(&n.ExampleTarget, validation.RuneLength(0, 2*maxTextLength)),
		validation.Field(&n.Pronunciation, validation.RuneLength(0, 128)),
		validation.Field(&n.AudioURL, is.URL),
	)
}

// Validate checks the fields set in the patch.
func (p ItemPatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.SourceText, validation.NilOrNotEmpty, validation.RuneLength(1, maxTextLength)),
		validation.Field(&p.TargetText, validation.NilOrNotEmpty, validation.RuneLength(1, maxTextLength)),
		validation.Field(&p.Category, validation.RuneLength(0, 64)),
		validation.Field(&p.Difficulty, validation.NilOrNotEmpty, validation.Min(MinDifficulty), validation.Max(MaxDifficulty)),
		validation.Field(&p.PartOfSpeech, validation.RuneLength(0, 32)),
		validation.Field(&p.ExampleSource, validation.RuneLength(0, 2*maxTextLength)),
		validation.Field(&p.ExampleTarget, validation.RuneLength(0, 2*maxTextLength)),
		validation.Field(&p.Pronunciation, validation.RuneLength(0, 128)),
		validation.Field(&p.AudioURL, is.URL),
		validation.Field(&p.Mastery, validation.Min(MinMastery), validation.Max(MaxMastery)),
		validation.Field(&p.ReviewCount, validation.Min(0)),
	)
}

// Validate checks a new list. Curated lists must be public.
func (n NewList) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Name, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&n.Description, validation.RuneLength(0, 2000)),
		validation.Field(&n.Visibility, validation.Required, visibilityRule,
			validation.When(n.Kind == KindCurated, validation.In(authz.Public).Error("curated lists must be public"))),
		validation.Field(&n.Kind, validation.In(KindCustom, KindCurated)),
		validation.Field(&n.SourceLang, validation.Required, validation.RuneLength(2, 16)),
		validation.Field(&n.TargetLang, validation.Required, validation.RuneLength(2, 16)),
	)
}

// Validate checks the fields set in the patch.
func (p ListPatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.NilOrNotEmpty, validation.RuneLength(1, 200)),
		validation.Field(&p.Description, validation.RuneLength(0, 2000)),
		validation.Field(&p.Visibility, validation.NilOrNotEmpty, visibilityRule),
	)
}

// Validate checks the paging and range fields of a query.
func (q ItemQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Limit, validation.Min(0), validation.Max(1000)),
		validation.Field(&q.Offset, validation.Min(0)),
		validation.Field(&q.Sort, validation.By(func(any) error {
			return validation.Validate(q.Sort.Field,
				validation.In(SortCreatedAt, SortSourceText, SortDifficulty, SortMastery))
		})),
		validation.Field(&q.Filter, validation.By(func(any) error {
			f := q.Filter
			return validation.ValidateStruct(&f,
				validation.Field(&f.MinDifficulty, validation.Min(0), validation.Max(MaxDifficulty)),
				validation.Field(&f.MaxDifficulty, validation.Min(0), validation.Max(MaxDifficulty)),
				validation.Field(&f.MinMastery, validation.Min(MinMastery), validation.Max(MaxMastery)),
				validation.Field(&f.MaxMastery, validation.Min(MinMastery), validation.Max(MaxMastery)),
			)
		})),
	)
}
