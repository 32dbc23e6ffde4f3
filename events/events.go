// Package events carries usage signals emitted after successful writes. The
// set of events is closed: every variant is declared here and implements the
// unexported marker method, so a type switch over Event is exhaustive.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind names an event variant.
type Kind string

const (
	KindItemsAdded     Kind = "items_added"
	KindItemUpdated    Kind = "item_updated"
	KindItemsDeleted   Kind = "items_deleted"
	KindReviewRecorded Kind = "review_recorded"
)

// Event is one of ItemsAdded, ItemUpdated, ItemsDeleted or ReviewRecorded.
type Event interface {
	Kind() Kind
	Owner() string
	OccurredAt() time.Time
	sealed()
}

// ItemsAdded is emitted once per batch or single add.
type ItemsAdded struct {
	OwnerID string
	ListIDs []uuid.UUID
	ItemIDs []uuid.UUID
	At      time.Time
}

// ItemUpdated is emitted when an item patch is applied.
type ItemUpdated struct {
	OwnerID string
	ListID  uuid.UUID
	ItemID  uuid.UUID
	Fields  []string
	At      time.Time
}

// ItemsDeleted is emitted once per batch or single delete.
type ItemsDeleted struct {
	OwnerID string
	ItemIDs []uuid.UUID
	At      time.Time
}

// ReviewRecorded is emitted after a practice review changes mastery.
type ReviewRecorded struct {
	OwnerID     string
	ItemID      uuid.UUID
	Quality     int
	Mastery     int
	ReviewCount int
	At          time.Time
}

func (ItemsAdded) Kind() Kind     { return KindItemsAdded }
func (ItemUpdated) Kind() Kind    { return KindItemUpdated }
func (ItemsDeleted) Kind() Kind   { return KindItemsDeleted }
func (ReviewRecorded) Kind() Kind { return KindReviewRecorded }

func (e ItemsAdded) Owner() string     { return e.OwnerID }
func (e ItemUpdated) Owner() string    { return e.OwnerID }
func (e ItemsDeleted) Owner() string   { return e.OwnerID }
func (e ReviewRecorded) Owner() string { return e.OwnerID }

func (e ItemsAdded) OccurredAt() time.Time     { return e.At }
func (e ItemUpdated) OccurredAt() time.Time    { return e.At }
func (e ItemsDeleted) OccurredAt() time.Time   { return e.At }
func (e ReviewRecorded) OccurredAt() time.Time { return e.At }

func (ItemsAdded) sealed()     {}
func (ItemUpdated) sealed()    {}
func (ItemsDeleted) sealed()   {}
func (ReviewRecorded) sealed() {}

// Count returns how many items an event refers to.
func Count(e Event) int {
	switch ev := e.(type) {
	case ItemsAdded:
		return len(ev.ItemIDs)
	case ItemsDeleted:
		return len(ev.ItemIDs)
	case ItemUpdated, ReviewRecorded:
		return 1
	default:
		return 0
	}
}
