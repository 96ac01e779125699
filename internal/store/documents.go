package store

import "database/sql"

// Documents bundles the per-user document stores so one value can serve the
// synchronizer and the social graph.
type Documents struct {
	*HabitStore
	*CompletionStore
	*ProfileStore
	*FriendRequestStore
}

func NewDocuments(db *sql.DB) *Documents {
	return &Documents{
		HabitStore:         NewHabitStore(db),
		CompletionStore:    NewCompletionStore(db),
		ProfileStore:       NewProfileStore(db),
		FriendRequestStore: NewFriendRequestStore(db),
	}
}
