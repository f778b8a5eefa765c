// Package notice remembers which announcements the user has already seen.
package notice

import (
	"github.com/pavelanni/aceplus/internal/model"
	"github.com/pavelanni/aceplus/internal/store"
)

// Storage is the durable key-value state notices are kept in.
type Storage interface {
	GetState(key string) (string, error)
	SetState(key, value string) error
}

// Tracker answers "is this new to the user" for updates, leaderboards and
// the first visit.
type Tracker struct {
	storage Storage
}

// NewTracker returns a Tracker over storage.
func NewTracker(storage Storage) *Tracker {
	return &Tracker{storage: storage}
}

// UpdateIsNew reports whether u has a version the user has not acknowledged.
func (t *Tracker) UpdateIsNew(u model.Update) (bool, error) {
	if u.Version == "" {
		return false, nil
	}
	seen, err := t.storage.GetState(store.KeyLastSeenUpdate)
	if err != nil {
		return false, err
	}
	return seen != u.Version, nil
}

// AckUpdate marks u as seen.
func (t *Tracker) AckUpdate(u model.Update) error {
	return t.storage.SetState(store.KeyLastSeenUpdate, u.Version)
}

// LeaderboardIsNew reports whether lb is a month or class the user has not seen.
func (t *Tracker) LeaderboardIsNew(lb model.Leaderboard) (bool, error) {
	if lb.Zero || len(lb.Entries) == 0 {
		return false, nil
	}
	seen, err := t.storage.GetState(store.KeyLastSeenLeaderboardID)
	if err != nil {
		return false, err
	}
	return seen != lb.ID(), nil
}

// AckLeaderboard marks lb as seen.
func (t *Tracker) AckLeaderboard(lb model.Leaderboard) error {
	return t.storage.SetState(store.KeyLastSeenLeaderboardID, lb.ID())
}

// FirstVisit reports whether this is the first run and records the visit.
func (t *Tracker) FirstVisit() (bool, error) {
	v, err := t.storage.GetState(store.KeyHasVisitedBefore)
	if err != nil {
		return false, err
	}
	if v == "true" {
		return false, nil
	}
	return true, t.storage.SetState(store.KeyHasVisitedBefore, "true")
}
