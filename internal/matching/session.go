package matching

import (
	"time"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties records which difficulty levels a user selected for the session.
type Difficulties struct {
	Easy   bool `json:"easy"`
	Medium bool `json:"medium"`
	Hard   bool `json:"hard"`
}

func (d Difficulties) has(level Difficulty) bool {
	switch level {
	case DifficultyEasy:
		return d.Easy
	case DifficultyMedium:
		return d.Medium
	case DifficultyHard:
		return d.Hard
	}
	return false
}

// None reports whether no difficulty level is selected.
func (d Difficulties) None() bool {
	return !d.Easy && !d.Medium && !d.Hard
}

type ConfirmationStatus string

const (
	ConfirmationWaiting   ConfirmationStatus = "waiting"
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	ConfirmationTimeout   ConfirmationStatus = "timeout"
	ConfirmationDeclined  ConfirmationStatus = "declined"
)

// Session is a user's transient participation record in the matching process.
// The engine's registry is the canonical owner; queues hold views into it.
type Session struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Difficulties Difficulties `json:"difficulties"`
	Topics       []string     `json:"topics"`
	ProgLangs    []string     `json:"progLangs"`

	// MatchedUserID refers to the paired session by id, empty while unmatched.
	// Symmetric for the lifetime of a match.
	MatchedUserID      string             `json:"-"`
	ConfirmationStatus ConfirmationStatus `json:"-"`
	IsPeerReady        bool               `json:"-"`
	RoomID             string             `json:"-"`
	EnqueuedAt         time.Time          `json:"-"`
	MatchedAt          time.Time          `json:"-"`
}

// CommonTopics returns the topics both users requested.
func CommonTopics(a, b *Session) []string {
	common := []string{}
	for _, topic := range a.Topics {
		for _, other := range b.Topics {
			if topic == other {
				common = append(common, topic)
				break
			}
		}
	}
	return common
}

// CommonDifficulties returns the difficulty levels both users selected.
func CommonDifficulties(a, b *Session) []Difficulty {
	common := []Difficulty{}
	for _, level := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard} {
		if a.Difficulties.has(level) && b.Difficulties.has(level) {
			common = append(common, level)
		}
	}
	return common
}

// HasCommonDifficulties reports whether the two users share at least one
// selected difficulty level.
func HasCommonDifficulties(a, b *Session) bool {
	return len(CommonDifficulties(a, b)) > 0
}

func cloneSession(s *Session) *Session {
	c := *s
	c.Topics = append([]string(nil), s.Topics...)
	c.ProgLangs = append([]string(nil), s.ProgLangs...)
	return &c
}
