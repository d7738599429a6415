package storage

import (
	"time"

	"github.com/google/uuid"
)

// Match outcomes
const (
	OutcomeConfirmed = "confirmed"
	OutcomeDeclined  = "declined"
	OutcomeTimeout   = "timeout"
)

// MatchRecord is the durable trace of a resolved match. It is written only
// when a pair leaves the confirmation phase; in-flight matching state never
// touches the database.
type MatchRecord struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserAID      string    `json:"user_a_id" db:"user_a_id"`
	UserAEmail   string    `json:"user_a_email" db:"user_a_email"`
	UserBID      string    `json:"user_b_id" db:"user_b_id"`
	UserBEmail   string    `json:"user_b_email" db:"user_b_email"`
	RoomID       string    `json:"room_id" db:"room_id"`
	Topics       []string  `json:"topics" db:"topics"`
	Difficulties []string  `json:"difficulties" db:"difficulties"`
	Outcome      string    `json:"outcome" db:"outcome"`
	MatchedAt    time.Time `json:"matched_at" db:"matched_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
