package tutor

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by explicit lookups against unknown records.
var ErrNotFound = errors.New("record not found")

// Key identifies one mastery record.
type Key struct {
	UserID  string
	Subject string
	Topic   string
}

// MasteryRecord is the per-topic proficiency estimate. Mastery stays in
// [0,1]; TimesPracticed only grows.
type MasteryRecord struct {
	UserID         string    `db:"user_id" json:"user_id"`
	Subject        string    `db:"subject" json:"subject"`
	Topic          string    `db:"topic" json:"topic"`
	Mastery        float64   `db:"mastery" json:"mastery"`
	TimesPracticed int       `db:"times_practiced" json:"times_practiced"`
	LastPracticed  time.Time `db:"last_practiced" json:"last_practiced"`
}

// DifficultyChange records a mid-session difficulty switch.
type DifficultyChange struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	AtQuestion int       `json:"at_question"`
	Timestamp  time.Time `json:"timestamp"`
}

// Session is one study session. Completed sessions feed the streak
// computation; Answered/Correct feed the accuracy stats.
type Session struct {
	ID                string             `db:"id" json:"id"`
	UserID            string             `db:"user_id" json:"user_id"`
	Subject           string             `db:"subject" json:"subject"`
	Topic             string             `db:"topic" json:"topic"`
	Difficulty        string             `db:"difficulty" json:"difficulty"`
	StartedAt         time.Time          `db:"started_at" json:"started_at"`
	EndedAt           time.Time          `db:"ended_at" json:"ended_at"`
	Answered          int                `db:"answered" json:"answered"`
	Correct           int                `db:"correct" json:"correct"`
	RestartCount      int                `db:"restart_count" json:"restart_count"`
	Status            string             `db:"status" json:"status"` // active | completed | restarted
	DifficultyChanges []DifficultyChange `db:"-" json:"difficulty_changes,omitempty"`
}

// Accuracy returns the session's percentage of correct answers.
func (s *Session) Accuracy() float64 {
	if s.Answered == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Answered) * 100
}

// Store persists mastery records and sessions. Implementations guarantee
// that Mutate runs as one transaction per key: no reader ever observes the
// practice counter advanced without the mastery value, or vice versa.
type Store interface {
	// Mutate loads (or lazily creates, zero-valued) the record for key,
	// applies fn and writes the result back atomically.
	Mutate(ctx context.Context, key Key, fn func(*MasteryRecord)) (MasteryRecord, error)
	// Topics returns every record for (user, subject), any order.
	Topics(ctx context.Context, userID, subject string) ([]MasteryRecord, error)
	// ResetUser bulk-deletes every record and session of the user.
	ResetUser(ctx context.Context, userID string) error

	SaveSession(ctx context.Context, s *Session) error
	Sessions(ctx context.Context, userID string) ([]Session, error)
	// CompletedSessionDates returns start times of completed sessions.
	CompletedSessionDates(ctx context.Context, userID string) ([]time.Time, error)
}
