package tutor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	// LearningRate weighs each new observation in the running estimate.
	LearningRate = 0.2
	// MasteredThreshold marks a topic as fully learned.
	MasteredThreshold = 0.8
	// WeakThreshold marks a topic as needing review.
	WeakThreshold = 0.6
)

// Tracker maintains per-topic mastery estimates with an exponential
// moving average and suggests what to study next.
type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// Update folds one answer into the topic's mastery estimate and returns
// the new value. A correct answer moves the estimate toward 1, an
// incorrect one decays it toward 0.
func (t *Tracker) Update(ctx context.Context, userID, subject, topic string, correct bool) (float64, error) {
	rec, err := t.store.Mutate(ctx, Key{UserID: userID, Subject: subject, Topic: topic}, func(r *MasteryRecord) {
		if correct {
			r.Mastery += LearningRate * (1 - r.Mastery)
		} else {
			r.Mastery *= 1 - LearningRate
		}
		r.Mastery = clamp01(r.Mastery)
		r.TimesPracticed++
		r.LastPracticed = t.now()
	})
	if err != nil {
		return 0, fmt.Errorf("update mastery: %w", err)
	}
	return rec.Mastery, nil
}

// SuggestNextTopic returns the not-yet-mastered topic with the lowest
// mastery. Ties break alphabetically. ok is false when every tracked
// topic is already mastered or nothing has been practiced.
func (t *Tracker) SuggestNextTopic(ctx context.Context, userID, subject string) (topic string, ok bool, err error) {
	records, err := t.store.Topics(ctx, userID, subject)
	if err != nil {
		return "", false, err
	}
	best := ""
	bestMastery := 2.0
	for _, r := range records {
		if r.Mastery >= MasteredThreshold {
			continue
		}
		if r.Mastery < bestMastery || (r.Mastery == bestMastery && r.Topic < best) {
			best = r.Topic
			bestMastery = r.Mastery
		}
	}
	if best == "" {
		return "", false, nil
	}
	return best, true, nil
}

// WeakArea is a below-threshold topic with how far it still is from
// proficiency, on a 0-100 scale.
type WeakArea struct {
	Topic          string  `json:"topic"`
	Mastery        float64 `json:"mastery"`
	Gap            float64 `json:"gap"`
	TimesPracticed int     `json:"times_practiced"`
}

// WeakAreas lists topics with mastery below threshold, weakest first.
// A threshold <= 0 falls back to the default.
func (t *Tracker) WeakAreas(ctx context.Context, userID, subject string, threshold float64) ([]WeakArea, error) {
	if threshold <= 0 {
		threshold = WeakThreshold
	}
	records, err := t.store.Topics(ctx, userID, subject)
	if err != nil {
		return nil, err
	}
	areas := make([]WeakArea, 0, len(records))
	for _, r := range records {
		if r.Mastery >= threshold {
			continue
		}
		gap := (WeakThreshold - r.Mastery) * 100
		if gap < 0 {
			gap = 0
		}
		areas = append(areas, WeakArea{
			Topic:          r.Topic,
			Mastery:        r.Mastery,
			Gap:            gap,
			TimesPracticed: r.TimesPracticed,
		})
	}
	sort.Slice(areas, func(i, j int) bool {
		if areas[i].Mastery != areas[j].Mastery {
			return areas[i].Mastery < areas[j].Mastery
		}
		return areas[i].Topic < areas[j].Topic
	})
	return areas, nil
}

// TopicProgress is one topic's state in a subject summary.
type TopicProgress struct {
	Topic          string    `json:"topic"`
	Mastery        float64   `json:"mastery"`
	Category       string    `json:"category"`
	TimesPracticed int       `json:"times_practiced"`
	LastPracticed  time.Time `json:"last_practiced"`
}

// SubjectProgress aggregates every tracked topic of one subject.
type SubjectProgress struct {
	Subject        string          `json:"subject"`
	OverallMastery float64         `json:"overall_mastery"`
	TopicsStarted  int             `json:"topics_started"`
	TopicsMastered int             `json:"topics_mastered"`
	Topics         []TopicProgress `json:"topics"`
}

// Progress summarizes a subject. Topics are sorted by mastery
// descending so the strongest work shows first.
func (t *Tracker) Progress(ctx context.Context, userID, subject string) (SubjectProgress, error) {
	records, err := t.store.Topics(ctx, userID, subject)
	if err != nil {
		return SubjectProgress{}, err
	}
	prog := SubjectProgress{Subject: subject, Topics: make([]TopicProgress, 0, len(records))}
	sum := 0.0
	for _, r := range records {
		sum += r.Mastery
		if r.Mastery >= MasteredThreshold {
			prog.TopicsMastered++
		}
		prog.Topics = append(prog.Topics, TopicProgress{
			Topic:          r.Topic,
			Mastery:        r.Mastery,
			Category:       Categorize(r.Mastery),
			TimesPracticed: r.TimesPracticed,
			LastPracticed:  r.LastPracticed,
		})
	}
	prog.TopicsStarted = len(records)
	if len(records) > 0 {
		prog.OverallMastery = sum / float64(len(records))
	}
	sort.Slice(prog.Topics, func(i, j int) bool {
		if prog.Topics[i].Mastery != prog.Topics[j].Mastery {
			return prog.Topics[i].Mastery > prog.Topics[j].Mastery
		}
		return prog.Topics[i].Topic < prog.Topics[j].Topic
	})
	return prog, nil
}

// Categorize maps a mastery value to its display band.
func Categorize(mastery float64) string {
	switch {
	case mastery >= MasteredThreshold:
		return "mastered"
	case mastery >= WeakThreshold:
		return "proficient"
	case mastery >= 0.4:
		return "learning"
	default:
		return "novice"
	}
}

// StartSession opens a new active session and persists it.
func (t *Tracker) StartSession(ctx context.Context, userID, subject, topic, difficulty string) (*Session, error) {
	s := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		Subject:    subject,
		Topic:      topic,
		Difficulty: difficulty,
		StartedAt:  t.now(),
		Status:     "active",
	}
	if err := t.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return s, nil
}

// RecordAnswer counts one answer in the session and folds it into the
// topic's mastery estimate.
func (t *Tracker) RecordAnswer(ctx context.Context, s *Session, correct bool) (float64, error) {
	s.Answered++
	if correct {
		s.Correct++
	}
	mastery, err := t.Update(ctx, s.UserID, s.Subject, s.Topic, correct)
	if err != nil {
		return 0, err
	}
	if err := t.store.SaveSession(ctx, s); err != nil {
		return 0, err
	}
	return mastery, nil
}

// ChangeDifficulty switches the session's difficulty and keeps the old
// value in the change log.
func (t *Tracker) ChangeDifficulty(ctx context.Context, s *Session, to string) error {
	if to == s.Difficulty {
		return nil
	}
	s.DifficultyChanges = append(s.DifficultyChanges, DifficultyChange{
		From:       s.Difficulty,
		To:         to,
		AtQuestion: s.Answered,
		Timestamp:  t.now(),
	})
	s.Difficulty = to
	return t.store.SaveSession(ctx, s)
}

// RestartSession zeroes the session counters for another run over the
// same topic.
func (t *Tracker) RestartSession(ctx context.Context, s *Session) error {
	s.Answered = 0
	s.Correct = 0
	s.RestartCount++
	s.Status = "active"
	s.StartedAt = t.now()
	s.EndedAt = time.Time{}
	return t.store.SaveSession(ctx, s)
}

// CompleteSession closes the session.
func (t *Tracker) CompleteSession(ctx context.Context, s *Session) error {
	s.Status = "completed"
	s.EndedAt = t.now()
	return t.store.SaveSession(ctx, s)
}

// Reset wipes all progress and session history for the user.
func (t *Tracker) Reset(ctx context.Context, userID string) error {
	return t.store.ResetUser(ctx, userID)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
