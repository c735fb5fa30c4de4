package tutor

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps records and sessions in process memory. Useful for
// tests and single-run tooling.
type InMemoryStore struct {
	mu       sync.Mutex
	records  map[Key]MasteryRecord
	sessions map[string]Session // by session ID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:  make(map[Key]MasteryRecord),
		sessions: make(map[string]Session),
	}
}

func (s *InMemoryStore) Mutate(ctx context.Context, key Key, fn func(*MasteryRecord)) (MasteryRecord, error) {
	if err := ctx.Err(); err != nil {
		return MasteryRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		rec = MasteryRecord{UserID: key.UserID, Subject: key.Subject, Topic: key.Topic}
	}
	fn(&rec)
	s.records[key] = rec
	return rec, nil
}

func (s *InMemoryStore) Topics(ctx context.Context, userID, subject string) ([]MasteryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []MasteryRecord
	for k, r := range s.records {
		if k.UserID == userID && k.Subject == subject {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

func (s *InMemoryStore) ResetUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.records {
		if k.UserID == userID {
			delete(s.records, k)
		}
	}
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *InMemoryStore) SaveSession(ctx context.Context, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *InMemoryStore) Sessions(ctx context.Context, userID string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *InMemoryStore) CompletedSessionDates(ctx context.Context, userID string) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Status == "completed" {
			out = append(out, sess.StartedAt)
		}
	}
	return out, nil
}
