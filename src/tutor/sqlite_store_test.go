package tutor

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tutor.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteMutateRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	key := Key{UserID: "u1", Subject: "math", Topic: "algebra"}

	rec, err := s.Mutate(ctx, key, func(r *MasteryRecord) {
		r.Mastery = 0.2
		r.TimesPracticed = 1
		r.LastPracticed = time.Now().UTC()
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if rec.Mastery != 0.2 {
		t.Fatalf("expected mastery 0.2, got %v", rec.Mastery)
	}

	// Second pass must see the stored state.
	rec, err = s.Mutate(ctx, key, func(r *MasteryRecord) {
		if r.Mastery != 0.2 || r.TimesPracticed != 1 {
			t.Fatalf("stale record in mutate: %+v", r)
		}
		r.TimesPracticed++
	})
	if err != nil {
		t.Fatalf("second Mutate failed: %v", err)
	}
	if rec.TimesPracticed != 2 {
		t.Fatalf("expected 2 practices, got %d", rec.TimesPracticed)
	}

	records, err := s.Topics(ctx, "u1", "math")
	if err != nil {
		t.Fatalf("Topics failed: %v", err)
	}
	if len(records) != 1 || records[0].Topic != "algebra" {
		t.Fatalf("unexpected topics: %+v", records)
	}
}

func TestSQLiteSessions(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := &Session{
		ID:         "s1",
		UserID:     "u1",
		Subject:    "math",
		Topic:      "algebra",
		Difficulty: "easy",
		StartedAt:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:     "active",
	}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	sess.Status = "completed"
	sess.EndedAt = sess.StartedAt.Add(20 * time.Minute)
	sess.Answered = 5
	sess.Correct = 4
	sess.DifficultyChanges = []DifficultyChange{{From: "easy", To: "medium", AtQuestion: 3, Timestamp: sess.StartedAt}}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("update session failed: %v", err)
	}

	got, err := s.Sessions(ctx, "u1")
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 session, got %d", len(got))
	}
	if got[0].Status != "completed" || got[0].Answered != 5 || len(got[0].DifficultyChanges) != 1 {
		t.Fatalf("session not round-tripped: %+v", got[0])
	}

	dates, err := s.CompletedSessionDates(ctx, "u1")
	if err != nil {
		t.Fatalf("CompletedSessionDates failed: %v", err)
	}
	if len(dates) != 1 {
		t.Fatalf("expected 1 completed date, got %d", len(dates))
	}
}

func TestSQLiteResetUser(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Mutate(ctx, Key{UserID: "u1", Subject: "math", Topic: "algebra"}, func(r *MasteryRecord) { r.Mastery = 0.5 })
	s.Mutate(ctx, Key{UserID: "u2", Subject: "math", Topic: "algebra"}, func(r *MasteryRecord) { r.Mastery = 0.5 })
	s.SaveSession(ctx, &Session{ID: "s1", UserID: "u1", Subject: "math", Topic: "algebra", StartedAt: time.Now(), Status: "active"})

	if err := s.ResetUser(ctx, "u1"); err != nil {
		t.Fatalf("ResetUser failed: %v", err)
	}
	records, _ := s.Topics(ctx, "u1", "math")
	if len(records) != 0 {
		t.Fatalf("expected u1 wiped, got %+v", records)
	}
	sessions, _ := s.Sessions(ctx, "u1")
	if len(sessions) != 0 {
		t.Fatalf("expected u1 sessions wiped, got %+v", sessions)
	}
	others, _ := s.Topics(ctx, "u2", "math")
	if len(others) != 1 {
		t.Fatal("reset must not touch other users")
	}
}
