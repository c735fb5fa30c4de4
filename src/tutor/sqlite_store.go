package tutor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists progress in a local SQLite file.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	// SQLite does not support multiple writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS progress (
			user_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			topic TEXT NOT NULL,
			mastery REAL NOT NULL DEFAULT 0,
			times_practiced INTEGER NOT NULL DEFAULT 0,
			last_practiced TIMESTAMP,
			PRIMARY KEY (user_id, subject, topic)
		)
	`)
	if err != nil {
		return fmt.Errorf("create progress table: %w", err)
	}
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			topic TEXT NOT NULL,
			difficulty TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			answered INTEGER NOT NULL DEFAULT 0,
			correct INTEGER NOT NULL DEFAULT 0,
			restart_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			difficulty_changes TEXT NOT NULL DEFAULT '[]'
		)
	`)
	if err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Mutate(ctx context.Context, key Key, fn func(*MasteryRecord)) (MasteryRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return MasteryRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var rec MasteryRecord
	err = tx.GetContext(ctx, &rec,
		`SELECT user_id, subject, topic, mastery, times_practiced, last_practiced
		 FROM progress WHERE user_id = ? AND subject = ? AND topic = ?`,
		key.UserID, key.Subject, key.Topic)
	if errors.Is(err, sql.ErrNoRows) {
		rec = MasteryRecord{UserID: key.UserID, Subject: key.Subject, Topic: key.Topic}
	} else if err != nil {
		return MasteryRecord{}, fmt.Errorf("load record: %w", err)
	}

	fn(&rec)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO progress (user_id, subject, topic, mastery, times_practiced, last_practiced)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, subject, topic) DO UPDATE SET
			mastery = excluded.mastery,
			times_practiced = excluded.times_practiced,
			last_practiced = excluded.last_practiced`,
		rec.UserID, rec.Subject, rec.Topic, rec.Mastery, rec.TimesPracticed, rec.LastPracticed)
	if err != nil {
		return MasteryRecord{}, fmt.Errorf("save record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return MasteryRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Topics(ctx context.Context, userID, subject string) ([]MasteryRecord, error) {
	var out []MasteryRecord
	err := s.db.SelectContext(ctx, &out,
		`SELECT user_id, subject, topic, mastery, times_practiced, last_practiced
		 FROM progress WHERE user_id = ? AND subject = ? ORDER BY topic`,
		userID, subject)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) ResetUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM progress WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("reset sessions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *Session) error {
	changes, err := json.Marshal(sess.DifficultyChanges)
	if err != nil {
		return fmt.Errorf("encode difficulty changes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, subject, topic, difficulty, started_at, ended_at,
			answered, correct, restart_count, status, difficulty_changes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			difficulty = excluded.difficulty,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			answered = excluded.answered,
			correct = excluded.correct,
			restart_count = excluded.restart_count,
			status = excluded.status,
			difficulty_changes = excluded.difficulty_changes`,
		sess.ID, sess.UserID, sess.Subject, sess.Topic, sess.Difficulty,
		sess.StartedAt, nullTime(sess.EndedAt), sess.Answered, sess.Correct,
		sess.RestartCount, sess.Status, string(changes))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Sessions(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, user_id, subject, topic, difficulty, started_at, ended_at,
			answered, correct, restart_count, status, difficulty_changes
		 FROM sessions WHERE user_id = ? ORDER BY started_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var ended sql.NullTime
		var changes string
		err := rows.Scan(&sess.ID, &sess.UserID, &sess.Subject, &sess.Topic,
			&sess.Difficulty, &sess.StartedAt, &ended, &sess.Answered,
			&sess.Correct, &sess.RestartCount, &sess.Status, &changes)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if ended.Valid {
			sess.EndedAt = ended.Time
		}
		if changes != "" {
			if err := json.Unmarshal([]byte(changes), &sess.DifficultyChanges); err != nil {
				return nil, fmt.Errorf("decode difficulty changes: %w", err)
			}
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CompletedSessionDates(ctx context.Context, userID string) ([]time.Time, error) {
	var out []time.Time
	err := s.db.SelectContext(ctx, &out,
		`SELECT started_at FROM sessions WHERE user_id = ? AND status = 'completed'`, userID)
	if err != nil {
		return nil, fmt.Errorf("list session dates: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
