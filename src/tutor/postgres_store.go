package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists progress in Postgres. Mutate takes a row lock
// so concurrent updates to the same topic serialize.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS progress (
			user_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			topic TEXT NOT NULL,
			mastery DOUBLE PRECISION NOT NULL DEFAULT 0,
			times_practiced INTEGER NOT NULL DEFAULT 0,
			last_practiced TIMESTAMPTZ,
			PRIMARY KEY (user_id, subject, topic)
		)
	`)
	if err != nil {
		return fmt.Errorf("create progress table: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			topic TEXT NOT NULL,
			difficulty TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			answered INTEGER NOT NULL DEFAULT 0,
			correct INTEGER NOT NULL DEFAULT 0,
			restart_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			difficulty_changes JSONB NOT NULL DEFAULT '[]'
		)
	`)
	if err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Mutate(ctx context.Context, key Key, fn func(*MasteryRecord)) (MasteryRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return MasteryRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec := MasteryRecord{UserID: key.UserID, Subject: key.Subject, Topic: key.Topic}
	var last *time.Time
	err = tx.QueryRow(ctx,
		`SELECT mastery, times_practiced, last_practiced FROM progress
		 WHERE user_id = $1 AND subject = $2 AND topic = $3 FOR UPDATE`,
		key.UserID, key.Subject, key.Topic).Scan(&rec.Mastery, &rec.TimesPracticed, &last)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return MasteryRecord{}, fmt.Errorf("load record: %w", err)
	}
	if last != nil {
		rec.LastPracticed = *last
	}

	fn(&rec)

	_, err = tx.Exec(ctx,
		`INSERT INTO progress (user_id, subject, topic, mastery, times_practiced, last_practiced)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, subject, topic) DO UPDATE SET
			mastery = EXCLUDED.mastery,
			times_practiced = EXCLUDED.times_practiced,
			last_practiced = EXCLUDED.last_practiced`,
		rec.UserID, rec.Subject, rec.Topic, rec.Mastery, rec.TimesPracticed, rec.LastPracticed)
	if err != nil {
		return MasteryRecord{}, fmt.Errorf("save record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return MasteryRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Topics(ctx context.Context, userID, subject string) ([]MasteryRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, subject, topic, mastery, times_practiced, COALESCE(last_practiced, 'epoch'::timestamptz)
		 FROM progress WHERE user_id = $1 AND subject = $2 ORDER BY topic`,
		userID, subject)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var out []MasteryRecord
	for rows.Next() {
		var r MasteryRecord
		if err := rows.Scan(&r.UserID, &r.Subject, &r.Topic, &r.Mastery, &r.TimesPracticed, &r.LastPracticed); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ResetUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM progress WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("reset sessions: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess *Session) error {
	changes, err := json.Marshal(sess.DifficultyChanges)
	if err != nil {
		return fmt.Errorf("encode difficulty changes: %w", err)
	}
	var ended *time.Time
	if !sess.EndedAt.IsZero() {
		ended = &sess.EndedAt
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, subject, topic, difficulty, started_at, ended_at,
			answered, correct, restart_count, status, difficulty_changes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
			difficulty = EXCLUDED.difficulty,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			answered = EXCLUDED.answered,
			correct = EXCLUDED.correct,
			restart_count = EXCLUDED.restart_count,
			status = EXCLUDED.status,
			difficulty_changes = EXCLUDED.difficulty_changes`,
		sess.ID, sess.UserID, sess.Subject, sess.Topic, sess.Difficulty,
		sess.StartedAt, ended, sess.Answered, sess.Correct,
		sess.RestartCount, sess.Status, changes)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Sessions(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, subject, topic, difficulty, started_at, ended_at,
			answered, correct, restart_count, status, difficulty_changes
		 FROM sessions WHERE user_id = $1 ORDER BY started_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var ended *time.Time
		var changes []byte
		err := rows.Scan(&sess.ID, &sess.UserID, &sess.Subject, &sess.Topic,
			&sess.Difficulty, &sess.StartedAt, &ended, &sess.Answered,
			&sess.Correct, &sess.RestartCount, &sess.Status, &changes)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if ended != nil {
			sess.EndedAt = *ended
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &sess.DifficultyChanges); err != nil {
				return nil, fmt.Errorf("decode difficulty changes: %w", err)
			}
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CompletedSessionDates(ctx context.Context, userID string) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT started_at FROM sessions WHERE user_id = $1 AND status = 'completed'`, userID)
	if err != nil {
		return nil, fmt.Errorf("list session dates: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
