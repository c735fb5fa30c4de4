package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ExportData is the portable snapshot of one user's progress.
type ExportData struct {
	Version    int             `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	UserID     string          `json:"user_id"`
	Progress   []MasteryRecord `json:"progress"`
	Sessions   []Session       `json:"sessions"`
}

const exportVersion = 1

// Export serializes the user's full progress and session history.
func (t *Tracker) Export(ctx context.Context, userID string, subjects []string) ([]byte, error) {
	data := ExportData{
		Version:    exportVersion,
		ExportedAt: t.now(),
		UserID:     userID,
	}
	for _, subject := range subjects {
		records, err := t.store.Topics(ctx, userID, subject)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", subject, err)
		}
		data.Progress = append(data.Progress, records...)
	}
	sessions, err := t.store.Sessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("export sessions: %w", err)
	}
	data.Sessions = sessions
	return json.MarshalIndent(data, "", "  ")
}

// Import merges a previously exported snapshot. For topics present on
// both sides the higher mastery wins, so importing never loses progress.
func (t *Tracker) Import(ctx context.Context, userID string, raw []byte) error {
	var data ExportData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode export: %w", err)
	}
	if data.Version != exportVersion {
		return fmt.Errorf("unsupported export version %d", data.Version)
	}
	for _, rec := range data.Progress {
		imported := rec
		_, err := t.store.Mutate(ctx, Key{UserID: userID, Subject: imported.Subject, Topic: imported.Topic}, func(r *MasteryRecord) {
			if imported.Mastery > r.Mastery {
				r.Mastery = imported.Mastery
			}
			if imported.TimesPracticed > r.TimesPracticed {
				r.TimesPracticed = imported.TimesPracticed
			}
			if imported.LastPracticed.After(r.LastPracticed) {
				r.LastPracticed = imported.LastPracticed
			}
		})
		if err != nil {
			return fmt.Errorf("import %s/%s: %w", imported.Subject, imported.Topic, err)
		}
	}
	for i := range data.Sessions {
		sess := data.Sessions[i]
		sess.UserID = userID
		if err := t.store.SaveSession(ctx, &sess); err != nil {
			return fmt.Errorf("import session %s: %w", sess.ID, err)
		}
	}
	return nil
}
