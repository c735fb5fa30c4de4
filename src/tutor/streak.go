package tutor

import (
	"context"
	"sort"
	"time"
)

// Streak summarizes a user's run of consecutive study days. Days are
// calendar dates; several sessions on one day count once.
type Streak struct {
	Current    int       `json:"current"`
	Longest    int       `json:"longest"`
	LastStudy  time.Time `json:"last_study"`
	HasStudied bool      `json:"has_studied"`
}

// StudyStreak computes the user's current and longest streak from the
// dates of completed sessions. The current streak counts back from the
// most recent study day; a gap before it does not erase the longest.
func (t *Tracker) StudyStreak(ctx context.Context, userID string) (Streak, error) {
	dates, err := t.store.CompletedSessionDates(ctx, userID)
	if err != nil {
		return Streak{}, err
	}
	return computeStreak(dates), nil
}

func computeStreak(dates []time.Time) Streak {
	if len(dates) == 0 {
		return Streak{}
	}
	seen := make(map[time.Time]struct{}, len(dates))
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	// run now holds the streak ending at the most recent study day.
	return Streak{
		Current:    run,
		Longest:    longest,
		LastStudy:  days[len(days)-1],
		HasStudied: true,
	}
}
