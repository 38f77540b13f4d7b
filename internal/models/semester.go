package models

import "time"

// Semester is a bounded academic term. Most teacher data is scoped to one.
type Semester struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsCurrent bool      `db:"is_current" json:"is_current"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Contains reports whether day falls inside the semester's date range.
func (s Semester) Contains(day time.Time) bool {
	d := truncateDay(day)
	return !d.Before(truncateDay(s.StartDate)) && !d.After(truncateDay(s.EndDate))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
