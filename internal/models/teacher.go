package models

import "time"

// Teacher is the teaching identity behind a TEACHER login.
type Teacher struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherScope is the request-scoped identity every teacher operation runs under.
type TeacherScope struct {
	UserID     string
	TeacherID  string
	SemesterID string
	CSRFToken  string
	IPAddress  string
}
