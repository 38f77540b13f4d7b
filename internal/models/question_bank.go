package models

import "time"

// BankQuestion is a teacher-private reusable question template.
type BankQuestion struct {
	ID        string `db:"id" json:"id"`
	TeacherID string `db:"teacher_id" json:"teacher_id"`
	QuestionBody
	UsageCount int       `db:"usage_count" json:"usage_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ToQuestion copies the template into a new question for assessmentID, recording
// where it came from.
func (b BankQuestion) ToQuestion(assessmentID string) Question {
	body := b.QuestionBody
	body.Options = make([]MCQOption, len(b.Options))
	for i, o := range b.Options {
		body.Options[i] = MCQOption{OptionText: o.OptionText, IsCorrect: o.IsCorrect, Position: o.Position}
	}
	bankID := b.ID
	return Question{AssessmentID: assessmentID, QuestionBankID: &bankID, QuestionBody: body}
}
