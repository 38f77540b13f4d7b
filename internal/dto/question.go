package dto

import "strings"

// QuestionContent is the authored part of a question, shared by the assessment
// question form and the question bank form.
type QuestionContent struct {
	QuestionText           string   `form:"question_text" validate:"required,max=10000"`
	QuestionType           string   `form:"question_type"`
	MaxScore               float64  `form:"max_score"`
	ImageID                string   `form:"image_id"`
	Options                []string `form:"options[]"`
	CorrectOption          *int     `form:"correct_option"`
	AnswerMode             string   `form:"answer_mode"`
	CorrectAnswer          string   `form:"correct_answer"`
	ValidAnswers           []string `form:"valid_answers[]"`
	AnswerCount            int      `form:"answer_count"`
	MultipleAnswersAllowed bool     `form:"multiple_answers_allowed"`
}

// TrimmedImageID returns the referenced image id or nil.
func (c QuestionContent) TrimmedImageID() *string {
	id := strings.TrimSpace(c.ImageID)
	if id == "" {
		return nil
	}
	return &id
}

// QuestionForm creates or edits a question of an assessment.
type QuestionForm struct {
	AssessmentID string `form:"assessment_id" validate:"required"`
	QuestionID   string `form:"question_id"`
	Version      int    `form:"version"`
	QuestionContent
}

// DeleteQuestionForm removes a question.
type DeleteQuestionForm struct {
	QuestionID string `form:"question_id" validate:"required"`
}

// BankQuestionForm creates or edits a question bank entry.
type BankQuestionForm struct {
	BankQuestionID string `form:"bank_question_id"`
	QuestionContent
}

// DeleteBankQuestionForm removes a question bank entry.
type DeleteBankQuestionForm struct {
	BankQuestionID string `form:"bank_question_id" validate:"required"`
}

// ImportBankQuestionForm copies a bank entry into an assessment.
type ImportBankQuestionForm struct {
	BankQuestionID string `form:"bank_question_id" validate:"required"`
	AssessmentID   string `form:"assessment_id" validate:"required"`
}
