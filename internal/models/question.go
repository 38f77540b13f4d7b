package models

import "time"

// QuestionType distinguishes multiple-choice from short-answer questions.
type QuestionType string

const (
	QuestionMCQ         QuestionType = "MCQ"
	QuestionShortAnswer QuestionType = "Short Answer"
)

// AnswerMode controls how short answers are matched.
type AnswerMode string

const (
	AnswerExact    AnswerMode = "exact"
	AnswerAnyMatch AnswerMode = "any_match"
)

// Score bounds for a single question.
const (
	MinQuestionScore = 0.5
	MaxQuestionScore = 100.0
)

// QuestionBody holds the authored content shared by assessment questions and
// question bank entries. Its answer columns are derived from an AnswerSpec.
type QuestionBody struct {
	QuestionText           string       `db:"question_text" json:"question_text"`
	QuestionType           QuestionType `db:"question_type" json:"question_type"`
	MaxScore               float64      `db:"max_score" json:"max_score"`
	ImageID                *string      `db:"image_id" json:"image_id,omitempty"`
	AnswerMode             AnswerMode   `db:"answer_mode" json:"answer_mode"`
	AnswerCount            int          `db:"answer_count" json:"answer_count"`
	MultipleAnswersAllowed bool         `db:"multiple_answers_allowed" json:"multiple_answers_allowed"`
	CorrectAnswer          *string      `db:"correct_answer" json:"correct_answer,omitempty"`
	Options                []MCQOption  `db:"-" json:"options,omitempty"`
}

// Question belongs to exactly one assessment.
type Question struct {
	ID             string  `db:"id" json:"id"`
	AssessmentID   string  `db:"assessment_id" json:"assessment_id"`
	QuestionBankID *string `db:"question_bank_id" json:"question_bank_id,omitempty"`
	QuestionBody
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MCQOption is one choice of a multiple-choice question. The option set is owned
// by its question and replaced as a whole on every save.
type MCQOption struct {
	ID         string `db:"id" json:"id"`
	QuestionID string `db:"question_id" json:"-"`
	OptionText string `db:"option_text" json:"option_text"`
	IsCorrect  bool   `db:"is_correct" json:"is_correct"`
	Position   int    `db:"position" json:"position"`
}

// QuestionPage is the state of the question management page.
type QuestionPage struct {
	Assessment    AssessmentDetail `json:"assessment"`
	Questions     []Question       `json:"questions"`
	TotalMaxScore float64          `json:"total_max_score"`
	Editable      bool             `json:"editable"`
}
