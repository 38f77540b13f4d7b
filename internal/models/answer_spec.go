package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// AnswerSpec is the closed set of question kinds. Only the types in this file
// implement it, so combinations like an MCQ with any-match grading cannot be built.
type AnswerSpec interface {
	Type() QuestionType
	Mode() AnswerMode
	Validate() error
	answerSpec()
}

// OptionSpec is one submitted MCQ option.
type OptionSpec struct {
	Text      string
	IsCorrect bool
}

// MCQSpec is a multiple-choice question.
type MCQSpec struct {
	Options []OptionSpec
}

// ExactSpec is a short answer graded against one string.
type ExactSpec struct {
	Answer                 string
	MultipleAnswersAllowed bool
}

// AnyMatchSpec is a short answer accepting any of several strings; the student
// supplies AnswerCount of them.
type AnyMatchSpec struct {
	ValidAnswers           []string
	AnswerCount            int
	MultipleAnswersAllowed bool
}

// Validation messages shown verbatim to teachers.
var (
	ErrMCQTooFewOptions  = errors.New("MCQ questions must have at least 2 options.")
	ErrMCQNoCorrect      = errors.New("Please select the correct option.")
	ErrExactAnswerEmpty  = errors.New("Correct answer is required for short answer questions.")
	ErrNoValidAnswers    = errors.New("At least one valid answer is required.")
	ErrAnswerCountTooLow = errors.New("Number of required answers must be at least 1.")
)

func (MCQSpec) Type() QuestionType      { return QuestionMCQ }
func (MCQSpec) Mode() AnswerMode        { return AnswerExact }
func (ExactSpec) Type() QuestionType    { return QuestionShortAnswer }
func (ExactSpec) Mode() AnswerMode      { return AnswerExact }
func (AnyMatchSpec) Type() QuestionType { return QuestionShortAnswer }
func (AnyMatchSpec) Mode() AnswerMode   { return AnswerAnyMatch }

func (MCQSpec) answerSpec()      {}
func (ExactSpec) answerSpec()    {}
func (AnyMatchSpec) answerSpec() {}

func (s MCQSpec) Validate() error {
	if len(s.Options) < 2 {
		return ErrMCQTooFewOptions
	}
	for _, o := range s.Options {
		if o.IsCorrect {
			return nil
		}
	}
	return ErrMCQNoCorrect
}

func (s ExactSpec) Validate() error {
	if strings.TrimSpace(s.Answer) == "" {
		return ErrExactAnswerEmpty
	}
	return nil
}

func (s AnyMatchSpec) Validate() error {
	if len(s.ValidAnswers) == 0 {
		return ErrNoValidAnswers
	}
	if s.AnswerCount < 1 {
		return ErrAnswerCountTooLow
	}
	return nil
}

// NewMCQSpec builds an MCQ from the submitted option list. correctIndex refers to
// the position in the submitted list, before blank entries are dropped.
func NewMCQSpec(submitted []string, correctIndex int) MCQSpec {
	spec := MCQSpec{}
	for i, raw := range submitted {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		spec.Options = append(spec.Options, OptionSpec{Text: text, IsCorrect: i == correctIndex})
	}
	return spec
}

// NewAnyMatchSpec trims the candidates and drops blanks, keeping order.
func NewAnyMatchSpec(candidates []string, answerCount int, multiple bool) AnyMatchSpec {
	spec := AnyMatchSpec{AnswerCount: answerCount, MultipleAnswersAllowed: multiple}
	for _, raw := range candidates {
		if text := strings.TrimSpace(raw); text != "" {
			spec.ValidAnswers = append(spec.ValidAnswers, text)
		}
	}
	return spec
}

// EncodeValidAnswers serialises any-match answers into the correct_answer column.
func EncodeValidAnswers(answers []string) (string, error) {
	if answers == nil {
		answers = []string{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("encode valid answers: %w", err)
	}
	return string(raw), nil
}

// DecodeValidAnswers is the inverse of EncodeValidAnswers.
func DecodeValidAnswers(raw string) ([]string, error) {
	var answers []string
	if err := json.Unmarshal([]byte(raw), &answers); err != nil {
		return nil, fmt.Errorf("decode valid answers: %w", err)
	}
	return answers, nil
}

// ApplySpec validates spec and writes its answer columns onto the body. MCQ
// always persists exact mode, one answer and no multiple answers.
func (b *QuestionBody) ApplySpec(spec AnswerSpec) error {
	if spec == nil {
		return errors.New("Please choose a question type.")
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	b.QuestionType = spec.Type()
	b.AnswerMode = spec.Mode()
	b.Options = nil

	switch s := spec.(type) {
	case MCQSpec:
		b.AnswerCount = 1
		b.MultipleAnswersAllowed = false
		b.CorrectAnswer = nil
		for i, o := range s.Options {
			b.Options = append(b.Options, MCQOption{OptionText: o.Text, IsCorrect: o.IsCorrect, Position: i})
		}
	case ExactSpec:
		answer := strings.TrimSpace(s.Answer)
		b.AnswerCount = 1
		b.MultipleAnswersAllowed = s.MultipleAnswersAllowed
		b.CorrectAnswer = &answer
	case AnyMatchSpec:
		encoded, err := EncodeValidAnswers(s.ValidAnswers)
		if err != nil {
			return err
		}
		b.AnswerCount = s.AnswerCount
		b.MultipleAnswersAllowed = s.MultipleAnswersAllowed
		b.CorrectAnswer = &encoded
	}
	return nil
}

// Spec reconstructs the typed answer spec from the stored columns.
func (b QuestionBody) Spec() (AnswerSpec, error) {
	switch b.QuestionType {
	case QuestionMCQ:
		spec := MCQSpec{}
		for _, o := range b.Options {
			spec.Options = append(spec.Options, OptionSpec{Text: o.OptionText, IsCorrect: o.IsCorrect})
		}
		return spec, nil
	case QuestionShortAnswer:
		answer := ""
		if b.CorrectAnswer != nil {
			answer = *b.CorrectAnswer
		}
		if b.AnswerMode == AnswerAnyMatch {
			answers, err := DecodeValidAnswers(answer)
			if err != nil {
				return nil, err
			}
			return AnyMatchSpec{ValidAnswers: answers, AnswerCount: b.AnswerCount, MultipleAnswersAllowed: b.MultipleAnswersAllowed}, nil
		}
		return ExactSpec{Answer: answer, MultipleAnswersAllowed: b.MultipleAnswersAllowed}, nil
	}
	return nil, fmt.Errorf("unknown question type %q", b.QuestionType)
}

// ValidAnswers returns the any-match answers for display, or nil.
func (b QuestionBody) ValidAnswers() []string {
	if b.AnswerMode != AnswerAnyMatch || b.CorrectAnswer == nil {
		return nil
	}
	answers, err := DecodeValidAnswers(*b.CorrectAnswer)
	if err != nil {
		return nil
	}
	return answers
}
