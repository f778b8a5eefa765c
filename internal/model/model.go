package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OptionKey identifies one of the four answer options of a question.
type OptionKey string

const (
	OptionA OptionKey = "a"
	OptionB OptionKey = "b"
	OptionC OptionKey = "c"
	OptionD OptionKey = "d"
)

// OptionKeys lists the option keys in display order.
var OptionKeys = []OptionKey{OptionA, OptionB, OptionC, OptionD}

// ParseOptionKey accepts a/b/c/d in either case.
func ParseOptionKey(s string) (OptionKey, error) {
	k := OptionKey(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("invalid option %q (want a, b, c or d)", s)
	}
	return k, nil
}

// Valid reports whether k is one of a, b, c, d.
func (k OptionKey) Valid() bool {
	switch k {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// Question is a multiple-choice question. The text may embed LaTeX, markdown or tables.
type Question struct {
	Question string               `json:"question"`
	Options  map[OptionKey]string `json:"options"`
	Answer   OptionKey            `json:"answer,omitempty"`
	Solution string               `json:"solution,omitempty"`
}

// UnmarshalJSON accepts the shapes generation jobs produce: options as an
// array or as a map with upper- or lower-case keys, and the answer under
// correct_answer, correctAnswer or answer.
func (q *Question) UnmarshalJSON(data []byte) error {
	var raw struct {
		Question      string          `json:"question"`
		Options       json.RawMessage `json:"options"`
		Answer        string          `json:"answer"`
		CorrectAnswer string          `json:"correct_answer"`
		CorrectCamel  string          `json:"correctAnswer"`
		Solution      string          `json:"solution"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	opts, err := decodeOptions(raw.Options)
	if err != nil {
		return fmt.Errorf("question options: %w", err)
	}

	answer := raw.CorrectAnswer
	if answer == "" {
		answer = raw.CorrectCamel
	}
	if answer == "" {
		answer = raw.Answer
	}

	*q = Question{
		Question: raw.Question,
		Options:  opts,
		Answer:   OptionKey(strings.ToLower(strings.TrimSpace(answer))),
		Solution: raw.Solution,
	}
	return nil
}

func decodeOptions(raw json.RawMessage) (map[OptionKey]string, error) {
	opts := make(map[OptionKey]string, len(OptionKeys))
	if len(raw) == 0 || string(raw) == "null" {
		return opts, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for i, k := range OptionKeys {
			if i < len(list) {
				opts[k] = list[i]
			}
		}
		return opts, nil
	}

	var byKey map[string]string
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, err
	}
	for k, v := range byKey {
		key := OptionKey(strings.ToLower(k))
		if !key.Valid() {
			continue
		}
		// Lower-case keys win over upper-case duplicates.
		if _, seen := opts[key]; seen && k != string(key) {
			continue
		}
		opts[key] = v
	}
	return opts, nil
}

// ExamQuestion is a question as it appears inside an exam.
type ExamQuestion struct {
	Question
	No string `json:"question-no"`
	// UniqueID is assigned client-side by position (q1, q2, ...) and keys the answer cache.
	UniqueID string `json:"-"`
}

// UnmarshalJSON keeps the embedded Question's normalization while reading question-no.
func (eq *ExamQuestion) UnmarshalJSON(data []byte) error {
	var q Question
	if err := json.Unmarshal(data, &q); err != nil {
		return err
	}
	var meta struct {
		No json.RawMessage `json:"question-no"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return err
	}
	eq.Question = q
	eq.No = rawNumberOrString(meta.No)
	return nil
}

// rawNumberOrString reads a field that the backend sends as either "3" or 3.
func rawNumberOrString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// Exam is an exam attempt as returned by GET /api/exam/{id}.
// Answers are stripped by the server until the exam is submitted.
type Exam struct {
	ID          string         `json:"exam-id"`
	UserID      string         `json:"userId,omitempty"`
	Subject     string         `json:"subject"`
	Lessons     []string       `json:"lessons"`
	Questions   []ExamQuestion `json:"questions"`
	IsSubmitted bool           `json:"is_submitted"`
	Test        bool           `json:"test,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

// UploadedImage is an image accepted by the server. LocalPath points at a
// preview copy owned by this process; it is empty when no preview could be fetched.
type UploadedImage struct {
	Filename  string `json:"filename"`
	LocalPath string `json:"local_path,omitempty"`
}

// LoginRequest is the body of POST /api/login and /api/register.
type LoginRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token for later requests.
type LoginResponse struct {
	Message string `json:"message,omitempty"`
	Token   string `json:"token"`
	UserID  string `json:"user_id"`
	Version string `json:"version,omitempty"`
	Class10 bool   `json:"class10"`
}

// CreateExamRequest starts an exam either from lessons or from an assigned test.
type CreateExamRequest struct {
	Subject string   `json:"subject,omitempty"`
	Lessons []string `json:"lessons,omitempty"`
	Test    bool     `json:"test,omitempty"`
	TestID  string   `json:"test-id,omitempty"`
}

// CreateExamResponse is returned by POST /api/create_exam.
type CreateExamResponse struct {
	ExamID string `json:"exam-id"`
}

// AnswerSelection is one entry of the submission payload.
type AnswerSelection struct {
	QuestionNo string    `json:"question-no"`
	Option     OptionKey `json:"option"`
}

// SubmitRequest is the body of POST /api/submit_exam/{id}.
type SubmitRequest struct {
	Answers []AnswerSelection `json:"answers"`
}

// ReportRequest flags a question as wrong or unclear.
type ReportRequest struct {
	ExamID        string `json:"examId"`
	QuestionID    string `json:"questionId"`
	QuestionIndex int    `json:"questionIndex"`
}
