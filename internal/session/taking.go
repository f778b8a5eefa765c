package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pavelanni/aceplus/internal/model"
)

var (
	ErrUnanswered       = errors.New("not every question is answered")
	ErrAlreadySubmitted = errors.New("exam already submitted")
	ErrUnknownQuestion  = errors.New("no such question in this exam")
)

// UnansweredError lists the questions still missing an answer, in exam order.
type UnansweredError struct {
	QuestionIDs []string
}

func (e *UnansweredError) Error() string {
	return fmt.Sprintf("%d unanswered: %s", len(e.QuestionIDs), strings.Join(e.QuestionIDs, ", "))
}

func (e *UnansweredError) Is(target error) bool { return target == ErrUnanswered }

// UniqueID is the client-side id of the question at index.
func UniqueID(index int) string {
	return "q" + strconv.Itoa(index+1)
}

// AssignIDs gives every question its positional unique id.
func AssignIDs(questions []model.ExamQuestion) {
	for i := range questions {
		questions[i].UniqueID = UniqueID(i)
	}
}

// Project builds the submission payload from the exam's own question list.
// The cache only contributes the chosen options.
func Project(questions []model.ExamQuestion, answers Answers) ([]model.AnswerSelection, error) {
	var missing []string
	out := make([]model.AnswerSelection, 0, len(questions))
	for i, q := range questions {
		id := q.UniqueID
		if id == "" {
			id = UniqueID(i)
		}
		opt, ok := answers[id]
		if !ok || !opt.Valid() {
			missing = append(missing, id)
			continue
		}
		no := q.No
		if no == "" {
			no = strconv.Itoa(i + 1)
		}
		out = append(out, model.AnswerSelection{QuestionNo: no, Option: opt})
	}
	if len(missing) > 0 {
		return nil, &UnansweredError{QuestionIDs: missing}
	}
	return out, nil
}

// ExamService is the slice of the backend the exam-taking flow needs.
type ExamService interface {
	GetExam(ctx context.Context, examID string) (*model.Exam, error)
	SubmitExam(ctx context.Context, examID string, req model.SubmitRequest) (*model.SubmitResult, error)
}

// Taker runs the exam-taking flow against the server and the local cache.
type Taker struct {
	exams ExamService
	cache *Cache
}

// NewTaker returns a Taker.
func NewTaker(exams ExamService, cache *Cache) *Taker {
	return &Taker{exams: exams, cache: cache}
}

// Attempt is an open exam hydrated with the locally cached answers.
type Attempt struct {
	Exam    *model.Exam
	Answers Answers
}

// Unanswered returns the unique ids of questions without an answer.
func (a *Attempt) Unanswered() []string {
	var ids []string
	for _, q := range a.Exam.Questions {
		if _, ok := a.Answers[q.UniqueID]; !ok {
			ids = append(ids, q.UniqueID)
		}
	}
	return ids
}

// Question finds a question by unique id.
func (a *Attempt) Question(id string) (model.ExamQuestion, bool) {
	for _, q := range a.Exam.Questions {
		if q.UniqueID == id {
			return q, true
		}
	}
	return model.ExamQuestion{}, false
}

// Load fetches the exam, assigns unique ids and restores cached answers.
// A submitted exam returns ErrAlreadySubmitted together with the exam.
func (t *Taker) Load(ctx context.Context, examID string) (*Attempt, error) {
	exam, err := t.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.ID == "" {
		exam.ID = examID
	}
	AssignIDs(exam.Questions)
	if exam.IsSubmitted {
		return &Attempt{Exam: exam, Answers: Answers{}}, ErrAlreadySubmitted
	}
	a := &Attempt{Exam: exam, Answers: t.cache.LoadAnswers(examID)}
	// Drop answers for ids the exam does not have.
	for id := range a.Answers {
		if _, ok := a.Question(id); !ok {
			delete(a.Answers, id)
		}
	}
	return a, nil
}

// Answer records a choice for a question of the loaded attempt.
func (t *Taker) Answer(a *Attempt, questionID string, option model.OptionKey) error {
	if _, ok := a.Question(questionID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if err := t.cache.RecordAnswer(a.Exam.ID, questionID, option); err != nil {
		return err
	}
	a.Answers[questionID] = option
	return nil
}

// Submit re-reads the exam from the server, projects the cached answers onto
// its question list and submits them. The cached sheet is removed once the
// server accepts the submission.
func (t *Taker) Submit(ctx context.Context, examID string) (*model.SubmitResult, error) {
	exam, err := t.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.IsSubmitted {
		return nil, ErrAlreadySubmitted
	}
	AssignIDs(exam.Questions)

	selections, err := Project(exam.Questions, t.cache.LoadAnswers(examID))
	if err != nil {
		return nil, err
	}
	result, err := t.exams.SubmitExam(ctx, examID, model.SubmitRequest{Answers: selections})
	if err != nil {
		return nil, err
	}
	if err := t.cache.Clear(examID); err != nil {
		slog.Warn("clear cached answers", "exam_id", examID, "error", err)
	}
	slog.Info("exam submitted", "exam_id", examID, "score", result.Score, "total", result.TotalQuestions)
	return result, nil
}
