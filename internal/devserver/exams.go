package devserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/aceplus/internal/model"
)

const (
	timestampLayout   = "2006-01-02 15:04:05"
	unsubmittedWindow = 7 * 24 * time.Hour
)

type examRecord struct {
	exam      model.Exam
	class10   bool
	created   time.Time
	submitted time.Time
	score     int
	percent   float64
	// lessons holds the lesson of each question. correct is set on submission.
	lessons  []string
	correct  []bool
	testID   string
	reported map[int]bool
}

func (s *Server) handleLessons(w http.ResponseWriter, r *http.Request) {
	claims := userFromContext(r.Context())
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		writeMessage(w, http.StatusBadRequest, "Subject parameter is required")
		return
	}
	if !s.hasSubject(subject) {
		writeMessage(w, http.StatusBadRequest, "Invalid subject")
		return
	}
	class10 := claims.Class10
	if v := r.URL.Query().Get("class10"); v != "" {
		class10, _ = strconv.ParseBool(v)
	}
	lessons := s.lessons(subject, class10)
	if lessons == nil {
		lessons = []string{}
	}
	writeJSON(w, http.StatusOK, lessons)
}

func (s *Server) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	claims := userFromContext(r.Context())
	var req model.CreateExamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Subject and lessons are required")
		return
	}
	var (
		examID, testID string
		subject        = req.Subject
		lessons        = req.Lessons
		picked         []BankQuestion
	)
	if req.Test {
		if req.TestID == "" {
			writeMessage(w, http.StatusBadRequest, "Test ID is required")
			return
		}
		s.mu.Lock()
		t := s.openTest(req.TestID, claims.Sub, claims.Class10)
		s.mu.Unlock()
		if t == nil {
			writeMessage(w, http.StatusNotFound, "Test not found or already completed")
			return
		}
		// One attempt per student; starting again replaces the open one.
		examID, testID = req.TestID+"-"+claims.Sub, req.TestID
		subject, lessons, picked = t.spec.Subject, t.spec.Lessons, t.questions
	} else {
		if req.Subject == "" || len(req.Lessons) == 0 {
			writeMessage(w, http.StatusBadRequest, "Subject and lessons are required")
			return
		}
		picked = s.pick(req.Subject, req.Lessons, claims.Class10, s.perExam)
		if len(picked) == 0 {
			writeMessage(w, http.StatusBadRequest, "Invalid lessons provided")
			return
		}
		examID = uuid.NewString()
	}
	questions := make([]model.ExamQuestion, len(picked))
	questionLessons := make([]string, len(picked))
	for i, q := range picked {
		questions[i] = model.ExamQuestion{Question: q.Question, No: strconv.Itoa(i + 1)}
		questionLessons[i] = q.Lesson
	}

	now := s.now()
	rec := &examRecord{
		exam: model.Exam{
			ID:        examID,
			UserID:    claims.Sub,
			Subject:   subject,
			Lessons:   lessons,
			Questions: questions,
			Test:      req.Test,
			Timestamp: now.Format(timestampLayout),
		},
		class10:  claims.Class10,
		created:  now,
		lessons:  questionLessons,
		testID:   testID,
		reported: make(map[int]bool),
	}
	s.mu.Lock()
	s.exams[rec.exam.ID] = rec
	s.mu.Unlock()

	slog.Info("exam created", "exam_id", rec.exam.ID, "user", claims.Sub, "questions", len(questions))
	writeJSON(w, http.StatusCreated, model.CreateExamResponse{ExamID: rec.exam.ID})
}

// ownedExam returns the caller's exam. Exams of other users are reported as
// missing so clients do not mistake them for an expired session.
func (s *Server) ownedExam(r *http.Request) (*examRecord, bool) {
	claims := userFromContext(r.Context())
	rec, ok := s.exams[chi.URLParam(r, "examID")]
	if !ok || rec.exam.UserID != claims.Sub {
		return nil, false
	}
	return rec, true
}

func (s *Server) handleGetExam(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rec, ok := s.ownedExam(r)
	var exam model.Exam
	if ok {
		exam = rec.exam
		exam.Questions = slices.Clone(rec.exam.Questions)
	}
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, "Exam not found")
		return
	}
	if !exam.IsSubmitted {
		for i := range exam.Questions {
			exam.Questions[i].Answer = ""
			exam.Questions[i].Solution = ""
		}
	}
	writeJSON(w, http.StatusOK, exam)
}

func (s *Server) handleSubmitExam(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid submission")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.ownedExam(r)
	if !ok {
		writeMessage(w, http.StatusNotFound, "Exam not found")
		return
	}
	if rec.exam.IsSubmitted {
		writeMessage(w, http.StatusBadRequest, "Exam already submitted")
		return
	}
	for _, a := range req.Answers {
		if !a.Option.Valid() {
			writeMessage(w, http.StatusBadRequest, fmt.Sprintf("Invalid option %q", a.Option))
			return
		}
	}

	res := grade(rec.exam.Questions, req.Answers)
	rec.exam.IsSubmitted = true
	rec.submitted = s.now()
	rec.score = res.Score
	rec.percent = res.Percentage
	rec.correct = make([]bool, len(rec.exam.Questions))
	for i, qr := range res.Results {
		rec.correct[i] = qr.IsCorrect
	}
	if rec.testID != "" {
		s.completeTest(rec.testID, rec.exam.UserID)
	}

	slog.Info("exam submitted", "exam_id", rec.exam.ID, "score", res.Score, "total", res.TotalQuestions)
	writeJSON(w, http.StatusOK, res)
}

// grade pairs answers with questions by position. Questions without an
// answer count toward the total but not the score.
func grade(questions []model.ExamQuestion, answers []model.AnswerSelection) model.SubmitResult {
	res := model.SubmitResult{
		Message:        "Exam submitted successfully",
		TotalQuestions: len(questions),
		Results:        make([]model.QuestionResult, 0, len(questions)),
	}
	for i, q := range questions {
		if i >= len(answers) {
			break
		}
		selected := answers[i].Option
		correct := selected == q.Answer
		if correct {
			res.Score++
		}
		qr := model.QuestionResult{
			QuestionNo:     strconv.Itoa(i + 1),
			Question:       q.Question.Question,
			IsCorrect:      correct,
			SelectedAnswer: fmt.Sprintf("%s) %s", selected, q.Options[selected]),
			CorrectAnswer:  fmt.Sprintf("%s) %s", q.Answer, q.Options[q.Answer]),
		}
		if !correct && q.Solution != "" {
			sol := q.Solution
			qr.Solution = &sol
		}
		res.Results = append(res.Results, qr)
	}
	if res.TotalQuestions > 0 {
		res.Percentage = float64(res.Score) / float64(res.TotalQuestions) * 100
	}
	return res
}

func (rec *examRecord) summary() model.ExamSummary {
	return model.ExamSummary{
		ExamID:      rec.exam.ID,
		Subject:     rec.exam.Subject,
		Lessons:     rec.exam.Lessons,
		IsSubmitted: rec.exam.IsSubmitted,
		Score:       rec.score,
		Percentage:  rec.percent,
		Timestamp:   rec.exam.Timestamp,
		Test:        rec.exam.Test,
	}
}

// userExams returns the exams of user newest first.
func (s *Server) userExams(user string, keep func(*examRecord) bool) []model.ExamSummary {
	var recs []*examRecord
	for _, rec := range s.exams {
		if rec.exam.UserID == user && keep(rec) {
			recs = append(recs, rec)
		}
	}
	slices.SortFunc(recs, func(a, b *examRecord) int { return b.created.Compare(a.created) })
	out := make([]model.ExamSummary, len(recs))
	for i, rec := range recs {
		out[i] = rec.summary()
	}
	return out
}

func (s *Server) handleUserExams(w http.ResponseWriter, r *http.Request) {
	claims := userFromContext(r.Context())
	s.mu.Lock()
	exams := s.userExams(claims.Sub, func(*examRecord) bool { return true })
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, exams)
}

func (s *Server) handleUnsubmittedExams(w http.ResponseWriter, r *http.Request) {
	claims := userFromContext(r.Context())
	cutoff := s.now().Add(-unsubmittedWindow)
	s.mu.Lock()
	exams := s.userExams(claims.Sub, func(rec *examRecord) bool {
		return !rec.exam.IsSubmitted && rec.created.After(cutoff)
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, exams)
}

func (s *Server) handleDeleteUnsubmittedExam(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.ownedExam(r)
	if !ok {
		writeMessage(w, http.StatusNotFound, "Exam not found")
		return
	}
	if rec.exam.IsSubmitted {
		writeMessage(w, http.StatusBadRequest, "Exam already submitted")
		return
	}
	delete(s.exams, rec.exam.ID)
	writeMessage(w, http.StatusOK, "Exam deleted successfully")
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	claims := userFromContext(r.Context())
	var req model.ReportRequest
	if err := decodeJSON(w, r, &req); err != nil || req.ExamID == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.exams[req.ExamID]
	if !ok || rec.exam.UserID != claims.Sub {
		writeMessage(w, http.StatusNotFound, "Exam not found")
		return
	}
	if req.QuestionIndex < 0 || req.QuestionIndex >= len(rec.exam.Questions) {
		writeMessage(w, http.StatusBadRequest, "Invalid question index")
		return
	}
	if !rec.reported[req.QuestionIndex] {
		rec.reported[req.QuestionIndex] = true
		s.reports = append(s.reports, req)
		slog.Info("question reported", "exam_id", req.ExamID, "index", req.QuestionIndex)
	}
	writeMessage(w, http.StatusOK, "Report submitted successfully")
}
