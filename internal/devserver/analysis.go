package devserver

import (
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/aceplus/internal/model"
)

const recentExams = 5

type tally struct {
	exams     int
	questions int
	correct   int
	percent   float64
}

func (t *tally) breakdown() model.Breakdown {
	b := model.Breakdown{TotalExams: t.exams, TotalQuestions: t.questions, CorrectAnswers: t.correct}
	if t.exams > 0 {
		b.AverageScore = round2(t.percent / float64(t.exams))
	}
	return b
}

func (t *tally) add(rec *examRecord) {
	t.exams++
	t.questions += len(rec.exam.Questions)
	t.correct += rec.score
	t.percent += rec.percent
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// submittedExams returns the submitted exams of user in subject newest
// first. An empty subject matches all of them.
func (s *Server) submittedExams(user, subject string) ([]*examRecord, []model.ExamSummary) {
	var recs []*examRecord
	for _, rec := range s.exams {
		if rec.exam.UserID == user && rec.exam.IsSubmitted && (subject == "" || rec.exam.Subject == subject) {
			recs = append(recs, rec)
		}
	}
	recent := s.userExams(user, func(rec *examRecord) bool {
		return rec.exam.IsSubmitted && (subject == "" || rec.exam.Subject == subject)
	})
	return recs, recent[:min(len(recent), recentExams)]
}

func (s *Server) handleOverviewStats(w http.ResponseWriter, r *http.Request) {
	claims := userFromContext(r.Context())
	s.mu.Lock()
	recs, recent := s.submittedExams(claims.Sub, "")
	s.mu.Unlock()

	var all tally
	subjects := make(map[string]*tally)
	for _, rec := range recs {
		all.add(rec)
		t := subjects[rec.exam.Subject]
		if t == nil {
			t = &tally{}
			subjects[rec.exam.Subject] = t
		}
		t.add(rec)
	}
	resp := model.OverviewStats{
		Breakdown:   all.breakdown(),
		Subjects:    make(map[string]model.Breakdown, len(subjects)),
		RecentExams: recent,
	}
	for name, t := range subjects {
		resp.Subjects[name] = t.breakdown()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubjectStats(w http.ResponseWriter, r *http.Request) {
	claims := userFromContext(r.Context())
	subject := chi.URLParam(r, "subject")
	s.mu.Lock()
	recs, recent := s.submittedExams(claims.Sub, subject)
	s.mu.Unlock()

	var all tally
	lessons := make(map[string]*tally)
	resp := model.SubjectStats{Subject: subject, RecentExams: recent}
	for i, rec := range recs {
		all.add(rec)
		if i == 0 || rec.percent > resp.HighestPercentage {
			resp.HighestPercentage = rec.percent
		}
		if i == 0 || rec.percent < resp.LowestPercentage {
			resp.LowestPercentage = rec.percent
		}

		seen := make(map[string]bool)
		for q, lesson := range rec.lessons {
			t := lessons[lesson]
			if t == nil {
				t = &tally{}
				lessons[lesson] = t
			}
			if !seen[lesson] {
				seen[lesson] = true
				t.exams++
			}
			t.questions++
			if q < len(rec.correct) && rec.correct[q] {
				t.correct++
			}
		}
	}
	resp.Breakdown = all.breakdown()
	resp.HighestPercentage = round2(resp.HighestPercentage)
	resp.LowestPercentage = round2(resp.LowestPercentage)
	resp.Lessons = make(map[string]model.Breakdown, len(lessons))
	for name, t := range lessons {
		// Lesson averages are over questions, not exams.
		b := model.Breakdown{TotalExams: t.exams, TotalQuestions: t.questions, CorrectAnswers: t.correct}
		if t.questions > 0 {
			b.AverageScore = round2(float64(t.correct) / float64(t.questions) * 100)
		}
		resp.Lessons[name] = b
	}
	writeJSON(w, http.StatusOK, resp)
}
