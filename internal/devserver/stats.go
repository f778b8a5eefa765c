package devserver

import (
	"cmp"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/pavelanni/aceplus/internal/model"
)

const (
	defaultPageSize = 20
	baseRating      = 1000
	// ratingStep is the rating change per question above or below half marks.
	ratingStep = 8
)

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.updates[0])
}

type userTotals struct {
	exams     int
	questions int
	correct   int
	percent   float64
	rating    float64
}

// totals sums the submitted exams of each user. With monthOnly set only
// exams submitted in the current calendar month count.
func (s *Server) totals(monthOnly bool) map[string]*userTotals {
	now := s.now()
	out := make(map[string]*userTotals)
	for _, rec := range s.exams {
		if !rec.exam.IsSubmitted {
			continue
		}
		if monthOnly && (rec.submitted.Year() != now.Year() || rec.submitted.Month() != now.Month()) {
			continue
		}
		t := out[rec.exam.UserID]
		if t == nil {
			t = &userTotals{rating: baseRating}
			out[rec.exam.UserID] = t
		}
		n := len(rec.exam.Questions)
		t.exams++
		t.questions += n
		t.correct += rec.score
		t.percent += rec.percent
		t.rating += float64(ratingStep * (2*rec.score - n))
	}
	for _, t := range out {
		t.percent /= float64(t.exams)
	}
	return out
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	claims := userFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if size < 1 {
		size = defaultPageSize
	}
	month := s.now().Format("January 2006")

	s.mu.Lock()
	totals := s.totals(true)
	var entries []model.LeaderboardEntry
	for id, u := range s.users {
		if u.class10 != claims.Class10 {
			continue
		}
		e := model.LeaderboardEntry{Name: strings.ToUpper(id), Division: "A"}
		if t, ok := totals[id]; ok {
			e.TotalExams = t.exams
			e.AveragePercentage = math.Round(t.percent*100) / 100
			e.EloScore = t.rating
			e.HasTakenExam = true
		}
		entries = append(entries, e)
	}
	s.mu.Unlock()

	if len(entries) == 0 {
		writeJSON(w, http.StatusOK, model.Leaderboard{Month: month, Entries: []model.LeaderboardEntry{}, Zero: true})
		return
	}
	slices.SortFunc(entries, func(a, b model.LeaderboardEntry) int {
		return cmp.Or(
			cmp.Compare(b.EloScore, a.EloScore),
			cmp.Compare(b.AveragePercentage, a.AveragePercentage),
			cmp.Compare(a.Name, b.Name),
		)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	start := min((page-1)*size, len(entries))
	end := min(start+size, len(entries))
	class := "9"
	if claims.Class10 {
		class = "10"
	}
	writeJSON(w, http.StatusOK, model.Leaderboard{
		Month:   month,
		Entries: entries[start:end],
		Class:   class,
	})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	claims := userFromContext(r.Context())
	s.mu.Lock()
	t := s.totals(false)[claims.Sub]
	s.mu.Unlock()
	if t == nil {
		t = &userTotals{}
	}
	writeJSON(w, http.StatusOK, []map[string]any{
		{"title": "Total Exams Attempted", "value": t.exams},
		{"title": "Total Marks Attempted", "value": t.questions},
		{"title": "Total Marks Gained", "value": t.correct},
		{"title": "Average Percentage", "value": fmt.Sprintf("%.2f%%", t.percent)},
	})
}

func (s *Server) handleFetchCoins(w http.ResponseWriter, r *http.Request) {
	claims := userFromContext(r.Context())
	s.mu.Lock()
	t := s.totals(false)[claims.Sub]
	s.mu.Unlock()

	var exams, correct int
	if t != nil {
		exams, correct = t.exams, t.correct
	}
	writeJSON(w, http.StatusOK, model.Coins{
		Coins: correct,
		Tasks: []model.CoinsTask{
			{Title: "Take your first exam", Reward: 10, Completed: exams > 0},
			{Title: "Take five exams", Reward: 50, Completed: exams >= 5},
		},
	})
}
