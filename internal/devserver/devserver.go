// Package devserver is an in-memory implementation of the backend HTTP API
// for local development and end-to-end tests. It serves fixed question
// banks instead of generating questions.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/aceplus/internal/model"
)

const (
	DefaultJobStep          = 200 * time.Millisecond
	DefaultQuestionsPerExam = 5
	questionsPerImage       = 2
)

// Account is a user the server accepts at login.
type Account struct {
	ID       string
	Password string
	Class10  bool
	Teacher  bool
}

// Config configures a Server.
type Config struct {
	JWTSecret string
	Accounts  []Account
	// Bank replaces the built-in question bank when non-empty.
	Bank []BankQuestion
	// JobStep is the simulated time to generate one question.
	JobStep          time.Duration
	QuestionsPerExam int
	// Tests are the assigned tests students can take.
	Tests   []TestSpec
	Updates []model.Update
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Now        func() time.Time
}

type user struct {
	id           string
	passwordHash []byte
	class10      bool
	teacher      bool
}

type storedUpload struct {
	contentType string
	data        []byte
}

// Server holds all state in memory. It is safe for concurrent use.
type Server struct {
	secret   []byte
	bank     []BankQuestion
	jobStep  time.Duration
	perExam  int
	updates  []model.Update
	cost     int
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	jobsDone sync.WaitGroup

	mu      sync.Mutex
	users   map[string]*user
	uploads map[string]storedUpload
	jobs    map[string]*generationJob
	exams   map[string]*examRecord
	tests   []*assignedTest
	reports []model.ReportRequest
	// bankCursor is where the next job starts drawing questions.
	bankCursor int
}

// New creates a Server and hashes the configured passwords.
func New(cfg Config) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	bank := cfg.Bank
	if len(bank) == 0 {
		var err error
		if bank, err = DefaultBank(); err != nil {
			return nil, err
		}
	}
	s := &Server{
		secret:  []byte(cfg.JWTSecret),
		bank:    bank,
		jobStep: cfg.JobStep,
		perExam: cfg.QuestionsPerExam,
		updates: cfg.Updates,
		cost:    cfg.BcryptCost,
		now:     cfg.Now,
		users:   make(map[string]*user),
		uploads: make(map[string]storedUpload),
		jobs:    make(map[string]*generationJob),
		exams:   make(map[string]*examRecord),
	}
	if s.jobStep <= 0 {
		s.jobStep = DefaultJobStep
	}
	if s.perExam <= 0 {
		s.perExam = DefaultQuestionsPerExam
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	if len(s.updates) == 0 {
		s.updates = []model.Update{{
			Version: "1.0.0",
			Date:    "2026-01-15",
			Changes: []string{"Generate practice questions from photos of your notes"},
		}}
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	for _, a := range cfg.Accounts {
		if err := s.addUser(a); err != nil {
			return nil, err
		}
	}
	for _, t := range cfg.Tests {
		if err := s.addTest(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Server) addUser(a Account) error {
	if a.ID == "" || a.Password == "" {
		return errors.New("user id and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password for %s: %w", a.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[a.ID]; ok {
		return fmt.Errorf("user %s already exists", a.ID)
	}
	s.users[a.ID] = &user{id: a.ID, passwordHash: hash, class10: a.Class10, teacher: a.Teacher}
	return nil
}

// Close stops running jobs and waits for them to exit.
func (s *Server) Close() {
	s.cancel()
	s.jobsDone.Wait()
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	s.Routes(r)
	return r
}

// Routes registers the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/login", s.handleLogin)
	r.Post("/api/register", s.handleRegister)
	r.Get("/api/updates", s.handleUpdates)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/api/upload_images", s.handleUploadImages)
		r.Get("/api/uploads/{filename}", s.handleUploadedFile)
		r.Post("/api/generate_from_images", s.handleGenerateFromImages)
		r.Get("/api/check_job_status/{jobID}", s.handleCheckJobStatus)

		r.Get("/api/lessons", s.handleLessons)
		r.Post("/api/create_exam", s.handleCreateExam)
		r.Get("/api/exam/{examID}", s.handleGetExam)
		r.Post("/api/submit_exam/{examID}", s.handleSubmitExam)
		r.Get("/api/user_exams", s.handleUserExams)
		r.Get("/api/unsubmitted_exams", s.handleUnsubmittedExams)
		r.Delete("/api/delete_unsubmitted_exam/{examID}", s.handleDeleteUnsubmittedExam)
		r.Post("/api/report", s.handleReport)
		r.Get("/api/tests", s.handleTests)

		r.Get("/api/leaderboard", s.handleLeaderboard)
		r.Get("/api/user_stats", s.handleUserStats)
		r.Get("/api/overview_stats", s.handleOverviewStats)
		r.Get("/api/subject_stats/{subject}", s.handleSubjectStats)
		r.Get("/api/fetch_coins", s.handleFetchCoins)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
