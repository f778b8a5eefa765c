package devserver

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pavelanni/aceplus/internal/model"
)

//go:embed bank.json
var defaultBank []byte

// BankQuestion is a question of the fixed bank exams and jobs draw from.
type BankQuestion struct {
	Subject  string         `json:"subject"`
	Lesson   string         `json:"lesson"`
	Class10  bool           `json:"class10,omitempty"`
	Question model.Question `json:"question"`
}

// DefaultBank returns the built-in question bank.
func DefaultBank() ([]BankQuestion, error) {
	return parseBank(defaultBank)
}

// LoadBank reads a question bank from a JSON file.
func LoadBank(path string) ([]BankQuestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return parseBank(data)
}

func parseBank(data []byte) ([]BankQuestion, error) {
	var bank []BankQuestion
	if err := json.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	for i, q := range bank {
		if q.Subject == "" || q.Lesson == "" || q.Question.Question == "" {
			return nil, fmt.Errorf("question bank entry %d: subject, lesson and question are required", i)
		}
		if !q.Question.Answer.Valid() {
			return nil, fmt.Errorf("question bank entry %d: invalid answer %q", i, q.Question.Answer)
		}
	}
	if len(bank) == 0 {
		return nil, fmt.Errorf("question bank is empty")
	}
	return bank, nil
}

// lessons lists the lessons of subject in bank order.
func (s *Server) lessons(subject string, class10 bool) []string {
	var out []string
	seen := make(map[string]bool)
	for _, q := range s.bank {
		if q.Subject != subject || q.Class10 != class10 || seen[q.Lesson] {
			continue
		}
		seen[q.Lesson] = true
		out = append(out, q.Lesson)
	}
	return out
}

func (s *Server) hasSubject(subject string) bool {
	for _, q := range s.bank {
		if q.Subject == subject {
			return true
		}
	}
	return false
}

// pick returns up to n bank entries of the given lessons in bank order.
func (s *Server) pick(subject string, lessons []string, class10 bool, n int) []BankQuestion {
	want := make(map[string]bool, len(lessons))
	for _, l := range lessons {
		want[l] = true
	}
	var out []BankQuestion
	for _, q := range s.bank {
		if len(out) == n {
			break
		}
		if q.Subject == subject && q.Class10 == class10 && want[q.Lesson] {
			out = append(out, q)
		}
	}
	return out
}
