package devserver

import (
	"fmt"
	"net/http"

	"github.com/pavelanni/aceplus/internal/model"
)

// TestSpec describes an assigned test. Its questions are drawn from the bank
// when the server starts.
type TestSpec struct {
	ID      string
	Subject string
	Lessons []string
	Class10 bool
	// Questions is the number of questions; zero means QuestionsPerExam.
	Questions int
	// CreatedBy is the teacher account that published the test.
	CreatedBy string
}

type assignedTest struct {
	spec        TestSpec
	questions   []BankQuestion
	completedBy map[string]bool
}

// DefaultTests returns tests drawn from the built-in bank.
func DefaultTests() []TestSpec {
	return []TestSpec{
		{ID: "TS-SCI-9", Subject: "Science", Lessons: []string{"Motion", "Force and Laws of Motion"}, Questions: 4},
		{ID: "TS-MATH-10", Subject: "Mathematics", Lessons: []string{"Real Numbers"}, Class10: true, Questions: 2},
	}
}

func (s *Server) addTest(spec TestSpec) error {
	if spec.ID == "" || spec.Subject == "" || len(spec.Lessons) == 0 {
		return fmt.Errorf("test %q: id, subject and lessons are required", spec.ID)
	}
	for _, t := range s.tests {
		if t.spec.ID == spec.ID {
			return fmt.Errorf("test %s already exists", spec.ID)
		}
	}
	n := spec.Questions
	if n <= 0 {
		n = s.perExam
	}
	picked := s.pick(spec.Subject, spec.Lessons, spec.Class10, n)
	if len(picked) == 0 {
		return fmt.Errorf("test %s: the question bank has nothing for its lessons", spec.ID)
	}
	s.tests = append(s.tests, &assignedTest{spec: spec, questions: picked, completedBy: make(map[string]bool)})
	return nil
}

// openTest returns the test if user may still take it. Callers hold s.mu.
func (s *Server) openTest(id, user string, class10 bool) *assignedTest {
	for _, t := range s.tests {
		if t.spec.ID == id && t.spec.Class10 == class10 && !t.completedBy[user] {
			return t
		}
	}
	return nil
}

func (s *Server) completeTest(id, user string) {
	for _, t := range s.tests {
		if t.spec.ID == id {
			t.completedBy[user] = true
		}
	}
}

func (s *Server) handleTests(w http.ResponseWriter, r *http.Request) {
	claims := userFromContext(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tests) == 0 {
		writeMessage(w, http.StatusNotFound, "No tests available")
		return
	}

	u := s.users[claims.Sub]
	resp := model.TestList{Tests: []model.AssignedTest{}, Teacher: u != nil && u.teacher}
	for _, t := range s.tests {
		if resp.Teacher {
			// Teachers see the tests they published.
			if t.spec.CreatedBy != claims.Sub {
				continue
			}
			resp.TeacherSubject = t.spec.Subject
		} else if t.completedBy[claims.Sub] || t.spec.Class10 != claims.Class10 {
			continue
		}
		resp.Tests = append(resp.Tests, model.AssignedTest{
			Subject:   t.spec.Subject,
			TestID:    t.spec.ID,
			Lessons:   t.spec.Lessons,
			Questions: len(t.questions),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
