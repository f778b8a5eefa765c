package job

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pavelanni/aceplus/internal/gateway"
	"github.com/pavelanni/aceplus/internal/model"
)

type step struct {
	state model.JobState
	err   error
}

// scripted replays steps in order and repeats the last one.
type scripted struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (s *scripted) Status(ctx context.Context, jobID string) (model.JobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.steps)-1)
	s.calls++
	return s.steps[i].state, s.steps[i].err
}

func (s *scripted) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// blocking never answers until ctx is done or release is closed.
type blocking struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlocking() *blocking {
	return &blocking{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blocking) Status(ctx context.Context, jobID string) (model.JobState, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return model.Completed{Questions: questions(1)}, nil
	}
}

func questions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			Question: string(rune('A' + i)),
			Options:  map[model.OptionKey]string{model.OptionA: "1", model.OptionB: "2", model.OptionC: "3", model.OptionD: "4"},
			Answer:   model.OptionA,
		}
	}
	return qs
}

func fastPoller(src StatusSource) *Poller {
	return NewPoller(src, Options{Interval: time.Millisecond})
}

func TestPollOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		steps   []step
		wantN   int
		wantErr error
		wantMsg string
	}{
		{
			name: "completed after processing",
			steps: []step{
				{state: model.Processing{Total: 0}},
				{state: model.Processing{Total: 3, Completed: 1}},
				{state: model.Completed{Questions: questions(3)}},
			},
			wantN: 3,
		},
		{
			name:    "completed empty",
			steps:   []step{{state: model.Completed{}}},
			wantErr: ErrNoQuestionsExtracted,
		},
		{
			name:    "failed with no-questions message",
			steps:   []step{{state: model.Failed{Message: NoQuestionsMessage}}},
			wantErr: ErrNoQuestionsExtracted,
		},
		{
			name:    "http error with no-questions message",
			steps:   []step{{err: &gateway.HTTPError{StatusCode: 404, Message: NoQuestionsMessage}}},
			wantErr: ErrNoQuestionsExtracted,
		},
		{
			name:    "failed with message",
			steps:   []step{{state: model.Processing{}}, {state: model.Failed{Message: "model overloaded"}}},
			wantMsg: "model overloaded",
		},
		{
			name:    "failed without message",
			steps:   []step{{state: model.Failed{}}},
			wantMsg: FallbackFailureMessage,
		},
		{
			name:    "transport error",
			steps:   []step{{state: model.Processing{}}, {err: gateway.ErrTimeout}},
			wantErr: gateway.ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fastPoller(&scripted{steps: tt.steps})
			qs, err := p.Poll(context.Background(), "job-1", Callbacks{})

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			case tt.wantMsg != "":
				var fe *FailedError
				if !errors.As(err, &fe) {
					t.Fatalf("expected *FailedError, got %v", err)
				}
				if fe.Message != tt.wantMsg {
					t.Errorf("message = %q, want %q", fe.Message, tt.wantMsg)
				}
				if errors.Is(err, ErrNoQuestionsExtracted) {
					t.Error("plain failure must not match ErrNoQuestionsExtracted")
				}
			default:
				if err != nil {
					t.Fatalf("Poll: %v", err)
				}
				if len(qs) != tt.wantN {
					t.Errorf("got %d questions, want %d", len(qs), tt.wantN)
				}
			}
		})
	}
}

// queued is a non-terminal state other than Processing.
type queued struct{}

func (queued) Status() model.JobStatus { return "queued" }
func (queued) Terminal() bool          { return false }

func TestPollFollowsTerminal(t *testing.T) {
	src := &scripted{steps: []step{
		{state: queued{}},
		{state: queued{}},
		{state: model.Completed{Questions: questions(2)}},
	}}
	qs, err := fastPoller(src).Poll(context.Background(), "job-1", Callbacks{})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(qs) != 2 || src.count() != 3 {
		t.Errorf("got %d questions after %d polls, want 2 after 3", len(qs), src.count())
	}

	_, err = fastPoller(&scripted{steps: []step{{}}}).Poll(context.Background(), "job-2", Callbacks{})
	if err == nil {
		t.Fatal("expected error for a missing state")
	}
}

func TestPollPreservesOrder(t *testing.T) {
	want := questions(4)
	p := fastPoller(&scripted{steps: []step{{state: model.Completed{Questions: want}}}})
	got, err := p.Poll(context.Background(), "j", Callbacks{})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	for i := range want {
		if got[i].Question != want[i].Question {
			t.Errorf("question %d = %q, want %q", i, got[i].Question, want[i].Question)
		}
	}
}

func TestPollProgress(t *testing.T) {
	src := &scripted{steps: []step{
		{state: model.Processing{Total: 0, Completed: 0, Message: "Job is still processing"}},
		{state: model.Processing{Total: 0, Completed: 2, Message: "Job is still processing"}},
		{state: model.Processing{Total: 5, Completed: 2, Message: "Job is still processing"}},
		{state: model.Processing{Total: 5, Completed: 9, Message: "Almost done"}},
		{state: model.Completed{Questions: questions(5)}},
	}}
	var progress []model.Progress
	var messages []string
	p := fastPoller(src)
	_, err := p.Poll(context.Background(), "j", Callbacks{
		OnProgress: func(pr model.Progress) { progress = append(progress, pr) },
		OnMessage:  func(m string) { messages = append(messages, m) },
	})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	want := []model.Progress{{Completed: 2, Total: 5}, {Completed: 5, Total: 5}}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
		if progress[i].Completed > progress[i].Total {
			t.Errorf("progress[%d] completed exceeds total", i)
		}
	}
	if len(messages) != 2 || messages[0] != "Job is still processing" || messages[1] != "Almost done" {
		t.Errorf("messages = %v", messages)
	}
	if src.count() != 5 {
		t.Errorf("polls = %d, want 5", src.count())
	}
}

func TestPollFirstImmediately(t *testing.T) {
	src := &scripted{steps: []step{{state: model.Completed{Questions: questions(1)}}}}
	p := NewPoller(src, Options{Interval: time.Hour})
	done := make(chan error, 1)
	go func() {
		_, err := p.Poll(context.Background(), "j", Callbacks{})
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first poll should not wait for the interval")
	}
}

func TestPollDuplicate(t *testing.T) {
	src := newBlocking()
	p := fastPoller(src)
	run := p.Start(context.Background(), "job-1", Callbacks{})
	<-src.entered

	if _, err := p.Poll(context.Background(), "job-1", Callbacks{}); !errors.Is(err, ErrAlreadyPolling) {
		t.Fatalf("expected ErrAlreadyPolling, got %v", err)
	}
	if _, err := p.Start(context.Background(), "job-1", Callbacks{}).Wait(); !errors.Is(err, ErrAlreadyPolling) {
		t.Fatalf("Start: expected ErrAlreadyPolling, got %v", err)
	}

	close(src.release)
	if _, err := run.Wait(); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// The id is free again once the first loop returns.
	p.source = &scripted{steps: []step{{state: model.Completed{Questions: questions(1)}}}}
	if _, err := p.Poll(context.Background(), "job-1", Callbacks{}); err != nil {
		t.Errorf("same poller after release: %v", err)
	}
}

func TestRunCancel(t *testing.T) {
	src := &scripted{steps: []step{{state: model.Processing{}}}}
	p := NewPoller(src, Options{Interval: 5 * time.Millisecond})
	run := p.Start(context.Background(), "j", Callbacks{})

	time.Sleep(20 * time.Millisecond)
	run.Cancel()

	select {
	case <-run.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after Cancel")
	}
	if _, err := run.Wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	n := src.count()
	time.Sleep(20 * time.Millisecond)
	if src.count() != n {
		t.Error("polling continued after cancel")
	}
}

func TestPollDeadline(t *testing.T) {
	src := &scripted{steps: []step{{state: model.Processing{Total: 2, Completed: 1}}}}
	p := NewPoller(src, Options{Interval: 2 * time.Millisecond, MaxDuration: 30 * time.Millisecond})
	_, err := p.Poll(context.Background(), "j", Callbacks{})
	if !errors.Is(err, ErrJobDeadline) {
		t.Fatalf("expected ErrJobDeadline, got %v", err)
	}
}

func TestPollDeadlineDuringSlowPoll(t *testing.T) {
	src := newBlocking()
	p := NewPoller(src, Options{MaxDuration: 30 * time.Millisecond})
	_, err := p.Poll(context.Background(), "j", Callbacks{})
	if !errors.Is(err, ErrJobDeadline) {
		t.Fatalf("expected ErrJobDeadline, got %v", err)
	}
}

// jobServer mimics the backend's generate and status endpoints.
func jobServer(t *testing.T, statuses []func(w http.ResponseWriter)) (*gateway.Client, *atomic.Int32, *[]string) {
	t.Helper()
	var polls atomic.Int32
	var submitted []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate_from_images", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Filenames []string `json:"filenames"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		submitted = body.Filenames
		respond(w, http.StatusAccepted, map[string]string{"message": "Image processing started", "job_id": "job-42"})
	})
	mux.HandleFunc("GET /api/check_job_status/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "job-42" {
			respond(w, http.StatusNotFound, map[string]string{"status": "not_found", "message": "Job not found"})
			return
		}
		i := int(polls.Add(1)) - 1
		statuses[min(i, len(statuses)-1)](w)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	gw, err := gateway.New(gateway.Config{BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return gw, &polls, &submitted
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGenerateScenario(t *testing.T) {
	gw, polls, submitted := jobServer(t, []func(http.ResponseWriter){
		func(w http.ResponseWriter) {
			respond(w, 200, map[string]any{"status": "processing", "total": 5, "completed": 2, "message": "Job is still processing"})
		},
		func(w http.ResponseWriter) {
			respond(w, 200, map[string]any{"status": "completed", "questions": []map[string]any{
				{"question": "Q1", "options": []string{"w", "x", "y", "z"}, "correct_answer": "B"},
				{"question": "Q2", "options": map[string]string{"A": "1", "B": "2", "C": "3", "D": "4"}, "answer": "d"},
				{"question": "Q3", "options": map[string]string{"a": "p", "b": "q", "c": "r", "d": "s"}, "correctAnswer": "a"},
			}})
		},
	})

	g := NewGenerator(gw, Options{Interval: time.Millisecond})
	var progress []model.Progress
	var messages []string
	qs, err := g.Generate(context.Background(), []string{"a.png", "b.png"}, Callbacks{
		OnProgress: func(p model.Progress) { progress = append(progress, p) },
		OnMessage:  func(m string) { messages = append(messages, m) },
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(*submitted) != 2 || (*submitted)[0] != "a.png" {
		t.Errorf("submitted %v", *submitted)
	}
	if len(progress) != 1 || progress[0] != (model.Progress{Completed: 2, Total: 5}) {
		t.Errorf("progress = %v", progress)
	}
	if len(messages) == 0 || messages[0] != StartingMessage {
		t.Errorf("messages = %v", messages)
	}
	if polls.Load() != 2 {
		t.Errorf("polls = %d, want 2", polls.Load())
	}
	if len(qs) != 3 {
		t.Fatalf("got %d questions", len(qs))
	}
	wantAnswers := []model.OptionKey{model.OptionB, model.OptionD, model.OptionA}
	for i, q := range qs {
		if q.Answer != wantAnswers[i] {
			t.Errorf("q%d answer = %q, want %q", i+1, q.Answer, wantAnswers[i])
		}
		if len(q.Options) != 4 {
			t.Errorf("q%d options = %v", i+1, q.Options)
		}
	}
	if qs[0].Options[model.OptionB] != "x" || qs[1].Options[model.OptionD] != "4" {
		t.Error("options not normalized")
	}
}

func TestGenerateServerFailures(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		body       map[string]string
		wantEmpty  bool
		wantMsg    string
		wantStatus int
	}{
		{name: "no questions", code: 400, body: map[string]string{"status": "failed", "message": NoQuestionsMessage}, wantEmpty: true},
		{name: "failed", code: 400, body: map[string]string{"status": "failed", "message": "vision model unavailable"}, wantMsg: "vision model unavailable"},
		{name: "server error", code: 500, body: map[string]string{"message": "boom"}, wantStatus: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := func(w http.ResponseWriter) { respond(w, tt.code, tt.body) }
			gw, _, _ := jobServer(t, []func(http.ResponseWriter){status})
			g := NewGenerator(gw, Options{Interval: time.Millisecond})
			_, err := g.Generate(context.Background(), []string{"a.png"}, Callbacks{})

			switch {
			case tt.wantMsg != "":
				var fe *FailedError
				if !errors.As(err, &fe) || fe.Message != tt.wantMsg {
					t.Fatalf("expected FailedError %q, got %v", tt.wantMsg, err)
				}
			case tt.wantEmpty:
				if !errors.Is(err, ErrNoQuestionsExtracted) {
					t.Fatalf("expected ErrNoQuestionsExtracted, got %v", err)
				}
			default:
				var he *gateway.HTTPError
				if !errors.As(err, &he) || he.StatusCode != tt.wantStatus {
					t.Fatalf("expected %d HTTPError, got %v", tt.wantStatus, err)
				}
			}
		})
	}
}

func TestGenerateRequiresFilenames(t *testing.T) {
	g := NewGenerator(nil, Options{})
	if _, err := g.Generate(context.Background(), nil, Callbacks{}); !errors.Is(err, ErrNoFilenames) {
		t.Fatalf("expected ErrNoFilenames, got %v", err)
	}
}

func TestStatusUnknown(t *testing.T) {
	if _, err := (statusResponse{Status: "paused"}).state(); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
