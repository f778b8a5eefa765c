package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/aceplus/internal/model"
)

const (
	DefaultInterval = time.Second
	// DefaultMaxDuration is what the CLI uses; Options.MaxDuration 0 polls forever.
	DefaultMaxDuration = 10 * time.Minute
)

// Callbacks receive updates while a job is processing. Both are optional and
// are called from the polling goroutine.
type Callbacks struct {
	// OnProgress is called only once the server knows the total.
	OnProgress func(model.Progress)
	// OnMessage is called when the job's status message changes.
	OnMessage func(string)
}

func (cb Callbacks) progress(p model.Progress) {
	if cb.OnProgress != nil {
		cb.OnProgress(p)
	}
}

func (cb Callbacks) message(m string) {
	if cb.OnMessage != nil {
		cb.OnMessage(m)
	}
}

// Options configure a Poller. A zero Interval means DefaultInterval and a
// zero MaxDuration polls until the job reaches a terminal state.
type Options struct {
	Interval    time.Duration
	MaxDuration time.Duration
}

// Poller drives jobs to a terminal state. Each job id is polled by at most one
// loop at a time; polls within a loop are strictly sequential.
type Poller struct {
	source      StatusSource
	interval    time.Duration
	maxDuration time.Duration

	mu     sync.Mutex
	active map[string]struct{}
}

// NewPoller returns a Poller reading status from source.
func NewPoller(source StatusSource, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Poller{
		source:      source,
		interval:    opts.Interval,
		maxDuration: opts.MaxDuration,
		active:      make(map[string]struct{}),
	}
}

// Poll blocks until the job completes, fails, exceeds the maximum duration or
// ctx is done. It returns the generated questions in server order.
func (p *Poller) Poll(ctx context.Context, jobID string, cb Callbacks) ([]model.Question, error) {
	if err := p.acquire(jobID); err != nil {
		return nil, err
	}
	defer p.release(jobID)
	return p.loop(ctx, jobID, cb)
}

// Run is a poll loop running in the background.
type Run struct {
	cancel    context.CancelFunc
	done      chan struct{}
	questions []model.Question
	err       error
}

// Start polls in a new goroutine. The returned Run can be cancelled at any time.
func (p *Poller) Start(ctx context.Context, jobID string, cb Callbacks) *Run {
	ctx, cancel := context.WithCancel(ctx)
	r := &Run{cancel: cancel, done: make(chan struct{})}
	if err := p.acquire(jobID); err != nil {
		r.err = err
		cancel()
		close(r.done)
		return r
	}
	go func() {
		defer close(r.done)
		defer cancel()
		defer p.release(jobID)
		r.questions, r.err = p.loop(ctx, jobID, cb)
	}()
	return r
}

// Cancel stops the loop. Wait then returns context.Canceled.
func (r *Run) Cancel() { r.cancel() }

// Done is closed once the loop has returned.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the loop returns.
func (r *Run) Wait() ([]model.Question, error) {
	<-r.done
	return r.questions, r.err
}

func (p *Poller) acquire(jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[jobID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyPolling, jobID)
	}
	p.active[jobID] = struct{}{}
	return nil
}

func (p *Poller) release(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, jobID)
}

func (p *Poller) loop(ctx context.Context, jobID string, cb Callbacks) ([]model.Question, error) {
	if p.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, p.maxDuration, ErrJobDeadline)
		defer cancel()
	}

	start := time.Now()
	lastMessage := ""
	polls := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, p.stopped(ctx, jobID, polls)
		case <-timer.C:
		}

		polls++
		state, err := p.source.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, p.stopped(ctx, jobID, polls)
			}
			if isNoQuestions(err) {
				return nil, ErrNoQuestionsExtracted
			}
			slog.Warn("job poll failed", "job_id", jobID, "polls", polls, "error", err)
			return nil, err
		}
		if state == nil {
			return nil, fmt.Errorf("job %s: status source returned no state", jobID)
		}
		slog.Debug("job poll", "job_id", jobID, "status", state.Status())

		if !state.Terminal() {
			if s, ok := state.(model.Processing); ok {
				if s.Message != "" && s.Message != lastMessage {
					lastMessage = s.Message
					cb.message(s.Message)
				}
				if s.Total > 0 {
					cb.progress(model.Progress{Completed: min(max(s.Completed, 0), s.Total), Total: s.Total})
				}
			}
			timer.Reset(p.interval)
			continue
		}

		switch s := state.(type) {
		case model.Completed:
			if len(s.Questions) == 0 {
				slog.Warn("job completed without questions", "job_id", jobID)
				return nil, ErrNoQuestionsExtracted
			}
			slog.Info("job completed", "job_id", jobID, "questions", len(s.Questions),
				"polls", polls, "duration", time.Since(start))
			return s.Questions, nil
		case model.Failed:
			msg := s.Message
			if msg == NoQuestionsMessage {
				slog.Warn("job produced no questions", "job_id", jobID)
				return nil, ErrNoQuestionsExtracted
			}
			if msg == "" {
				msg = FallbackFailureMessage
			}
			slog.Warn("job failed", "job_id", jobID, "message", msg)
			return nil, &FailedError{JobID: jobID, Message: msg}
		}
		return nil, fmt.Errorf("unexpected job state %T", state)
	}
}

func (p *Poller) stopped(ctx context.Context, jobID string, polls int) error {
	err := context.Cause(ctx)
	slog.Info("job polling stopped", "job_id", jobID, "polls", polls, "reason", err)
	return err
}
