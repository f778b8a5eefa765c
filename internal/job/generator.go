package job

import (
	"context"

	"github.com/pavelanni/aceplus/internal/gateway"
	"github.com/pavelanni/aceplus/internal/model"
)

// StartingMessage is reported before the job is submitted.
const StartingMessage = "Starting image processing..."

// Generator submits a job and polls it to completion.
type Generator struct {
	submitter *Submitter
	poller    *Poller
}

// NewGenerator wires a Submitter and a Poller over the same gateway.
func NewGenerator(gw *gateway.Client, opts Options) *Generator {
	return &Generator{
		submitter: NewSubmitter(gw),
		poller:    NewPoller(NewStatusClient(gw), opts),
	}
}

// Generate turns uploaded images into questions.
func (g *Generator) Generate(ctx context.Context, filenames []string, cb Callbacks) ([]model.Question, error) {
	if len(filenames) == 0 {
		return nil, ErrNoFilenames
	}
	cb.message(StartingMessage)
	jobID, err := g.submitter.Start(ctx, filenames)
	if err != nil {
		return nil, err
	}
	return g.poller.Poll(ctx, jobID, cb)
}
