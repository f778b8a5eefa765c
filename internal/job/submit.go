// Package job starts server-side question generation and follows it to a
// terminal state.
package job

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pavelanni/aceplus/internal/gateway"
)

const generateEndpoint = "api/generate_from_images"

// Submitter starts generation jobs.
type Submitter struct {
	gw *gateway.Client
}

// NewSubmitter returns a Submitter using gw.
func NewSubmitter(gw *gateway.Client) *Submitter {
	return &Submitter{gw: gw}
}

type generateRequest struct {
	Filenames []string `json:"filenames"`
}

type generateResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// Start asks the server to generate questions from previously uploaded
// images and returns the job id. Gateway errors are returned unchanged.
func (s *Submitter) Start(ctx context.Context, filenames []string) (string, error) {
	if len(filenames) == 0 {
		return "", ErrNoFilenames
	}
	var resp generateResponse
	if err := s.gw.Post(ctx, generateEndpoint, generateRequest{Filenames: filenames}, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", errors.New("server returned no job id")
	}
	slog.Info("generation job started", "job_id", resp.JobID, "images", len(filenames))
	return resp.JobID, nil
}
