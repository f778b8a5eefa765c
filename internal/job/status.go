package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pavelanni/aceplus/internal/gateway"
	"github.com/pavelanni/aceplus/internal/model"
)

const statusEndpoint = "api/check_job_status/"

// StatusSource reports the current state of a job.
type StatusSource interface {
	Status(ctx context.Context, jobID string) (model.JobState, error)
}

// StatusClient reads job status from the backend.
type StatusClient struct {
	gw *gateway.Client
}

// NewStatusClient returns a StatusClient using gw.
func NewStatusClient(gw *gateway.Client) *StatusClient {
	return &StatusClient{gw: gw}
}

type statusResponse struct {
	Status    model.JobStatus  `json:"status"`
	Total     int              `json:"total"`
	Completed int              `json:"completed"`
	Questions []model.Question `json:"questions"`
	Message   string           `json:"message"`
}

func (r statusResponse) state() (model.JobState, error) {
	switch r.Status {
	case model.JobProcessing:
		return model.Processing{Completed: r.Completed, Total: r.Total, Message: r.Message}, nil
	case model.JobCompleted:
		return model.Completed{Questions: r.Questions}, nil
	case model.JobFailed:
		return model.Failed{Message: r.Message}, nil
	}
	return nil, fmt.Errorf("unknown job status %q", r.Status)
}

// Status fetches one status report. The backend answers a failed job with
// 400 and the failure message, which is returned as a Failed state.
func (c *StatusClient) Status(ctx context.Context, jobID string) (model.JobState, error) {
	var resp statusResponse
	err := c.gw.Get(ctx, statusEndpoint+url.PathEscape(jobID), &resp)
	if err != nil {
		var he *gateway.HTTPError
		if errors.As(err, &he) && he.StatusCode == http.StatusBadRequest {
			return model.Failed{Message: he.Message}, nil
		}
		return nil, err
	}
	return resp.state()
}
