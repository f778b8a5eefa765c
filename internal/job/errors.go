package job

import (
	"errors"

	"github.com/pavelanni/aceplus/internal/gateway"
)

// NoQuestionsMessage is the server's wording for an empty generation result.
const NoQuestionsMessage = "No questions could be extracted from the images"

// FallbackFailureMessage is used when a failed job carries no message.
const FallbackFailureMessage = "Failed to process images"

var (
	// ErrNoQuestionsExtracted is the single outcome for every empty result,
	// whether the server reported it as completed or as failed.
	ErrNoQuestionsExtracted = errors.New("no questions could be extracted from the images")
	ErrAlreadyPolling       = errors.New("job is already being polled")
	ErrJobDeadline          = errors.New("job did not finish in time")
	ErrNoFilenames          = errors.New("no uploaded images to generate from")
)

// FailedError is a job that the server reported as failed.
type FailedError struct {
	JobID   string
	Message string
}

func (e *FailedError) Error() string { return e.Message }

// isNoQuestions reports whether err carries the server's empty-result message.
func isNoQuestions(err error) bool {
	var he *gateway.HTTPError
	if errors.As(err, &he) {
		return he.Message == NoQuestionsMessage
	}
	return false
}
