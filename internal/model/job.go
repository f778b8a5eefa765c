package model

// JobStatus is the server-reported state of a generation job.
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// JobState is one of Processing, Completed or Failed.
type JobState interface {
	Status() JobStatus
	// Terminal reports whether polling stops at this state.
	Terminal() bool
}

// Processing means the job is still running. Total stays 0 until the server
// knows how many questions it will produce.
type Processing struct {
	Completed int
	Total     int
	Message   string
}

func (Processing) Status() JobStatus { return JobProcessing }
func (Processing) Terminal() bool    { return false }

// Completed carries the generated questions in server order.
type Completed struct {
	Questions []Question
}

func (Completed) Status() JobStatus { return JobCompleted }
func (Completed) Terminal() bool    { return true }

// Failed carries the server's failure message, possibly empty.
type Failed struct {
	Message string
}

func (Failed) Status() JobStatus { return JobFailed }
func (Failed) Terminal() bool    { return true }

// Progress is reported to callers while a job is processing.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}
