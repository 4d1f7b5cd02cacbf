package domain

import (
	"context"
	"time"
)

type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// transitions is keyed on (current, requested).
var transitions = map[JobStatus]map[JobStatus]bool{
	JobPending:    {JobProcessing: true, JobFailed: true},
	JobProcessing: {JobCompleted: true, JobFailed: true},
}

func CanTransition(from, to JobStatus) bool {
	return transitions[from][to]
}

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Job struct {
	ID           string          `json:"job_id"`
	Status       JobStatus       `json:"status"`
	SourceID     string          `json:"source_id,omitempty"`
	LanguageHint string          `json:"language,omitempty"`
	TextLength   int             `json:"text_length"`
	Options      AnalysisOptions `json:"options"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	FailedAt     *time.Time      `json:"failed_at,omitempty"`
	Result       *AnalysisResult `json:"result,omitempty"`
	Error        *JobError       `json:"error,omitempty"`
}

// EstimatedCompletion is a rough hint for submitters: 30s plus a second per 1000 characters.
func (j *Job) EstimatedCompletion() time.Time {
	return j.CreatedAt.Add(30*time.Second + time.Duration(j.TextLength/1000)*time.Second)
}

// JobQueue triggers out-of-band processing of submitted jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
	// Dequeue blocks until a job id is available or ctx is done.
	Dequeue(ctx context.Context) (string, error)
}
