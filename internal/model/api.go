package model

import "time"

// SubmitForm describes the uploaded parts of a submit request
type SubmitForm struct {
	VideoName string `validate:"required"`
	VideoSize int64  `validate:"gt=0"`
	ImageName string `validate:"required"`
	ImageSize int64  `validate:"gt=0"`
}

// SubmitResponse is returned once a job has been queued
type SubmitResponse struct {
	JobID     string    `json:"jobId"`
	State     JobState  `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatusResponse is the client-facing view of a job
type StatusResponse struct {
	JobID     string   `json:"jobId"`
	State     JobState `json:"state,omitempty"`
	Done      bool     `json:"done"`
	Progress  int      `json:"progress"`
	OutputURL *string  `json:"outputUrl,omitempty"`
	Message   string   `json:"message,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorCode string   `json:"errorCode,omitempty"`
}

// NewStatusResponse builds the polling view of a job. A job that finished
// without output is reported as not done with an explanatory message.
func NewStatusResponse(job *Job) *StatusResponse {
	resp := &StatusResponse{
		JobID:    job.ID,
		State:    job.State,
		Progress: job.Progress,
		Message:  job.Message,
	}
	switch job.State {
	case JobStateDone:
		if job.OutputLocation != nil {
			resp.Done = true
			resp.OutputURL = job.OutputLocation
		}
	case JobStateFailed:
		if job.Error != nil {
			resp.Error = *job.Error
		}
		resp.ErrorCode = job.ErrorCode
	}
	return resp
}
