package model

import (
	"strings"
	"time"
)

// JobState is the lifecycle state of a clip job
type JobState string

const (
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateDone       JobState = "done"
	JobStateFailed     JobState = "failed"
)

// MessageNoMatch is recorded on jobs that finished without any matching frames
const MessageNoMatch = "no matching clips found"

var transitions = map[JobState][]JobState{
	JobStateQueued:     {JobStateProcessing, JobStateFailed},
	JobStateProcessing: {JobStateProcessing, JobStateDone, JobStateFailed},
}

// Valid reports whether s is a known state
func (s JobState) Valid() bool {
	switch s {
	case JobStateQueued, JobStateProcessing, JobStateDone, JobStateFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s
func (s JobState) Terminal() bool {
	return s == JobStateDone || s == JobStateFailed
}

// CanTransition reports whether a job may move from one state to another
func CanTransition(from, to JobState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job is the persisted status record of a clip job
type Job struct {
	ID             string     `json:"id"`
	State          JobState   `json:"state"`
	Progress       int        `json:"progress"`
	OutputLocation *string    `json:"outputLocation,omitempty"`
	Error          *string    `json:"error,omitempty"`
	ErrorCode      string     `json:"errorCode,omitempty"`
	Message        string     `json:"message,omitempty"`
	Segments       []Segment  `json:"segments,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// Segment is a half-open time range [Start, End) in seconds
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// ClipTask is the unit of work handed to the job queue
type ClipTask struct {
	JobID      string `json:"jobId"`
	VideoPath  string `json:"videoPath"`
	ImagePath  string `json:"imagePath"`
	OutputPath string `json:"outputPath"`
}

// ValidJobID reports whether id is safe to use as a record key and path element
func ValidJobID(id string) bool {
	if id == "" || len(id) > 128 || strings.Contains(id, "..") {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
