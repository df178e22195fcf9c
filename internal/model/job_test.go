package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobState
		want     bool
	}{
		{JobStateQueued, JobStateProcessing, true},
		{JobStateQueued, JobStateFailed, true},
		{JobStateQueued, JobStateDone, false},
		{JobStateProcessing, JobStateProcessing, true},
		{JobStateProcessing, JobStateDone, true},
		{JobStateProcessing, JobStateFailed, true},
		{JobStateDone, JobStateProcessing, false},
		{JobStateFailed, JobStateQueued, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidJobID(t *testing.T) {
	valid := []string{"0b3c9d2e-8f1a-4c55-9e77-1a2b3c4d5e6f", "job_1"}
	invalid := []string{"", "../etc", "a/b", "a b", "x..y"}

	for _, id := range valid {
		if !ValidJobID(id) {
			t.Errorf("expected %q to be valid", id)
		}
	}
	for _, id := range invalid {
		if ValidJobID(id) {
			t.Errorf("expected %q to be invalid", id)
		}
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("reference: %w", ErrNoFaceDetected), CodeNoFaceDetected},
		{fmt.Errorf("decode: %w", ErrInvalidImage), CodeInvalidImage},
		{fmt.Errorf("%w: frame 12", ErrVideoDecode), CodeVideoDecode},
		{fmt.Errorf("%w: cut: %w", ErrAssembly, context.DeadlineExceeded), CodeTimeout},
		{fmt.Errorf("%w: concat", ErrAssembly), CodeAssembly},
		{errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestNewStatusResponse(t *testing.T) {
	url := "http://localhost/media/output/a.mp4"
	msg := "ffmpeg exited"

	done := NewStatusResponse(&Job{ID: "a", State: JobStateDone, Progress: 100, OutputLocation: &url})
	if !done.Done || done.OutputURL == nil || *done.OutputURL != url {
		t.Errorf("unexpected done response: %+v", done)
	}

	empty := NewStatusResponse(&Job{ID: "b", State: JobStateDone, Progress: 100, Message: MessageNoMatch})
	if empty.Done || empty.Message != MessageNoMatch {
		t.Errorf("unexpected no-match response: %+v", empty)
	}

	failed := NewStatusResponse(&Job{ID: "c", State: JobStateFailed, Error: &msg, ErrorCode: CodeAssembly})
	if failed.Done || failed.Error != msg || failed.ErrorCode != CodeAssembly {
		t.Errorf("unexpected failed response: %+v", failed)
	}

	running := NewStatusResponse(&Job{ID: "d", State: JobStateProcessing, Progress: 40})
	if running.Done || running.Progress != 40 {
		t.Errorf("unexpected running response: %+v", running)
	}
}
