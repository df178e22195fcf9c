package model

import (
	"context"
	"errors"
)

var (
	ErrInvalidImage      = errors.New("reference image could not be decoded")
	ErrNoFaceDetected    = errors.New("no face found in reference image")
	ErrVideoDecode       = errors.New("video could not be decoded")
	ErrNoMatchingContent = errors.New("no matching content to assemble")
	ErrAssembly          = errors.New("video assembly failed")
	ErrUnknownJob        = errors.New("job not found")
	ErrStorage           = errors.New("status storage error")
)

// Error codes reported on failed jobs
const (
	CodeInvalidImage   = "INVALID_IMAGE"
	CodeNoFaceDetected = "NO_FACE_DETECTED"
	CodeVideoDecode    = "VIDEO_DECODE_ERROR"
	CodeAssembly       = "ASSEMBLY_ERROR"
	CodeTimeout        = "TIMEOUT"
	CodeCanceled       = "CANCELED"
	CodeInternal       = "INTERNAL_ERROR"
)

// ErrorCode maps a pipeline error to a stable machine-readable code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidImage):
		return CodeInvalidImage
	case errors.Is(err, ErrNoFaceDetected):
		return CodeNoFaceDetected
	case errors.Is(err, ErrVideoDecode):
		return CodeVideoDecode
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, ErrAssembly):
		return CodeAssembly
	default:
		return CodeInternal
	}
}
