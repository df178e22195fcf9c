package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// CommandResult is the captured outcome of a finished process.
type CommandResult struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// Stream is a running process whose stdout is read incrementally.
type Stream interface {
	io.Reader
	// Wait blocks until the process exits and reports a non-zero exit.
	Wait() error
	// Close stops the process and releases its resources.
	Close() error
}

// CommandRunner abstracts process execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
	Stream(ctx context.Context, name string, args ...string) (Stream, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes one command and captures stdout, stderr and exit code.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(result.Stderr))
	}
	return result, nil
}

// Stream starts a command and returns its stdout.
func (ExecRunner) Stream(ctx context.Context, name string, args ...string) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, name, args...)

	s := &execStream{cmd: cmd, cancel: cancel, name: name}
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	s.stdout = stdout
	return s, nil
}

type execStream struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	name   string
	stdout io.Reader
	stderr bytes.Buffer

	once    sync.Once
	waitErr error
}

func (s *execStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *execStream) Wait() error {
	s.once.Do(func() {
		if err := s.cmd.Wait(); err != nil {
			s.waitErr = fmt.Errorf("%s: %w: %s", s.name, err, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.waitErr
}

func (s *execStream) Close() error {
	s.cancel()
	_ = s.Wait()
	return nil
}
