package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clipsniper/api/internal/facematch"
	"github.com/clipsniper/api/internal/model"
	"github.com/clipsniper/api/internal/queue"
	"github.com/clipsniper/api/internal/segment"
	"github.com/clipsniper/api/internal/storage"
	"github.com/clipsniper/api/internal/store"
)

// terminalWriteTimeout bounds the final status write after the job context
// has expired.
const terminalWriteTimeout = 10 * time.Second

var errInvalidTransition = errors.New("invalid state transition")

// FaceMatcher finds the timestamps of frames showing the reference face
type FaceMatcher interface {
	Match(ctx context.Context, videoPath, imagePath string, progress facematch.ProgressFunc) (facematch.Result, error)
}

// VideoAssembler writes the given segments of a video to outputPath
type VideoAssembler interface {
	Assemble(ctx context.Context, videoPath string, segments []model.Segment, outputPath string, targetHeight int) error
}

// Notifier pushes job events to live subscribers
type Notifier interface {
	BroadcastProgress(jobID string, progress int, state model.JobState)
	BroadcastComplete(jobID string, result *model.StatusResponse)
	BroadcastError(jobID string, code, message string)
}

// Options tunes the pipeline
type Options struct {
	Retention          time.Duration
	MaxDuration        time.Duration
	TargetHeight       int
	MaxVideoSize       int64
	MaxImageSize       int64
	SegmentMaxGap      float64
	SegmentMinDuration float64
}

// SubmitInput carries the uploaded files of a new job
type SubmitInput struct {
	Video     io.Reader
	VideoName string
	Image     io.Reader
	ImageName string
}

// ClipService creates clip jobs, runs the pipeline for them and answers
// status queries.
type ClipService struct {
	store     store.StatusStore
	queue     queue.Queue
	workspace *storage.Workspace
	matcher   FaceMatcher
	assembler VideoAssembler
	publisher storage.Publisher
	notifier  Notifier
	opts      Options
}

func NewClipService(
	st store.StatusStore,
	q queue.Queue,
	ws *storage.Workspace,
	matcher FaceMatcher,
	assembler VideoAssembler,
	publisher storage.Publisher,
	notifier Notifier,
	opts Options,
) *ClipService {
	if opts.SegmentMaxGap == 0 {
		opts.SegmentMaxGap = segment.DefaultMaxGap
	}
	if opts.SegmentMinDuration == 0 {
		opts.SegmentMinDuration = segment.DefaultMinDuration
	}
	if opts.Retention == 0 {
		opts.Retention = time.Hour
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ClipService{
		store:     st,
		queue:     q,
		workspace: ws,
		matcher:   matcher,
		assembler: assembler,
		publisher: publisher,
		notifier:  notifier,
		opts:      opts,
	}
}

// Submit stores the uploads, records a queued job and hands it to the queue.
// It returns as soon as the job is queued.
func (s *ClipService) Submit(ctx context.Context, in SubmitInput) (*model.SubmitResponse, error) {
	jobID := uuid.New().String()

	videoPath, err := s.workspace.SaveUpload(jobID, "video", in.VideoName, in.Video, s.limit(s.opts.MaxVideoSize))
	if err != nil {
		s.workspace.RemoveJobDir(jobID)
		return nil, fmt.Errorf("failed to save video: %w", err)
	}
	imagePath, err := s.workspace.SaveUpload(jobID, "image", in.ImageName, in.Image, s.limit(s.opts.MaxImageSize))
	if err != nil {
		s.workspace.RemoveJobDir(jobID)
		return nil, fmt.Errorf("failed to save image: %w", err)
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:        jobID,
		State:     model.JobStateQueued,
		CreatedAt: now,
	}
	if err := s.store.Put(ctx, job); err != nil {
		s.workspace.RemoveJobDir(jobID)
		return nil, fmt.Errorf("%w: failed to save job: %w", model.ErrStorage, err)
	}

	task := model.ClipTask{
		JobID:      jobID,
		VideoPath:  videoPath,
		ImagePath:  imagePath,
		OutputPath: s.workspace.OutputPath(jobID),
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		if derr := s.store.Delete(ctx, jobID); derr != nil {
			log.Printf("Failed to delete rejected job %s: %v", jobID, derr)
		}
		s.workspace.RemoveJobDir(jobID)
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	log.Printf("Clip job %s queued", jobID)
	return &model.SubmitResponse{
		JobID:     jobID,
		State:     model.JobStateQueued,
		CreatedAt: now,
	}, nil
}

func (s *ClipService) limit(n int64) int64 {
	if n <= 0 {
		return 1 << 62
	}
	return n
}

// Status returns the current record of a job
func (s *ClipService) Status(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	switch {
	case err == nil:
		return job, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, model.ErrUnknownJob
	default:
		return nil, fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
}

// Process runs the matching pipeline for one queued job and records the
// outcome. Pipeline failures end in the failed state and are not returned;
// an error is returned only when the outcome could not be recorded.
func (s *ClipService) Process(ctx context.Context, task model.ClipTask) error {
	job, err := s.store.Get(ctx, task.JobID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Printf("Clip job %s no longer exists, skipping", task.JobID)
		s.workspace.RemoveJobDir(task.JobID)
		return nil
	case errors.Is(err, store.ErrCorrupt):
		log.Printf("Clip job %s has an unreadable record, rebuilding", task.JobID)
		job = &model.Job{ID: task.JobID, State: model.JobStateQueued, CreatedAt: time.Now().UTC()}
	case err != nil:
		return fmt.Errorf("failed to load job: %w", err)
	}
	if !model.CanTransition(job.State, model.JobStateProcessing) {
		log.Printf("Clip job %s already %s, skipping", job.ID, job.State)
		return nil
	}

	if s.opts.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.MaxDuration)
		defer cancel()
	}

	started := time.Now().UTC()
	job.Progress = 0
	job.StartedAt = &started
	if err := s.advance(ctx, job, model.JobStateProcessing); errors.Is(err, errInvalidTransition) {
		log.Printf("Clip job %s: %v, skipping", job.ID, err)
		return nil
	} else if err != nil {
		log.Printf("Failed to mark job %s processing: %v", job.ID, err)
	}
	s.notifier.BroadcastProgress(job.ID, 0, job.State)
	log.Printf("Starting clip job: %s", job.ID)

	output, message, runErr := s.runSafely(ctx, job, task)
	return s.finish(ctx, job, task, output, message, runErr)
}

// runSafely converts a panic anywhere in the pipeline into an error.
func (s *ClipService) runSafely(ctx context.Context, job *model.Job, task model.ClipTask) (output *string, message string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return s.run(ctx, job, task)
}

func (s *ClipService) run(ctx context.Context, job *model.Job, task model.ClipTask) (*string, string, error) {
	res, err := s.matcher.Match(ctx, task.VideoPath, task.ImagePath, func(p int) {
		s.reportProgress(ctx, job, p)
	})
	if err != nil {
		return nil, "", err
	}

	segments := segment.Build(res.Timestamps, res.FPS, s.opts.SegmentMaxGap, s.opts.SegmentMinDuration)
	job.Segments = segments
	log.Printf("Clip job %s: %d matched frames, %d segments", job.ID, len(res.Timestamps), len(segments))

	if len(segments) == 0 {
		return nil, model.MessageNoMatch, nil
	}

	err = s.assembler.Assemble(ctx, task.VideoPath, segments, task.OutputPath, s.opts.TargetHeight)
	if errors.Is(err, model.ErrNoMatchingContent) {
		return nil, model.MessageNoMatch, nil
	}
	if err != nil {
		return nil, "", err
	}

	url, err := s.publisher.Publish(ctx, job.ID, task.OutputPath)
	if err != nil {
		return nil, "", err
	}
	return &url, "", nil
}

// reportProgress records monotonic progress below 100 while processing.
func (s *ClipService) reportProgress(ctx context.Context, job *model.Job, p int) {
	p = min(p, 99)
	if p <= job.Progress {
		return
	}
	job.Progress = p
	if err := s.advance(ctx, job, model.JobStateProcessing); errors.Is(err, errInvalidTransition) {
		log.Printf("Clip job %s: %v, progress not recorded", job.ID, err)
		return
	} else if err != nil {
		log.Printf("Failed to update progress of job %s: %v", job.ID, err)
	}
	s.notifier.BroadcastProgress(job.ID, p, job.State)
}

// advance stores job in state next if the stored record allows that move.
// A missing or unreadable record is replaced. The check and the write are
// not atomic; each job has a single worker.
func (s *ClipService) advance(ctx context.Context, job *model.Job, next model.JobState) error {
	cur, err := s.store.Get(ctx, job.ID)
	switch {
	case err == nil:
		if !model.CanTransition(cur.State, next) {
			return fmt.Errorf("%w: %s -> %s", errInvalidTransition, cur.State, next)
		}
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrCorrupt):
	default:
		return err
	}
	job.State = next
	return s.store.Put(ctx, job)
}

func (s *ClipService) finish(ctx context.Context, job *model.Job, task model.ClipTask, output *string, message string, runErr error) error {
	// The job context may already be done; the outcome must still land.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	completed := time.Now().UTC()
	job.CompletedAt = &completed

	next := model.JobStateDone
	if runErr != nil {
		msg := runErr.Error()
		next = model.JobStateFailed
		job.Error = &msg
		job.ErrorCode = model.ErrorCode(runErr)
		job.OutputLocation = nil
	} else {
		job.Progress = 100
		job.OutputLocation = output
		job.Message = message
	}

	putErr := s.advance(wctx, job, next)
	if errors.Is(putErr, errInvalidTransition) {
		// The stored outcome wins; its files belong to it.
		log.Printf("Clip job %s: %v, result discarded", job.ID, putErr)
		return nil
	}
	if putErr != nil {
		log.Printf("Failed to save final state of job %s: %v", job.ID, putErr)
	}

	if runErr != nil {
		if err := s.workspace.RemoveOutput(job.ID); err != nil {
			log.Printf("Failed to remove partial output of job %s: %v", job.ID, err)
		}
		log.Printf("Clip job %s failed: %v", job.ID, runErr)
	} else {
		log.Printf("Clip job %s completed", job.ID)
	}

	if err := s.workspace.RemoveJobDir(job.ID); err != nil {
		log.Printf("Failed to remove inputs of job %s: %v", job.ID, err)
	}

	if job.State == model.JobStateFailed {
		s.notifier.BroadcastError(job.ID, job.ErrorCode, *job.Error)
	} else {
		s.notifier.BroadcastComplete(job.ID, model.NewStatusResponse(job))
	}

	if err := s.queue.ScheduleCleanup(wctx, job.ID, s.opts.Retention); err != nil {
		log.Printf("Failed to schedule cleanup of job %s: %v", job.ID, err)
	}

	if putErr != nil {
		return fmt.Errorf("%w: failed to save final state: %w", model.ErrStorage, putErr)
	}
	return nil
}

// Cleanup removes everything a job left behind, including its record.
// Removing an already cleaned job is not an error.
func (s *ClipService) Cleanup(ctx context.Context, jobID string) error {
	var errs []error
	if err := s.workspace.RemoveOutput(jobID); err != nil {
		errs = append(errs, err)
	}
	if err := s.publisher.Unpublish(ctx, jobID); err != nil {
		errs = append(errs, err)
	}
	if err := s.workspace.RemoveJobDir(jobID); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Delete(ctx, jobID); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		log.Printf("Cleaned up clip job %s", jobID)
	}
	return errors.Join(errs...)
}

// RecoverInterrupted fails jobs left queued or processing by a previous run
// of an in-process queue and schedules their cleanup.
func (s *ClipService) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrStorage, err)
	}

	recovered := 0
	for _, job := range jobs {
		if !model.CanTransition(job.State, model.JobStateFailed) {
			continue
		}
		msg := "job interrupted by server restart"
		now := time.Now().UTC()
		job.Error = &msg
		job.ErrorCode = model.CodeCanceled
		job.CompletedAt = &now
		if err := s.advance(ctx, job, model.JobStateFailed); err != nil {
			log.Printf("Failed to recover job %s: %v", job.ID, err)
			continue
		}
		s.workspace.RemoveJobDir(job.ID)
		if err := s.queue.ScheduleCleanup(ctx, job.ID, s.opts.Retention); err != nil {
			log.Printf("Failed to schedule cleanup of job %s: %v", job.ID, err)
		}
		recovered++
	}
	return recovered, nil
}

type nopNotifier struct{}

func (nopNotifier) BroadcastProgress(string, int, model.JobState) {}
func (nopNotifier) BroadcastComplete(string, *model.StatusResponse) {}
func (nopNotifier) BroadcastError(string, string, string) {}
