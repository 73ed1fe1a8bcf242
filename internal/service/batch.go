package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/config"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/generation"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/logger"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/quality"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/repository"
)

// ErrJobNotResumable is returned when Resume is called on a job whose
// checkpoint shows no remaining work.
var ErrJobNotResumable = errors.New("job has no remaining work to resume")

// ErrJobNotCancellable is returned when Cancel targets a job that is not
// currently running.
var ErrJobNotCancellable = errors.New("job is not running")

// StartBatchRequest describes a batch generation job to submit.
type StartBatchRequest struct {
	Name          string
	Tier          domain.TierType
	Items         []BatchItemSpec
	Concurrency   int
	ErrorHandling domain.ErrorHandlingMode
}

// BatchItemSpec is one parameter set within a batch request.
type BatchItemSpec struct {
	Topic      string
	TemplateID string
	Parameters map[string]interface{}
}

// jobHandle tracks one running job so it can be cancelled between items.
type jobHandle struct {
	cancel context.CancelFunc

	mu     sync.Mutex
	reason string
}

func (h *jobHandle) cancelWith(reason string) {
	h.mu.Lock()
	h.reason = reason
	h.mu.Unlock()
	h.cancel()
}

func (h *jobHandle) cancelReason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

// itemResult flows from workers to the collector. A result is only sent
// after the checkpoint write for the item has committed.
type itemResult struct {
	itemID    string
	succeeded bool
	skipped   bool  // claim lost to another worker, not counted
	fatal     error // configuration error, fails the whole job
	terminal  bool  // terminal item failure, triggers stop mode
}

// BatchService runs batch generation jobs: it partitions requests into
// items, drives a bounded worker pool, and checkpoints every item outcome
// before updating job counters.
type BatchService struct {
	jobs          *repository.BatchJobRepository
	checkpoints   *repository.CheckpointRepository
	conversations *repository.ConversationRepository
	templates     *repository.TemplateRepository
	generator     generation.Generator
	scorer        *quality.Scorer
	cfg           *config.BatchConfig

	mu      sync.Mutex
	running map[string]*jobHandle
	wg      sync.WaitGroup
}

// NewBatchService creates a BatchService.
func NewBatchService(
	jobs *repository.BatchJobRepository,
	checkpoints *repository.CheckpointRepository,
	conversations *repository.ConversationRepository,
	templates *repository.TemplateRepository,
	generator generation.Generator,
	scorer *quality.Scorer,
	cfg *config.BatchConfig,
) *BatchService {
	return &BatchService{
		jobs:          jobs,
		checkpoints:   checkpoints,
		conversations: conversations,
		templates:     templates,
		generator:     generator,
		scorer:        scorer,
		cfg:           cfg,
		running:       make(map[string]*jobHandle),
	}
}

// StartBatch validates and persists a new job with its items and
// checkpoint, then launches background processing. Items get stable
// positions in request order; position is the resume cursor.
func (s *BatchService) StartBatch(ctx context.Context, req *StartBatchRequest) (*domain.BatchJob, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("batch request must contain at least one item")
	}
	switch req.Tier {
	case domain.TierTemplate, domain.TierScenario, domain.TierEdgeCase:
	default:
		return nil, fmt.Errorf("unknown tier %q", req.Tier)
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = s.cfg.Workers
	}
	mode := req.ErrorHandling
	if mode == "" {
		mode = domain.ErrorHandlingMode(s.cfg.ErrorHandling)
	}
	if mode != domain.ErrorHandlingContinue && mode != domain.ErrorHandlingStop {
		return nil, fmt.Errorf("unknown error handling mode %q", mode)
	}

	job := &domain.BatchJob{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Status:        domain.BatchJobStatusQueued,
		TotalItems:    len(req.Items),
		Concurrency:   concurrency,
		ErrorHandling: mode,
		CreatedAt:     time.Now(),
	}

	items := make([]domain.BatchItem, len(req.Items))
	for i, spec := range req.Items {
		items[i] = domain.BatchItem{
			ID:         uuid.New().String(),
			JobID:      job.ID,
			Position:   i,
			Topic:      spec.Topic,
			Tier:       req.Tier,
			TemplateID: spec.TemplateID,
			Parameters: spec.Parameters,
			Status:     domain.BatchItemStatusPending,
		}
	}

	if err := s.jobs.CreateJob(ctx, job, items); err != nil {
		return nil, fmt.Errorf("failed to create batch job: %w", err)
	}
	if _, err := s.checkpoints.Create(ctx, job.ID, job.TotalItems); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint: %w", err)
	}

	s.launch(job)
	return job, nil
}

// Resume restarts processing for an interrupted job. Remaining work is
// derived strictly from the checkpoint: only items absent from both id
// sets are reprocessed; counters are rebuilt from the checkpoint.
func (s *BatchService) Resume(ctx context.Context, jobID string) (*domain.BatchJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	_, alreadyRunning := s.running[jobID]
	s.mu.Unlock()
	if alreadyRunning {
		return nil, fmt.Errorf("job %s is already running", jobID)
	}

	cp, err := s.checkpoints.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	recorded := len(cp.CompletedItemIDs) + len(cp.FailedItemIDs)
	if recorded >= cp.TotalItems {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotResumable)
	}

	// Items that were in flight during the interruption have no
	// checkpoint record; put them back in the pending pool.
	if err := s.jobs.ResetProcessingItems(ctx, jobID); err != nil {
		return nil, fmt.Errorf("failed to reset in-flight items: %w", err)
	}

	// Counters are a cache of the checkpoint, rebuilt here and never
	// trusted across a restart.
	job.Status = domain.BatchJobStatusQueued
	job.SuccessfulItems = len(cp.CompletedItemIDs)
	job.FailedItems = len(cp.FailedItemIDs)
	job.CompletedItems = recorded
	job.FailureReason = ""
	job.CompletedAt = nil
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	s.launch(job)
	return job, nil
}

// Cancel stops a running job between items. In-flight items drain and
// their outcomes are checkpointed; the job is marked failed with the
// cancellation reason.
func (s *BatchService) Cancel(jobID, reason string) error {
	s.mu.Lock()
	handle, ok := s.running[jobID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ErrJobNotCancellable)
	}
	if reason == "" {
		reason = "cancelled by operator"
	}
	handle.cancelWith(reason)
	return nil
}

// JobStatus returns the job record together with progress derived from
// its checkpoint. If the checkpoint is already cleaned up (terminal
// success), progress is synthesized from the job counters.
func (s *BatchService) JobStatus(ctx context.Context, jobID string) (*domain.BatchJob, *domain.BatchProgress, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	progress, err := s.checkpoints.GetProgress(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrCheckpointNotFound) {
			progress = &domain.BatchProgress{
				TotalItems:         job.TotalItems,
				CompletedItems:     job.SuccessfulItems,
				FailedItems:        job.FailedItems,
				ProgressPercentage: 100,
			}
			return job, progress, nil
		}
		return nil, nil, err
	}
	return job, progress, nil
}

// Shutdown waits for all running jobs to drain.
func (s *BatchService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launch registers a job handle and starts background processing.
func (s *BatchService) launch(job *domain.BatchJob) {
	jobCtx, cancel := context.WithCancel(context.Background())
	handle := &jobHandle{cancel: cancel}

	s.mu.Lock()
	s.running[job.ID] = handle
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer func() {
			s.mu.Lock()
			delete(s.running, job.ID)
			s.mu.Unlock()
		}()
		s.run(jobCtx, job, handle)
	}()
}

// run drives one job to a terminal status.
func (s *BatchService) run(ctx context.Context, job *domain.BatchJob, handle *jobHandle) {
	ctx = logger.SetJobID(ctx, job.ID)
	ctx = logger.SetComponent(ctx, "batch-controller")

	now := time.Now()
	job.Status = domain.BatchJobStatusProcessing
	job.StartedAt = &now
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		logger.CtxError(ctx, "failed to mark job processing: %v", err)
		return
	}

	pending, err := s.pendingItems(ctx, job.ID)
	if err != nil {
		s.finalize(ctx, job, fmt.Sprintf("failed to load items: %v", err))
		return
	}

	logger.CtxInfo(ctx, "batch job started: %d pending of %d items, concurrency %d",
		len(pending), job.TotalItems, job.Concurrency)

	itemsChan := make(chan domain.BatchItem)
	resultsChan := make(chan itemResult)

	var workerWg sync.WaitGroup
	for w := 0; w < job.Concurrency; w++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for item := range itemsChan {
				resultsChan <- s.processItem(ctx, job, &item)
			}
		}()
	}

	// Dispatcher: stops between items on cancellation or stop-mode halt.
	go func() {
		defer close(itemsChan)
		for _, item := range pending {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case itemsChan <- item:
			}
		}
	}()

	go func() {
		workerWg.Wait()
		close(resultsChan)
	}()

	var fatalReason string
	for res := range resultsChan {
		if res.skipped {
			continue
		}
		if res.fatal != nil {
			if fatalReason == "" {
				fatalReason = res.fatal.Error()
			}
			handle.cancel()
			continue
		}

		// The checkpoint write already committed in the worker; the
		// counters below are a cache of it.
		if res.succeeded {
			job.SuccessfulItems++
		} else {
			job.FailedItems++
		}
		job.CompletedItems = job.SuccessfulItems + job.FailedItems
		if err := s.jobs.UpdateJob(ctx, job); err != nil {
			logger.CtxWarn(ctx, "failed to update job counters: %v", err)
		}

		if res.terminal && !res.succeeded && job.ErrorHandling == domain.ErrorHandlingStop {
			if fatalReason == "" {
				fatalReason = fmt.Sprintf("stopped on item failure (item %s)", res.itemID)
			}
			handle.cancel()
		}
	}

	if reason := handle.cancelReason(); reason != "" && fatalReason == "" {
		fatalReason = reason
	}
	s.finalize(ctx, job, fatalReason)
}

// pendingItems loads the items still owed work, in position order,
// filtered against the checkpoint's recorded sets.
func (s *BatchService) pendingItems(ctx context.Context, jobID string) ([]domain.BatchItem, error) {
	items, err := s.jobs.ListItems(ctx, jobID)
	if err != nil {
		return nil, err
	}
	cp, err := s.checkpoints.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	pending := make([]domain.BatchItem, 0, len(items))
	for _, item := range items {
		if item.Status == domain.BatchItemStatusPending && !cp.Recorded(item.ID) {
			pending = append(pending, item)
		}
	}
	return pending, nil
}

// finalize settles the job's terminal status. A non-empty failure reason
// marks the job failed; otherwise completion depends on every item being
// recorded. The checkpoint is cleaned up only after confirmed success.
func (s *BatchService) finalize(ctx context.Context, job *domain.BatchJob, failureReason string) {
	now := time.Now()
	job.CompletedAt = &now

	if failureReason != "" {
		job.Status = domain.BatchJobStatusFailed
		job.FailureReason = failureReason
		if err := s.jobs.UpdateJob(ctx, job); err != nil {
			logger.CtxError(ctx, "failed to mark job failed: %v", err)
		}
		logger.CtxWarn(ctx, "batch job failed: %s", failureReason)
		return
	}

	if job.CompletedItems < job.TotalItems {
		// Interrupted without an explicit reason (shutdown); leave the
		// checkpoint in place for resume.
		job.Status = domain.BatchJobStatusFailed
		job.FailureReason = "processing interrupted"
		if err := s.jobs.UpdateJob(ctx, job); err != nil {
			logger.CtxError(ctx, "failed to mark job interrupted: %v", err)
		}
		return
	}

	job.Status = domain.BatchJobStatusCompleted
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		logger.CtxError(ctx, "failed to mark job completed: %v", err)
		return
	}

	// Cleanup failure is non-fatal: an orphaned 100% checkpoint is
	// ignored by recovery detection.
	if err := s.checkpoints.Cleanup(ctx, job.ID); err != nil {
		logger.CtxWarn(ctx, "checkpoint cleanup failed: %v", err)
	}
	logger.CtxInfo(ctx, "batch job completed: %d succeeded, %d failed",
		job.SuccessfulItems, job.FailedItems)
}

// processItem takes one item through claim, generate, score, persist,
// and checkpoint. The returned result is sent only after the checkpoint
// write committed.
func (s *BatchService) processItem(ctx context.Context, job *domain.BatchJob, item *domain.BatchItem) itemResult {
	ctx = logger.WithField(ctx, logger.FieldPosition, item.Position)

	claimed, err := s.jobs.ClaimItem(ctx, item.ID)
	if err != nil {
		return s.failItem(ctx, job, item, fmt.Errorf("claim failed: %w", err), true)
	}
	if !claimed {
		// Another worker (or a previous run) owns this item.
		logger.CtxDebug(ctx, "item %s already claimed, skipping", item.ID)
		return itemResult{itemID: item.ID, skipped: true}
	}

	turns, genErr := s.generateWithRetry(ctx, item)
	if genErr != nil {
		if generation.Classify(genErr) == generation.KindConfiguration {
			return itemResult{itemID: item.ID, fatal: genErr}
		}
		return s.failItem(ctx, job, item, genErr, true)
	}

	conv, err := s.persistConversation(ctx, item, turns)
	if err != nil {
		return s.failItem(ctx, job, item, err, true)
	}

	if err := s.jobs.FinishItem(ctx, item.ID, domain.BatchItemStatusSucceeded, conv.ID, ""); err != nil {
		logger.CtxWarn(ctx, "failed to record item success: %v", err)
	}
	if err := s.checkpoints.RecordItemResult(ctx, job.ID, item.ID, true); err != nil {
		logger.CtxError(ctx, "checkpoint write failed for item %s: %v", item.ID, err)
		return itemResult{itemID: item.ID, fatal: fmt.Errorf("checkpoint write failed: %w", err)}
	}
	return itemResult{itemID: item.ID, succeeded: true}
}

// failItem records a terminal item failure in both the item row and the
// checkpoint.
func (s *BatchService) failItem(ctx context.Context, job *domain.BatchJob, item *domain.BatchItem, cause error, terminal bool) itemResult {
	logger.CtxWarn(ctx, "item %s failed: %v", item.ID, cause)
	if err := s.jobs.FinishItem(ctx, item.ID, domain.BatchItemStatusFailed, "", cause.Error()); err != nil {
		logger.CtxWarn(ctx, "failed to record item failure: %v", err)
	}
	if err := s.checkpoints.RecordItemResult(ctx, job.ID, item.ID, false); err != nil {
		logger.CtxError(ctx, "checkpoint write failed for item %s: %v", item.ID, err)
		return itemResult{itemID: item.ID, fatal: fmt.Errorf("checkpoint write failed: %w", err)}
	}
	return itemResult{itemID: item.ID, succeeded: false, terminal: terminal}
}

// generateWithRetry calls the generator under the per-item timeout,
// retrying retryable failures up to the configured count with a fixed
// backoff. Terminal and configuration errors return immediately.
func (s *BatchService) generateWithRetry(ctx context.Context, item *domain.BatchItem) ([]domain.Turn, error) {
	req := &generation.Request{
		Topic:      item.Topic,
		Tier:       item.Tier,
		Parameters: item.Parameters,
	}
	if item.TemplateID != "" {
		tpl, err := s.templates.GetByID(ctx, item.TemplateID)
		if err != nil {
			return nil, generation.NewConfigurationError("template %s not found: %v", item.TemplateID, err)
		}
		req.Template = tpl
	}

	attempts := 1 + s.cfg.RetryCount
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if s.cfg.ItemTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.cfg.ItemTimeout)
		}
		turns, err := s.generator.GenerateConversation(attemptCtx, req)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return turns, nil
		}
		lastErr = err

		switch generation.Classify(err) {
		case generation.KindRetryable:
			if attempt < attempts {
				logger.CtxDebug(ctx, "retryable failure on attempt %d/%d: %v", attempt, attempts, err)
				select {
				case <-time.After(s.cfg.RetryBackoff):
				case <-ctx.Done():
					return nil, lastErr
				}
				continue
			}
		default:
			return nil, err
		}
	}
	return nil, lastErr
}

// persistConversation scores the generated turns and stores the
// conversation. Auto-flagged conversations land in needs_revision
// instead of pending_review.
func (s *BatchService) persistConversation(ctx context.Context, item *domain.BatchItem, turns []domain.Turn) (*domain.Conversation, error) {
	totalChars := 0
	for _, t := range turns {
		totalChars += len(t.Content)
	}

	conv := &domain.Conversation{
		ID:         uuid.New().String(),
		Title:      item.Topic,
		Tier:       item.Tier,
		Status:     domain.ConversationStatusPendingReview,
		Turns:      turns,
		TotalTurns: len(turns),
		TotalChars: totalChars,
		Parameters: item.Parameters,
	}

	score, err := s.scorer.Score(conv)
	if err != nil {
		return nil, fmt.Errorf("quality scoring failed: %w", err)
	}
	conv.Quality = score
	if score.AutoFlagged {
		conv.Status = domain.ConversationStatusNeedsRevision
	}

	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to persist conversation: %w", err)
	}
	return conv, nil
}
