package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/config"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/generation"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/quality"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an in-memory SQLite database with migrations applied.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&domain.Conversation{},
		&domain.Template{},
		&domain.BatchJob{},
		&domain.BatchItem{},
		&domain.Checkpoint{},
		&domain.Draft{},
		&domain.Backup{},
	))
	return db
}

// fakeGenerator scripts generation outcomes per topic and records calls.
type fakeGenerator struct {
	mu    sync.Mutex
	calls []string
	fn    func(req *generation.Request, attempt int) ([]domain.Turn, error)
}

func (f *fakeGenerator) GenerateConversation(ctx context.Context, req *generation.Request) ([]domain.Turn, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Topic)
	attempt := 0
	for _, c := range f.calls {
		if c == req.Topic {
			attempt++
		}
	}
	f.mu.Unlock()
	return f.fn(req, attempt)
}

func (f *fakeGenerator) callCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == topic {
			n++
		}
	}
	return n
}

// goodTurns is an optimal-range template-tier conversation.
func goodTurns() []domain.Turn {
	turns := make([]domain.Turn, 12)
	for i := range turns {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		content := fmt.Sprintf("Message %d. ", i)
		for len(content) < 200 {
			content += fmt.Sprintf("Detailed discussion point for message %d. ", i)
		}
		turns[i] = domain.Turn{Role: role, Content: content[:200]}
	}
	return turns
}

type batchFixture struct {
	svc       *BatchService
	jobs      *repository.BatchJobRepository
	cps       *repository.CheckpointRepository
	convs     *repository.ConversationRepository
	generator *fakeGenerator
}

func newBatchFixture(t *testing.T, gen *fakeGenerator, cfg *config.BatchConfig) *batchFixture {
	t.Helper()
	db := newTestDB(t)

	if cfg == nil {
		cfg = &config.BatchConfig{
			Workers:       2,
			RetryCount:    2,
			RetryBackoff:  time.Millisecond,
			ItemTimeout:   time.Second,
			ErrorHandling: "continue",
		}
	}

	jobs := repository.NewBatchJobRepository(db)
	cps := repository.NewCheckpointRepository(db)
	convs := repository.NewConversationRepository(db)
	tpls := repository.NewTemplateRepository(db)
	scorer := quality.NewScorer(0)

	return &batchFixture{
		svc:       NewBatchService(jobs, cps, convs, tpls, gen, scorer, cfg),
		jobs:      jobs,
		cps:       cps,
		convs:     convs,
		generator: gen,
	}
}

func itemSpecs(topics ...string) []BatchItemSpec {
	specs := make([]BatchItemSpec, len(topics))
	for i, topic := range topics {
		specs[i] = BatchItemSpec{Topic: topic}
	}
	return specs
}

func waitForJob(t *testing.T, fx *batchFixture) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, fx.svc.Shutdown(ctx))
}

func TestBatchService_ContinueModeCompletesWithFailures(t *testing.T) {
	gen := &fakeGenerator{fn: func(req *generation.Request, _ int) ([]domain.Turn, error) {
		if req.Topic == "bad" {
			return nil, &generation.APIError{StatusCode: 400, Message: "content rejected"}
		}
		return goodTurns(), nil
	}}
	fx := newBatchFixture(t, gen, nil)
	ctx := context.Background()

	job, err := fx.svc.StartBatch(ctx, &StartBatchRequest{
		Name:        "three items",
		Tier:        domain.TierTemplate,
		Items:       itemSpecs("alpha", "bad", "gamma"),
		Concurrency: 2,
	})
	require.NoError(t, err)
	waitForJob(t, fx)

	final, err := fx.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchJobStatusCompleted, final.Status)
	assert.Equal(t, 2, final.SuccessfulItems)
	assert.Equal(t, 1, final.FailedItems)
	assert.Equal(t, 3, final.CompletedItems)
	assert.NotNil(t, final.CompletedAt)

	// Checkpoint is cleaned up only after confirmed terminal success.
	_, err = fx.cps.Get(ctx, job.ID)
	assert.True(t, errors.Is(err, repository.ErrCheckpointNotFound))

	// The failed item carries its error; successes reference conversations.
	items, err := fx.jobs.ListItems(ctx, job.ID)
	require.NoError(t, err)
	for _, item := range items {
		if item.Topic == "bad" {
			assert.Equal(t, domain.BatchItemStatusFailed, item.Status)
			assert.Contains(t, item.Error, "content rejected")
			continue
		}
		assert.Equal(t, domain.BatchItemStatusSucceeded, item.Status)
		require.NotEmpty(t, item.ConversationID)
		conv, err := fx.convs.GetByID(ctx, item.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversationStatusPendingReview, conv.Status)
		require.NotNil(t, conv.Quality)
		assert.False(t, conv.Quality.AutoFlagged)
	}
}

func TestBatchService_StopModeHaltsDispatch(t *testing.T) {
	gen := &fakeGenerator{fn: func(req *generation.Request, _ int) ([]domain.Turn, error) {
		if req.Topic == "bad" {
			return nil, &generation.APIError{StatusCode: 422, Message: "invalid parameters"}
		}
		return goodTurns(), nil
	}}
	cfg := &config.BatchConfig{
		Workers:       1,
		RetryCount:    0,
		RetryBackoff:  time.Millisecond,
		ItemTimeout:   time.Second,
		ErrorHandling: "continue",
	}
	fx := newBatchFixture(t, gen, cfg)
	ctx := context.Background()

	job, err := fx.svc.StartBatch(ctx, &StartBatchRequest{
		Name:          "fail fast",
		Tier:          domain.TierTemplate,
		Items:         itemSpecs("bad", "beta", "gamma"),
		Concurrency:   1,
		ErrorHandling: domain.ErrorHandlingStop,
	})
	require.NoError(t, err)
	waitForJob(t, fx)

	final, err := fx.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchJobStatusFailed, final.Status)
	assert.Contains(t, final.FailureReason, "stopped on item failure")
	assert.Equal(t, 1, final.FailedItems)
	assert.Less(t, final.CompletedItems, final.TotalItems)

	// The interrupted checkpoint stays behind for recovery.
	cp, err := fx.cps.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Less(t, cp.ProgressPercentage, 100)
}

func TestBatchService_RetriesTransientFailures(t *testing.T) {
	gen := &fakeGenerator{fn: func(req *generation.Request, attempt int) ([]domain.Turn, error) {
		if attempt == 1 {
			return nil, context.DeadlineExceeded
		}
		return goodTurns(), nil
	}}
	fx := newBatchFixture(t, gen, nil)
	ctx := context.Background()

	job, err := fx.svc.StartBatch(ctx, &StartBatchRequest{
		Name:  "retry",
		Tier:  domain.TierTemplate,
		Items: itemSpecs("flaky"),
	})
	require.NoError(t, err)
	waitForJob(t, fx)

	final, err := fx.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchJobStatusCompleted, final.Status)
	assert.Equal(t, 1, final.SuccessfulItems)
	assert.Equal(t, 2, gen.callCount("flaky"))
}

func TestBatchService_ConfigurationErrorFailsJob(t *testing.T) {
	gen := &fakeGenerator{fn: func(req *generation.Request, _ int) ([]domain.Turn, error) {
		return nil, &generation.APIError{StatusCode: 401, Message: "invalid api key"}
	}}
	fx := newBatchFixture(t, gen, nil)
	ctx := context.Background()

	job, err := fx.svc.StartBatch(ctx, &StartBatchRequest{
		Name:  "misconfigured",
		Tier:  domain.TierTemplate,
		Items: itemSpecs("alpha", "beta"),
	})
	require.NoError(t, err)
	waitForJob(t, fx)

	final, err := fx.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchJobStatusFailed, final.Status)
	assert.Contains(t, final.FailureReason, "invalid api key")
	assert.Equal(t, 0, final.SuccessfulItems)
}

func TestBatchService_ResumeProcessesOnlyRemaining(t *testing.T) {
	gen := &fakeGenerator{fn: func(req *generation.Request, _ int) ([]domain.Turn, error) {
		return goodTurns(), nil
	}}
	fx := newBatchFixture(t, gen, nil)
	ctx := context.Background()

	// An interrupted job: two items already checkpointed, one pending.
	job := &domain.BatchJob{
		ID:            uuid.New().String(),
		Name:          "interrupted",
		Status:        domain.BatchJobStatusFailed,
		TotalItems:    3,
		Concurrency:   2,
		ErrorHandling: domain.ErrorHandlingContinue,
		FailureReason: "processing interrupted",
	}
	items := []domain.BatchItem{
		{ID: "item-0", JobID: job.ID, Position: 0, Topic: "done-1", Tier: domain.TierTemplate, Status: domain.BatchItemStatusSucceeded},
		{ID: "item-1", JobID: job.ID, Position: 1, Topic: "done-2", Tier: domain.TierTemplate, Status: domain.BatchItemStatusSucceeded},
		{ID: "item-2", JobID: job.ID, Position: 2, Topic: "remaining", Tier: domain.TierTemplate, Status: domain.BatchItemStatusPending},
	}
	require.NoError(t, fx.jobs.CreateJob(ctx, job, items))
	_, err := fx.cps.Create(ctx, job.ID, 3)
	require.NoError(t, err)
	require.NoError(t, fx.cps.RecordItemResult(ctx, job.ID, "item-0", true))
	require.NoError(t, fx.cps.RecordItemResult(ctx, job.ID, "item-1", true))

	resumed, err := fx.svc.Resume(ctx, job.ID)
	require.NoError(t, err)
	// Counters are rebuilt from the checkpoint on resume.
	assert.Equal(t, 2, resumed.SuccessfulItems)
	waitForJob(t, fx)

	// Only the unrecorded item was reprocessed.
	assert.Equal(t, []string{"remaining"}, gen.calls)

	final, err := fx.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchJobStatusCompleted, final.Status)
	assert.Equal(t, 3, final.SuccessfulItems)
	assert.Empty(t, final.FailureReason)

	_, err = fx.cps.Get(ctx, job.ID)
	assert.True(t, errors.Is(err, repository.ErrCheckpointNotFound))
}

func TestBatchService_ResumeWithNoRemainingWork(t *testing.T) {
	gen := &fakeGenerator{fn: func(req *generation.Request, _ int) ([]domain.Turn, error) {
		return goodTurns(), nil
	}}
	fx := newBatchFixture(t, gen, nil)
	ctx := context.Background()

	job := &domain.BatchJob{ID: uuid.New().String(), TotalItems: 1, Concurrency: 1}
	require.NoError(t, fx.jobs.CreateJob(ctx, job, []domain.BatchItem{
		{ID: "item-0", JobID: job.ID, Position: 0, Topic: "done", Tier: domain.TierTemplate, Status: domain.BatchItemStatusSucceeded},
	}))
	_, err := fx.cps.Create(ctx, job.ID, 1)
	require.NoError(t, err)
	require.NoError(t, fx.cps.RecordItemResult(ctx, job.ID, "item-0", true))

	_, err = fx.svc.Resume(ctx, job.ID)
	assert.True(t, errors.Is(err, ErrJobNotResumable))
}

func TestBatchService_CancelBetweenItems(t *testing.T) {
	gate := make(chan struct{})
	gen := &fakeGenerator{fn: func(req *generation.Request, _ int) ([]domain.Turn, error) {
		<-gate
		return goodTurns(), nil
	}}
	cfg := &config.BatchConfig{
		Workers:       1,
		RetryCount:    0,
		RetryBackoff:  time.Millisecond,
		ItemTimeout:   5 * time.Second,
		ErrorHandling: "continue",
	}
	fx := newBatchFixture(t, gen, cfg)
	ctx := context.Background()

	job, err := fx.svc.StartBatch(ctx, &StartBatchRequest{
		Name:        "cancelled",
		Tier:        domain.TierTemplate,
		Items:       itemSpecs("first", "second", "third"),
		Concurrency: 1,
	})
	require.NoError(t, err)

	// Cancel while the first item is in flight, then let it drain.
	require.Eventually(t, func() bool {
		return fx.generator.callCount("first") == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, fx.svc.Cancel(job.ID, "operator requested stop"))
	time.Sleep(20 * time.Millisecond)
	close(gate)
	waitForJob(t, fx)

	final, err := fx.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchJobStatusFailed, final.Status)
	assert.Equal(t, "operator requested stop", final.FailureReason)
	// The in-flight item drained and was checkpointed.
	assert.GreaterOrEqual(t, final.SuccessfulItems, 1)
	assert.Less(t, final.CompletedItems, final.TotalItems)
}

func TestBatchService_StartBatchValidation(t *testing.T) {
	gen := &fakeGenerator{fn: func(req *generation.Request, _ int) ([]domain.Turn, error) {
		return goodTurns(), nil
	}}
	fx := newBatchFixture(t, gen, nil)
	ctx := context.Background()

	_, err := fx.svc.StartBatch(ctx, &StartBatchRequest{Tier: domain.TierTemplate})
	assert.Error(t, err)

	_, err = fx.svc.StartBatch(ctx, &StartBatchRequest{
		Tier:  domain.TierType("bogus"),
		Items: itemSpecs("alpha"),
	})
	assert.Error(t, err)

	_, err = fx.svc.StartBatch(ctx, &StartBatchRequest{
		Tier:          domain.TierTemplate,
		Items:         itemSpecs("alpha"),
		ErrorHandling: domain.ErrorHandlingMode("bogus"),
	})
	assert.Error(t, err)
	waitForJob(t, fx)
}

func TestBatchService_CancelUnknownJob(t *testing.T) {
	gen := &fakeGenerator{fn: func(req *generation.Request, _ int) ([]domain.Turn, error) {
		return goodTurns(), nil
	}}
	fx := newBatchFixture(t, gen, nil)

	err := fx.svc.Cancel("missing", "")
	assert.True(t, errors.Is(err, ErrJobNotCancellable))
}
