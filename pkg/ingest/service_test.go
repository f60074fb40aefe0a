package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwise/fern/pkg/kafka"
	"github.com/costwise/fern/pkg/models"
)

var testScope = models.Scope{TenantID: "tenant-1", OrgID: "org-1", ProjectID: "project-1"}

var commitReferenceDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeItemStore struct {
	commits [][]*models.ScheduleItem
	active  map[string]bool
}

func (f *fakeItemStore) CommitIngestBatch(_ context.Context, _ models.Scope, items []*models.ScheduleItem) error {
	f.commits = append(f.commits, items)
	return nil
}

func (f *fakeItemStore) HasActiveIngestBatch(_ context.Context, _ models.Scope, ingestBatchID string) (bool, error) {
	return f.active[ingestBatchID], nil
}

type fakeRunFinder struct {
	resumable *models.BatchRun
}

func (f *fakeRunFinder) FindResumable(_ context.Context, _ models.Scope, _ time.Time) (*models.BatchRun, error) {
	return f.resumable, nil
}

type fakeBatchRunner struct {
	requests []models.RunBatchRequest
}

func (f *fakeBatchRunner) RunBatch(_ context.Context, _ models.Scope, req models.RunBatchRequest) (*models.BatchResult, error) {
	f.requests = append(f.requests, req)
	return &models.BatchResult{BatchRunID: "run-new"}, nil
}

type serviceFixture struct {
	items   *fakeItemStore
	runs    *fakeRunFinder
	runner  *fakeBatchRunner
	service *Service
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		items:  &fakeItemStore{active: map[string]bool{}},
		runs:   &fakeRunFinder{},
		runner: &fakeBatchRunner{},
	}
	f.service = NewService(noopLogger(), f.items, f.runs, f.runner)
	return f
}

func ingestCommit(batchID string) *kafka.IngestCommitMessage {
	return &kafka.IngestCommitMessage{
		TenantID:      testScope.TenantID,
		OrgID:         testScope.OrgID,
		ProjectID:     testScope.ProjectID,
		IngestBatchID: batchID,
		ReferenceDate: commitReferenceDate,
		Items: []models.CreateScheduleItemRequest{
			{IngestBatchID: batchID, RawDescription: "Steel Beam W12x26 20ft", Category: "Structural Steel", Quantity: 4, Unit: "ea"},
		},
	}
}

func TestCommitBatchTokenizesRows(t *testing.T) {
	f := newServiceFixture()

	count, err := f.service.CommitBatch(context.Background(), testScope, []models.CreateScheduleItemRequest{
		{IngestBatchID: "batch-1", RawDescription: "Steel Beam W12x26 20ft", Category: "Structural Steel", Unit: "ea"},
		{IngestBatchID: "batch-1", RawDescription: "", Category: ""},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, f.items.commits, 1)
	committed := f.items.commits[0]
	require.Len(t, committed, 2)
	assert.ElementsMatch(t, []string{"steel", "beam", "w12x26"}, committed[0].Tokens.Data)
	// Untokenizable rows still land; the matcher accounts for them later.
	assert.Empty(t, committed[1].Tokens.Data)
}

func TestHandleCommitRunsFreshBatch(t *testing.T) {
	f := newServiceFixture()

	result, err := f.service.HandleCommit(context.Background(), testScope, ingestCommit("batch-1"))

	require.NoError(t, err)
	assert.Equal(t, "run-new", result.BatchRunID)
	assert.Len(t, f.items.commits, 1)
	require.Len(t, f.runner.requests, 1)
	req := f.runner.requests[0]
	assert.Equal(t, commitReferenceDate, req.ReferenceDate)
	assert.Empty(t, req.ResumeBatchID)
}

func TestHandleCommitRedeliveryResumesRun(t *testing.T) {
	f := newServiceFixture()
	f.items.active["batch-1"] = true
	f.runs.resumable = &models.BatchRun{ID: "run-7", Status: models.BatchRunStatusFailed, ReferenceDate: commitReferenceDate}

	_, err := f.service.HandleCommit(context.Background(), testScope, ingestCommit("batch-1"))

	require.NoError(t, err)
	// The items are already active; re-committing would retire and re-mint
	// them under new ids, orphaning the failed run's proposals.
	assert.Empty(t, f.items.commits)
	require.Len(t, f.runner.requests, 1)
	assert.Equal(t, "run-7", f.runner.requests[0].ResumeBatchID)
}

func TestHandleCommitZeroReferenceDateDefaultsToNow(t *testing.T) {
	f := newServiceFixture()
	commit := ingestCommit("batch-1")
	commit.ReferenceDate = time.Time{}

	_, err := f.service.HandleCommit(context.Background(), testScope, commit)

	require.NoError(t, err)
	require.Len(t, f.runner.requests, 1)
	assert.False(t, f.runner.requests[0].ReferenceDate.IsZero())
}
