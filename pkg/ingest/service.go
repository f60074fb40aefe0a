// Package ingest commits parsed schedule exports into the item store. The
// upstream ingester owns parsing; rows arriving here are structurally
// complete and a commit replaces the project's active item set atomically.
package ingest

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/costwise/fern/pkg/database"
	"github.com/costwise/fern/pkg/kafka"
	"github.com/costwise/fern/pkg/matching"
	"github.com/costwise/fern/pkg/models"
	"github.com/costwise/fern/pkg/tracing"
)

// ItemStore is the schedule item surface the service writes.
// *scheduleitem.Repository implements it.
type ItemStore interface {
	CommitIngestBatch(ctx context.Context, scope models.Scope, items []*models.ScheduleItem) error
	HasActiveIngestBatch(ctx context.Context, scope models.Scope, ingestBatchID string) (bool, error)
}

// RunFinder locates interrupted batch runs. *batchrun.Repository
// implements it.
type RunFinder interface {
	FindResumable(ctx context.Context, scope models.Scope, referenceDate time.Time) (*models.BatchRun, error)
}

// BatchRunner triggers matching runs. *matching.Engine implements it.
type BatchRunner interface {
	RunBatch(ctx context.Context, scope models.Scope, req models.RunBatchRequest) (*models.BatchResult, error)
}

// Service commits schedule item ingest batches
type Service struct {
	logger   ectologger.Logger
	itemRepo ItemStore
	runRepo  RunFinder
	runner   BatchRunner
}

// NewService creates a new ingest service
func NewService(logger ectologger.Logger, itemRepo ItemStore, runRepo RunFinder, runner BatchRunner) *Service {
	return &Service{
		logger:   logger,
		itemRepo: itemRepo,
		runRepo:  runRepo,
		runner:   runner,
	}
}

// CommitBatch tokenizes the rows and commits them as the scope's active
// item set. Tokens are derived once here so matching, which may run many
// times over the same items, reads them instead of re-deriving. Rows that
// cannot be tokenized are still committed; the matcher accounts for them
// as malformed when a batch runs.
func (s *Service) CommitBatch(ctx context.Context, scope models.Scope, rows []models.CreateScheduleItemRequest) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Service.CommitBatch")
	defer span.End()

	items := make([]*models.ScheduleItem, 0, len(rows))
	for _, row := range rows {
		item := &models.ScheduleItem{
			IngestBatchID:  row.IngestBatchID,
			RawDescription: row.RawDescription,
			Category:       row.Category,
			Quantity:       row.Quantity,
			Unit:           row.Unit,
		}
		if record, err := matching.Normalize(row.RawDescription, matching.Attributes{Category: row.Category, Unit: row.Unit}); err == nil {
			item.Tokens = database.JSONB[[]string]{Data: record.Tokens}
		} else {
			item.Tokens = database.JSONB[[]string]{Data: []string{}}
		}
		items = append(items, item)
	}

	if err := s.itemRepo.CommitIngestBatch(ctx, scope, items); err != nil {
		return 0, err
	}

	s.logger.WithContext(ctx).WithFields(scope.LogFields()).WithFields(map[string]any{"count": len(items)}).Info("Committed schedule ingest batch")
	return len(items), nil
}

// HandleCommit is the Kafka ingestion entry point: it commits the batch
// and triggers a matching run at the commit's reference date.
//
// Delivery is at least once, so both halves tolerate retry. A commit whose
// ingest batch id already owns the active item set is not re-committed,
// and when the scope has a failed or cancelled run at the same reference
// date the new run resumes it instead of starting over, skipping the items
// that run already wrote proposals for.
func (s *Service) HandleCommit(ctx context.Context, scope models.Scope, commit *kafka.IngestCommitMessage) (*models.BatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Service.HandleCommit")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(scope.LogFields()).WithFields(map[string]any{"ingest_batch_id": commit.IngestBatchID})

	already := false
	if commit.IngestBatchID != "" {
		var err error
		already, err = s.itemRepo.HasActiveIngestBatch(ctx, scope, commit.IngestBatchID)
		if err != nil {
			return nil, err
		}
	}
	if already {
		log.Info("Ingest batch already committed, skipping re-commit")
	} else if _, err := s.CommitBatch(ctx, scope, commit.Items); err != nil {
		return nil, err
	}

	referenceDate := commit.ReferenceDate
	if referenceDate.IsZero() {
		referenceDate = time.Now().UTC()
	}

	req := models.RunBatchRequest{ReferenceDate: referenceDate}
	resumable, err := s.runRepo.FindResumable(ctx, scope, referenceDate)
	if err != nil {
		return nil, err
	}
	if resumable != nil {
		req.ResumeBatchID = resumable.ID
		log.WithFields(map[string]any{"batch_run_id": resumable.ID}).Info("Resuming interrupted batch run")
	}

	return s.runner.RunBatch(ctx, scope, req)
}
