package matching

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/costwise/fern/pkg/database"
	"github.com/costwise/fern/pkg/models"
	"github.com/costwise/fern/pkg/taxonomy"
	"github.com/costwise/fern/pkg/tracing"
)

// ItemStore is the schedule item surface the engine reads.
// *scheduleitem.Repository implements it.
type ItemStore interface {
	ListActive(ctx context.Context, scope models.Scope) ([]models.ScheduleItem, error)
}

// EntryStore is the price book surface the engine reads.
// *priceentry.Repository implements it.
type EntryStore interface {
	ListValidAt(ctx context.Context, scope models.Scope, referenceDate time.Time) ([]models.PriceEntry, error)
}

// ProposalStore is the proposal persistence surface the engine writes.
// *proposal.Repository implements it.
type ProposalStore interface {
	ReplacePending(ctx context.Context, p *models.MatchProposal) (int, error)
	ItemIDsWithProposalFromBatch(ctx context.Context, scope models.Scope, batchRunID string) (map[string]struct{}, error)
	ApprovedItemIDs(ctx context.Context, scope models.Scope) (map[string]struct{}, error)
}

// RunStore is the batch run persistence surface the engine uses.
// *batchrun.Repository implements it.
type RunStore interface {
	Create(ctx context.Context, run *models.BatchRun) (*models.BatchRun, error)
	Get(ctx context.Context, scope models.Scope, id string) (*models.BatchRun, error)
	Finish(ctx context.Context, run *models.BatchRun) error
}

// TaxonomyLoader loads the tenant's category tree. *taxonomy.Store
// implements it.
type TaxonomyLoader interface {
	LoadSnapshot(ctx context.Context, tenantID string) (*taxonomy.Snapshot, error)
}

// RunEmitter publishes batch run events. *events.Emitter implements it.
type RunEmitter interface {
	EmitBatchRun(ctx context.Context, run *models.BatchRun)
}

// EngineConfig contains configuration for the match engine
type EngineConfig struct {
	Workers        int     // Concurrent item workers (default: 8)
	CandidateLimit int     // Maximum candidates per item (default: 50)
	Weights        Weights // Scoring weights
}

// DefaultEngineConfig returns default engine configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Workers:        8,
		CandidateLimit: DefaultCandidateLimit,
		Weights:        DefaultWeights(),
	}
}

// Engine runs matching batches: it walks a project's active schedule items,
// generates and scores price entry candidates, and writes one pending
// proposal per item. Each item commits independently, so a crash or
// cancellation mid-run loses at most the items still in flight and a
// resumed run picks up where the proposals stop.
type Engine struct {
	logger        ectologger.Logger
	itemRepo      ItemStore
	entryRepo     EntryStore
	proposalRepo  ProposalStore
	batchRunRepo  RunStore
	taxonomyStore TaxonomyLoader
	emitter       RunEmitter
	scorer        *Scorer
	config        EngineConfig
}

// NewEngine creates a new match engine
func NewEngine(
	logger ectologger.Logger,
	itemRepo ItemStore,
	entryRepo EntryStore,
	proposalRepo ProposalStore,
	batchRunRepo RunStore,
	taxonomyStore TaxonomyLoader,
	emitter RunEmitter,
	config EngineConfig,
) *Engine {
	if config.Workers < 1 {
		config.Workers = 8
	}
	return &Engine{
		logger:        logger,
		itemRepo:      itemRepo,
		entryRepo:     entryRepo,
		proposalRepo:  proposalRepo,
		batchRunRepo:  batchRunRepo,
		taxonomyStore: taxonomyStore,
		emitter:       emitter,
		scorer:        NewScorer(config.Weights),
		config:        config,
	}
}

// batchCounters accumulates run statistics across workers
type batchCounters struct {
	mu              sync.Mutex
	created         int
	superseded      int
	flaggedLowScore int
	skipped         int
	malformed       int
}

// RunBatch executes one matching pass over the scope's active items at the
// request's reference date. With ResumeBatchID set it continues an earlier
// run instead of starting fresh, skipping items that run already wrote
// proposals for.
//
// Item failures that are the item's own fault (malformed records) are
// counted and skipped; anything else fails the whole run so a systemic
// problem never half-completes silently. Approved items are left alone:
// a decision is final and a rematch only replaces pending work.
func (e *Engine) RunBatch(ctx context.Context, scope models.Scope, req models.RunBatchRequest) (*models.BatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.RunBatch")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(scope.LogFields())

	run, err := e.openRun(ctx, scope, req)
	if err != nil {
		return nil, err
	}
	log = log.WithFields(map[string]any{"batch_run_id": run.ID})

	result, runErr := e.process(ctx, scope, run)
	if runErr != nil {
		reason := runErr.Error()
		run.Status = models.BatchRunStatusFailed
		if errors.Is(runErr, context.Canceled) {
			run.Status = models.BatchRunStatusCancelled
		}
		run.FailureReason = &reason
		if err := e.batchRunRepo.Finish(ctx, run); err != nil {
			log.WithError(err).Error("Failed to record batch run failure")
		}
		e.emitter.EmitBatchRun(ctx, run)
		log.WithError(runErr).Error("Batch run failed")
		return nil, runErr
	}

	run.Status = models.BatchRunStatusCompleted
	run.ProposalsCreated = result.ProposalsCreated
	run.ProposalsSuperseded = result.ProposalsSuperseded
	run.ItemsFlaggedLowConfidence = result.ItemsFlaggedLowConfidence
	run.ItemsSkipped = result.ItemsSkipped
	run.ItemsMalformed = result.ItemsMalformed
	if err := e.batchRunRepo.Finish(ctx, run); err != nil {
		return nil, err
	}
	e.emitter.EmitBatchRun(ctx, run)

	log.WithFields(map[string]any{
		"proposals_created": result.ProposalsCreated,
		"items_skipped":     result.ItemsSkipped,
	}).Info("Batch run completed")

	return result, nil
}

func (e *Engine) openRun(ctx context.Context, scope models.Scope, req models.RunBatchRequest) (*models.BatchRun, error) {
	if req.ResumeBatchID != "" {
		run, err := e.batchRunRepo.Get(ctx, scope, req.ResumeBatchID)
		if err != nil {
			return nil, err
		}
		run.Status = models.BatchRunStatusRunning
		run.FailureReason = nil
		run.FinishedAt = nil
		return run, nil
	}

	return e.batchRunRepo.Create(ctx, &models.BatchRun{
		TenantID:      scope.TenantID,
		OrgID:         scope.OrgID,
		ProjectID:     scope.ProjectID,
		ReferenceDate: req.ReferenceDate,
	})
}

func (e *Engine) process(ctx context.Context, scope models.Scope, run *models.BatchRun) (*models.BatchResult, error) {
	items, err := e.itemRepo.ListActive(ctx, scope)
	if err != nil {
		return nil, err
	}

	entries, err := e.entryRepo.ListValidAt(ctx, scope, run.ReferenceDate)
	if err != nil {
		return nil, err
	}
	index := BuildIndex(entries, run.ReferenceDate, e.config.CandidateLimit)

	snapshot, err := e.taxonomyStore.LoadSnapshot(ctx, scope.TenantID)
	if err != nil {
		// Matching degrades to exact category comparison without the taxonomy.
		e.logger.WithContext(ctx).WithError(err).Warn("Category taxonomy unavailable, scoring without hierarchy")
		snapshot = taxonomy.NewSnapshot(nil)
	}

	processed, err := e.proposalRepo.ItemIDsWithProposalFromBatch(ctx, scope, run.ID)
	if err != nil {
		return nil, err
	}
	approved, err := e.proposalRepo.ApprovedItemIDs(ctx, scope)
	if err != nil {
		return nil, err
	}

	counters := &batchCounters{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)

	for i := range items {
		item := items[i]
		if _, ok := processed[item.ID]; ok {
			counters.addSkipped()
			continue
		}
		if _, ok := approved[item.ID]; ok {
			counters.addSkipped()
			continue
		}

		g.Go(func() error {
			// Cancellation lands on item boundaries. Items already committed
			// stay committed.
			if err := gctx.Err(); err != nil {
				return err
			}
			return e.processItem(gctx, scope, run.ID, &item, index, snapshot, counters)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.BatchResult{
		BatchRunID:                run.ID,
		ProposalsCreated:          counters.created,
		ProposalsSuperseded:       counters.superseded,
		ItemsFlaggedLowConfidence: counters.flaggedLowScore,
		ItemsSkipped:              counters.skipped,
		ItemsMalformed:            counters.malformed,
	}, nil
}

// processItem matches one schedule item and commits its pending proposal.
func (e *Engine) processItem(ctx context.Context, scope models.Scope, batchRunID string, item *models.ScheduleItem, index *Index, snapshot *taxonomy.Snapshot, counters *batchCounters) error {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.processItem")
	defer span.End()

	record, err := Normalize(item.RawDescription, Attributes{Category: item.Category, Unit: item.Unit})
	if err != nil {
		if !models.IsRecoverableItemError(err) {
			return err
		}
		var malformed *models.MalformedRecordError
		if errors.As(err, &malformed) {
			malformed.ItemID = item.ID
		}
		e.logger.WithContext(ctx).WithFields(map[string]any{"item_id": item.ID}).Warn("Skipping malformed schedule item")
		counters.addMalformed()
		return nil
	}

	set, err := index.Generate(record)
	if err != nil {
		var exhausted *models.CandidateSetExhaustedError
		if !errors.As(err, &exhausted) {
			return err
		}
		// The item still gets an empty low-confidence proposal and goes
		// straight to review.
		exhausted.ItemID = item.ID
		e.logger.WithContext(ctx).WithError(exhausted).Warn("No candidates for schedule item")
	}

	candidates := make([]models.Candidate, 0, len(set.Entries))
	for _, indexed := range set.Entries {
		candidates = append(candidates, models.Candidate{
			PriceEntryID: indexed.Entry.ID,
			Score:        e.scorer.Score(record, indexed.Record, snapshot),
		})
	}
	RankCandidates(candidates)

	lowConfidence := set.LowConfidence || len(candidates) == 0

	p := &models.MatchProposal{
		TenantID:       scope.TenantID,
		OrgID:          scope.OrgID,
		ProjectID:      scope.ProjectID,
		ScheduleItemID: item.ID,
		BatchRunID:     batchRunID,
		Category:       item.Category,
		Candidates:     database.JSONB[[]models.Candidate]{Data: candidates},
		LowConfidence:  lowConfidence,
	}

	superseded, err := e.proposalRepo.ReplacePending(ctx, p)
	if err != nil {
		if errors.Is(err, models.ErrConcurrencyConflict) {
			// Another run already wrote a pending proposal for this item.
			e.logger.WithContext(ctx).WithFields(map[string]any{"item_id": item.ID}).Warn("Lost proposal race, skipping item")
			counters.addSkipped()
			return nil
		}
		return err
	}

	counters.addCreated(superseded, lowConfidence)
	return nil
}

func (c *batchCounters) addCreated(superseded int, lowConfidence bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
	c.superseded += superseded
	if lowConfidence {
		c.flaggedLowScore++
	}
}

func (c *batchCounters) addSkipped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped++
}

func (c *batchCounters) addMalformed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.malformed++
}
