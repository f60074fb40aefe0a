package batchrun

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/costwise/fern/pkg/database"
	"github.com/costwise/fern/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/costwise/fern/pkg/models"
)

var runColumns = []string{
	"id", "tenant_id", "org_id", "project_id", "reference_date", "status",
	"proposals_created", "proposals_superseded", "items_flagged_low_confidence",
	"items_skipped", "items_malformed", "failure_reason", "started_at", "finished_at",
}

// Repository handles batch run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new batch run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create records the start of a run
func (r *Repository) Create(ctx context.Context, run *models.BatchRun) (*models.BatchRun, error) {
	ctx, span := tracing.StartSpan(ctx, "batchrun.Repository.Create")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.Status = models.BatchRunStatusRunning
	run.StartedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("batch_runs")
	sb.Cols("id", "tenant_id", "org_id", "project_id", "reference_date", "status", "started_at")
	sb.Values(run.ID, run.TenantID, run.OrgID, run.ProjectID, run.ReferenceDate, run.Status, run.StartedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(run.Scope().LogFields()).Error("Failed to create batch run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create batch run")
	}

	return run, nil
}

// Get retrieves a batch run by ID
func (r *Repository) Get(ctx context.Context, scope models.Scope, id string) (*models.BatchRun, error) {
	ctx, span := tracing.StartSpan(ctx, "batchrun.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("batch_runs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
	)

	query, args := sb.Build()
	var run models.BatchRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "batch run not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_run_id": id}).Error("Failed to get batch run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get batch run")
	}

	return &run, nil
}

// Finish records the run's terminal status and final counters
func (r *Repository) Finish(ctx context.Context, run *models.BatchRun) error {
	ctx, span := tracing.StartSpan(ctx, "batchrun.Repository.Finish")
	defer span.End()

	now := time.Now().UTC()
	run.FinishedAt = &now

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("batch_runs")
	sb.Set(
		sb.Assign("status", run.Status),
		sb.Assign("proposals_created", run.ProposalsCreated),
		sb.Assign("proposals_superseded", run.ProposalsSuperseded),
		sb.Assign("items_flagged_low_confidence", run.ItemsFlaggedLowConfidence),
		sb.Assign("items_skipped", run.ItemsSkipped),
		sb.Assign("items_malformed", run.ItemsMalformed),
		sb.Assign("failure_reason", run.FailureReason),
		sb.Assign("finished_at", run.FinishedAt),
	)
	sb.Where(
		sb.Equal("id", run.ID),
		sb.Equal("tenant_id", run.TenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_run_id": run.ID}).Error("Failed to finish batch run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish batch run")
	}

	return nil
}

// FindResumable returns the scope's most recent failed or cancelled run at
// the given reference date, or nil when there is none. Redelivered ingest
// commits resume this run instead of starting over.
func (r *Repository) FindResumable(ctx context.Context, scope models.Scope, referenceDate time.Time) (*models.BatchRun, error) {
	ctx, span := tracing.StartSpan(ctx, "batchrun.Repository.FindResumable")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("batch_runs")
	sb.Where(
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
		sb.Equal("reference_date", referenceDate),
		sb.In("status", models.BatchRunStatusFailed, models.BatchRunStatusCancelled),
	)
	sb.OrderBy("started_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var run models.BatchRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to find resumable batch run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find resumable batch run")
	}

	return &run, nil
}

// ListRecent retrieves the scope's most recent runs, newest first
func (r *Repository) ListRecent(ctx context.Context, scope models.Scope, limit int) ([]models.BatchRun, error) {
	ctx, span := tracing.StartSpan(ctx, "batchrun.Repository.ListRecent")
	defer span.End()

	if limit < 1 || limit > 100 {
		limit = 20
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("batch_runs")
	sb.Where(
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
	)
	sb.OrderBy("started_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	runs := []models.BatchRun{}
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to list batch runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list batch runs")
	}

	return runs, nil
}
