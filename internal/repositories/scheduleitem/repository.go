package scheduleitem

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

var itemColumns = []string{
	"id", "tenant_id", "org_id", "project_id", "ingest_batch_id",
	"raw_description", "category", "quantity", "unit", "tokens",
	"created_at", "retired_at",
}

// Repository handles schedule item persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new schedule item repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database for callers that coordinate
// transactions across repositories.
func (r *Repository) DB() database.DB {
	return r.db
}

// CommitIngestBatch atomically retires the scope's active items and inserts
// the new batch. Retired rows are kept for audit; re-running a commit for
// the same ingest batch retires the earlier copy the same way.
func (r *Repository) CommitIngestBatch(ctx context.Context, scope models.Scope, items []*models.ScheduleItem) error {
	ctx, span := tracing.StartSpan(ctx, "scheduleitem.Repository.CommitIngestBatch")
	defer span.End()

	if len(items) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("schedule_items")
	ub.Set(ub.Assign("retired_at", now))
	ub.Where(
		ub.Equal("tenant_id", scope.TenantID),
		ub.Equal("org_id", scope.OrgID),
		ub.Equal("project_id", scope.ProjectID),
		ub.IsNull("retired_at"),
	)
	query, args := ub.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to retire previous schedule items")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to retire previous schedule items")
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("schedule_items")
	ib.Cols("id", "tenant_id", "org_id", "project_id", "ingest_batch_id", "raw_description", "category", "quantity", "unit", "tokens", "created_at")
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.TenantID = scope.TenantID
		item.OrgID = scope.OrgID
		item.ProjectID = scope.ProjectID
		item.CreatedAt = now
		ib.Values(item.ID, item.TenantID, item.OrgID, item.ProjectID, item.IngestBatchID, item.RawDescription, item.Category, item.Quantity, item.Unit, item.Tokens, item.CreatedAt)
	}
	query, args = ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to insert schedule items")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert schedule items")
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit ingest batch")
	}

	r.logger.WithContext(ctx).WithFields(scope.LogFields()).WithFields(map[string]any{"count": len(items)}).Info("Committed schedule item ingest batch")
	return nil
}

// HasActiveIngestBatch reports whether the scope's active item set came
// from the given ingest batch. A redelivered commit message matches here
// and must not retire and re-insert the items it already committed.
func (r *Repository) HasActiveIngestBatch(ctx context.Context, scope models.Scope, ingestBatchID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "scheduleitem.Repository.HasActiveIngestBatch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("schedule_items")
	sb.Where(
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
		sb.Equal("ingest_batch_id", ingestBatchID),
		sb.IsNull("retired_at"),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to check active ingest batch")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check active ingest batch")
	}

	return count > 0, nil
}

// Get retrieves a schedule item by ID
func (r *Repository) Get(ctx context.Context, scope models.Scope, id string) (*models.ScheduleItem, error) {
	ctx, span := tracing.StartSpan(ctx, "scheduleitem.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(itemColumns...)
	sb.From("schedule_items")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
	)

	query, args := sb.Build()
	var item models.ScheduleItem
	if err := r.db.GetContext(ctx, &item, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "schedule item not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"item_id": id}).Error("Failed to get schedule item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get schedule item")
	}

	return &item, nil
}

// ListActive retrieves every non-retired item in the scope, ordered by id
// for deterministic batch processing.
func (r *Repository) ListActive(ctx context.Context, scope models.Scope) ([]models.ScheduleItem, error) {
	ctx, span := tracing.StartSpan(ctx, "scheduleitem.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(itemColumns...)
	sb.From("schedule_items")
	sb.Where(
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
		sb.IsNull("retired_at"),
	)
	sb.OrderBy("id ASC")

	query, args := sb.Build()
	items := []models.ScheduleItem{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to list active schedule items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list schedule items")
	}

	return items, nil
}

// List retrieves a page of active items for dashboards
func (r *Repository) List(ctx context.Context, scope models.Scope, page, pageSize int) (*models.ScheduleItemListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "scheduleitem.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("schedule_items")
	cb.Where(
		cb.Equal("tenant_id", scope.TenantID),
		cb.Equal("org_id", scope.OrgID),
		cb.Equal("project_id", scope.ProjectID),
		cb.IsNull("retired_at"),
	)
	query, args := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to count schedule items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count schedule items")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(itemColumns...)
	sb.From("schedule_items")
	sb.Where(
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
		sb.IsNull("retired_at"),
	)
	sb.OrderBy("created_at DESC", "id ASC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	items := []models.ScheduleItem{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to list schedule items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list schedule items")
	}

	return &models.ScheduleItemListResponse{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
