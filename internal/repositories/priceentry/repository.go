package priceentry

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

var entryColumns = []string{
	"id", "tenant_id", "org_id", "project_id", "vendor", "sku",
	"description", "unit_price", "currency", "unit", "category",
	"valid_from", "valid_to", "tokens", "created_at",
}

// Repository handles price entry persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new price entry repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a price entry. Any open-ended entry for the same vendor
// and SKU is closed at the new entry's valid_from so windows never overlap.
func (r *Repository) Create(ctx context.Context, entry *models.PriceEntry) (*models.PriceEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "priceentry.Repository.Create")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("price_entries")
	ub.Set(ub.Assign("valid_to", entry.ValidFrom))
	ub.Where(
		ub.Equal("tenant_id", entry.TenantID),
		ub.Equal("org_id", entry.OrgID),
		ub.Equal("project_id", entry.ProjectID),
		ub.Equal("vendor", entry.Vendor),
		ub.Equal("sku", entry.SKU),
		ub.IsNull("valid_to"),
		ub.LessThan("valid_from", entry.ValidFrom),
	)
	query, args := ub.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"sku": entry.SKU}).Error("Failed to close previous price entry window")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to close previous price entry window")
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("price_entries")
	ib.Cols(entryColumns...)
	ib.Values(entry.ID, entry.TenantID, entry.OrgID, entry.ProjectID, entry.Vendor, entry.SKU, entry.Description, entry.UnitPrice, entry.Currency, entry.Unit, entry.Category, entry.ValidFrom, entry.ValidTo, entry.Tokens, entry.CreatedAt)
	query, args = ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"sku": entry.SKU}).Error("Failed to create price entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create price entry")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit price entry")
	}

	return entry, nil
}

// Get retrieves a price entry by ID
func (r *Repository) Get(ctx context.Context, scope models.Scope, id string) (*models.PriceEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "priceentry.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entryColumns...)
	sb.From("price_entries")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
	)

	query, args := sb.Build()
	var entry models.PriceEntry
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "price entry not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entry_id": id}).Error("Failed to get price entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get price entry")
	}

	return &entry, nil
}

// ListValidAt retrieves every entry whose validity window covers the
// reference date, ordered by id. This is the matcher's price book view.
func (r *Repository) ListValidAt(ctx context.Context, scope models.Scope, referenceDate time.Time) ([]models.PriceEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "priceentry.Repository.ListValidAt")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entryColumns...)
	sb.From("price_entries")
	sb.Where(
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
		sb.LessEqualThan("valid_from", referenceDate),
		sb.Or(sb.IsNull("valid_to"), sb.GreaterEqualThan("valid_to", referenceDate)),
	)
	sb.OrderBy("id ASC")

	query, args := sb.Build()
	entries := []models.PriceEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to list valid price entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list price entries")
	}

	return entries, nil
}

// List retrieves a page of entries for dashboards, optionally filtered by
// vendor and category.
func (r *Repository) List(ctx context.Context, scope models.Scope, vendor, category string, page, pageSize int) (*models.PriceEntryListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "priceentry.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	where := func(sb *sqlbuilder.SelectBuilder) {
		conds := []string{
			sb.Equal("tenant_id", scope.TenantID),
			sb.Equal("org_id", scope.OrgID),
			sb.Equal("project_id", scope.ProjectID),
		}
		if vendor != "" {
			conds = append(conds, sb.Equal("vendor", vendor))
		}
		if category != "" {
			conds = append(conds, sb.Equal("category", category))
		}
		sb.Where(conds...)
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("price_entries")
	where(cb)
	query, args := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to count price entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count price entries")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entryColumns...)
	sb.From("price_entries")
	where(sb)
	sb.OrderBy("vendor ASC", "sku ASC", "valid_from DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	entries := []models.PriceEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to list price entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list price entries")
	}

	return &models.PriceEntryListResponse{
		Items:      entries,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
