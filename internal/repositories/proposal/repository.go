package proposal

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/costwise/fern/pkg/database"
	"github.com/costwise/fern/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/costwise/fern/pkg/models"
)

var proposalColumns = []string{
	"id", "tenant_id", "org_id", "project_id", "schedule_item_id",
	"batch_run_id", "category", "candidates", "status", "low_confidence",
	"chosen_entry_id", "decided_at", "decided_by", "created_at", "updated_at",
}

// Repository handles match proposal persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match proposal repository
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

// ReplacePending supersedes the item's current pending proposal, if any, and
// inserts the new pending proposal in one transaction. A reviewer never sees
// a moment with two live proposals for the same item. The partial unique
// index on (schedule_item_id, status) WHERE status = 'pending' backstops the
// invariant; a violation means another writer won the race and surfaces as
// ErrConcurrencyConflict with nothing written.
func (r *Repository) ReplacePending(ctx context.Context, p *models.MatchProposal) (superseded int, err error) {
	ctx, span := tracing.StartSpan(ctx, "proposal.Repository.ReplacePending")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("match_proposals")
	ub.Set(
		ub.Assign("status", models.ProposalStatusSuperseded),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("tenant_id", p.TenantID),
		ub.Equal("org_id", p.OrgID),
		ub.Equal("project_id", p.ProjectID),
		ub.Equal("schedule_item_id", p.ScheduleItemID),
		ub.Equal("status", models.ProposalStatusPending),
	)
	query, args := ub.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"item_id": p.ScheduleItemID}).Error("Failed to supersede pending proposal")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to supersede pending proposal")
	}
	rows, _ := result.RowsAffected()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Status = models.ProposalStatusPending
	p.CreatedAt = now
	p.UpdatedAt = now

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("match_proposals")
	ib.Cols("id", "tenant_id", "org_id", "project_id", "schedule_item_id", "batch_run_id", "category", "candidates", "status", "low_confidence", "created_at", "updated_at")
	ib.Values(p.ID, p.TenantID, p.OrgID, p.ProjectID, p.ScheduleItemID, p.BatchRunID, p.Category, p.Candidates, p.Status, p.LowConfidence, p.CreatedAt, p.UpdatedAt)
	query, args = ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if strings.Contains(err.Error(), "duplicate key value") {
			return 0, models.ErrConcurrencyConflict
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"item_id": p.ScheduleItemID}).Error("Failed to create pending proposal")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create pending proposal")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit proposal")
	}

	return int(rows), nil
}

// Get retrieves a proposal by ID
func (r *Repository) Get(ctx context.Context, scope models.Scope, id string) (*models.MatchProposal, error) {
	ctx, span := tracing.StartSpan(ctx, "proposal.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(proposalColumns...)
	sb.From("match_proposals")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
	)

	query, args := sb.Build()
	var p models.MatchProposal
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "proposal not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"proposal_id": id}).Error("Failed to get proposal")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get proposal")
	}

	return &p, nil
}

// Decide moves a pending proposal to approved or rejected. The UPDATE is
// conditional on status = 'pending', so a decision that lost a race, or
// targets an already decided proposal, writes nothing and the current row is
// fetched to build the right error.
func (r *Repository) Decide(ctx context.Context, scope models.Scope, id string, status models.ProposalStatus, chosenEntryID *string, actor string) (*models.MatchProposal, error) {
	ctx, span := tracing.StartSpan(ctx, "proposal.Repository.Decide")
	defer span.End()

	now := time.Now().UTC()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("match_proposals")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("chosen_entry_id", chosenEntryID),
		ub.Assign("decided_at", now),
		ub.Assign("decided_by", actor),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", scope.TenantID),
		ub.Equal("org_id", scope.OrgID),
		ub.Equal("project_id", scope.ProjectID),
		ub.Equal("status", models.ProposalStatusPending),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"proposal_id": id}).Error("Failed to decide proposal")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decide proposal")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decide proposal")
	}
	if rows == 0 {
		current, err := r.Get(ctx, scope, id)
		if err != nil {
			return nil, err
		}
		return nil, &models.AlreadyDecidedError{ProposalID: id, Status: current.Status}
	}

	return r.Get(ctx, scope, id)
}

// ItemIDsWithProposalFromBatch returns the schedule item ids that already
// have a proposal written by the given batch run. Resumed runs use this as
// the skip set.
func (r *Repository) ItemIDsWithProposalFromBatch(ctx context.Context, scope models.Scope, batchRunID string) (map[string]struct{}, error) {
	ctx, span := tracing.StartSpan(ctx, "proposal.Repository.ItemIDsWithProposalFromBatch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("schedule_item_id")
	sb.From("match_proposals")
	sb.Where(
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
		sb.Equal("batch_run_id", batchRunID),
	)

	query, args := sb.Build()
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_run_id": batchRunID}).Error("Failed to list batch item ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list batch item ids")
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// ApprovedItemIDs returns the schedule item ids whose proposal has been
// approved. Rematching never reopens these items.
func (r *Repository) ApprovedItemIDs(ctx context.Context, scope models.Scope) (map[string]struct{}, error) {
	ctx, span := tracing.StartSpan(ctx, "proposal.Repository.ApprovedItemIDs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("schedule_item_id")
	sb.From("match_proposals")
	sb.Where(
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
		sb.Equal("status", models.ProposalStatusApproved),
	)

	query, args := sb.Build()
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to list approved item ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list approved item ids")
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// ListFilter narrows the review queue listing
type ListFilter struct {
	Status        models.ProposalStatus
	Category      string
	LowConfidence *bool
	SortByScore   bool
}

// List retrieves a page of proposals for the review queue. Default order is
// newest first; SortByScore orders by the top candidate score descending so
// reviewers can work the most confident matches first.
func (r *Repository) List(ctx context.Context, scope models.Scope, filter ListFilter, page, pageSize int) (*models.ProposalListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "proposal.Repository.List")
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
		if filter.Status != "" {
			conds = append(conds, sb.Equal("status", filter.Status))
		}
		if filter.Category != "" {
			conds = append(conds, sb.Equal("category", filter.Category))
		}
		if filter.LowConfidence != nil {
			conds = append(conds, sb.Equal("low_confidence", *filter.LowConfidence))
		}
		sb.Where(conds...)
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("match_proposals")
	where(cb)
	query, args := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to count proposals")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count proposals")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(proposalColumns...)
	sb.From("match_proposals")
	where(sb)
	if filter.SortByScore {
		sb.OrderBy("(candidates->0->>'score')::float DESC NULLS LAST", "id ASC")
	} else {
		sb.OrderBy("created_at DESC", "id ASC")
	}
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	proposals := []models.MatchProposal{}
	if err := r.db.SelectContext(ctx, &proposals, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to list proposals")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list proposals")
	}

	return &models.ProposalListResponse{
		Items:      proposals,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// statusCountRow is the aggregate row for CountByStatus
type statusCountRow struct {
	Status models.ProposalStatus `db:"status"`
	Count  int                   `db:"count"`
}

// CountByStatus returns live proposal counts per status. Superseded rows are
// history, not live state, and are excluded.
func (r *Repository) CountByStatus(ctx context.Context, scope models.Scope) (map[models.ProposalStatus]int, error) {
	ctx, span := tracing.StartSpan(ctx, "proposal.Repository.CountByStatus")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("status", "COUNT(*) AS count")
	sb.From("match_proposals")
	sb.Where(
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
		sb.NotEqual("status", models.ProposalStatusSuperseded),
	)
	sb.GroupBy("status")

	query, args := sb.Build()
	rows := []statusCountRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to count proposals by status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count proposals by status")
	}

	counts := make(map[models.ProposalStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountLowConfidence returns the number of live low confidence proposals.
func (r *Repository) CountLowConfidence(ctx context.Context, scope models.Scope) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "proposal.Repository.CountLowConfidence")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("match_proposals")
	sb.Where(
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
		sb.Equal("low_confidence", true),
		sb.NotEqual("status", models.ProposalStatusSuperseded),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to count low confidence proposals")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count low confidence proposals")
	}

	return count, nil
}

// AvgApprovedTopScore returns the mean top candidate score across approved
// proposals, or 0 when none are approved.
func (r *Repository) AvgApprovedTopScore(ctx context.Context, scope models.Scope) (float64, error) {
	ctx, span := tracing.StartSpan(ctx, "proposal.Repository.AvgApprovedTopScore")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COALESCE(AVG((candidates->0->>'score')::float), 0)")
	sb.From("match_proposals")
	sb.Where(
		sb.Equal("tenant_id", scope.TenantID),
		sb.Equal("org_id", scope.OrgID),
		sb.Equal("project_id", scope.ProjectID),
		sb.Equal("status", models.ProposalStatusApproved),
	)

	query, args := sb.Build()
	var avg float64
	if err := r.db.GetContext(ctx, &avg, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(scope.LogFields()).Error("Failed to average approved top scores")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to average approved top scores")
	}

	return avg, nil
}
