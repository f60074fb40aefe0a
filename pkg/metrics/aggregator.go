// Package metrics derives match-health reporting from the live proposal
// state. Nothing here is cached; every read recomputes from the proposals
// so decisions are reflected immediately.
package metrics

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/costwise/fern/pkg/tracing"

	"github.com/costwise/fern/pkg/models"
)

const (
	confidenceWeight = 0.7
	completionWeight = 0.3
)

// ProposalStats is the aggregate query surface the aggregator needs.
// *proposal.Repository implements it.
type ProposalStats interface {
	CountByStatus(ctx context.Context, scope models.Scope) (map[models.ProposalStatus]int, error)
	CountLowConfidence(ctx context.Context, scope models.Scope) (int, error)
	AvgApprovedTopScore(ctx context.Context, scope models.Scope) (float64, error)
}

// Aggregator computes per-scope match metrics
type Aggregator struct {
	logger       ectologger.Logger
	proposalRepo ProposalStats
}

// NewAggregator creates a new metrics aggregator
func NewAggregator(logger ectologger.Logger, proposalRepo ProposalStats) *Aggregator {
	return &Aggregator{
		logger:       logger,
		proposalRepo: proposalRepo,
	}
}

// Compute derives the scope's current metrics from its live proposals.
// Superseded proposals are history and never counted.
//
// Completion is approved over approved plus pending plus rejected. A
// rejected proposal counts as open work, not progress: the item still has
// no price. Health blends the average approved top score with completion
// so a project that approves weak matches reads unhealthier than one
// approving strong ones.
func (a *Aggregator) Compute(ctx context.Context, scope models.Scope) (*models.MatchMetrics, error) {
	ctx, span := tracing.StartSpan(ctx, "metrics.Aggregator.Compute")
	defer span.End()

	counts, err := a.proposalRepo.CountByStatus(ctx, scope)
	if err != nil {
		return nil, err
	}

	lowConfidence, err := a.proposalRepo.CountLowConfidence(ctx, scope)
	if err != nil {
		return nil, err
	}

	avgTop, err := a.proposalRepo.AvgApprovedTopScore(ctx, scope)
	if err != nil {
		return nil, err
	}

	m := &models.MatchMetrics{
		Scope:               scope,
		PendingCount:        counts[models.ProposalStatusPending],
		ApprovedCount:       counts[models.ProposalStatusApproved],
		RejectedCount:       counts[models.ProposalStatusRejected],
		LowConfidenceCount:  lowConfidence,
		AvgApprovedTopScore: avgTop,
		ComputedAt:          time.Now().UTC(),
	}

	total := m.ApprovedCount + m.PendingCount + m.RejectedCount
	if total > 0 {
		m.CompletionPct = float64(m.ApprovedCount) / float64(total)
	}
	m.HealthScore = confidenceWeight*m.AvgApprovedTopScore + completionWeight*m.CompletionPct

	a.logger.WithContext(ctx).WithFields(scope.LogFields()).WithFields(map[string]any{
		"completion_pct": m.CompletionPct,
		"health_score":   m.HealthScore,
	}).Debug("Computed match metrics")

	return m, nil
}
