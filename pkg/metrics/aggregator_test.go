package metrics

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwise/fern/pkg/models"
)

type fakeProposalStats struct {
	counts        map[models.ProposalStatus]int
	lowConfidence int
	avgTopScore   float64
}

func (f *fakeProposalStats) CountByStatus(_ context.Context, _ models.Scope) (map[models.ProposalStatus]int, error) {
	return f.counts, nil
}

func (f *fakeProposalStats) CountLowConfidence(_ context.Context, _ models.Scope) (int, error) {
	return f.lowConfidence, nil
}

func (f *fakeProposalStats) AvgApprovedTopScore(_ context.Context, _ models.Scope) (float64, error) {
	return f.avgTopScore, nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestCompute(t *testing.T) {
	stats := &fakeProposalStats{
		counts: map[models.ProposalStatus]int{
			models.ProposalStatusApproved: 6,
			models.ProposalStatusPending:  3,
			models.ProposalStatusRejected: 1,
		},
		lowConfidence: 2,
		avgTopScore:   0.8,
	}
	agg := NewAggregator(noopLogger(), stats)

	scope := models.Scope{TenantID: "tenant-1", OrgID: "org-1", ProjectID: "project-1"}
	m, err := agg.Compute(context.Background(), scope)
	require.NoError(t, err)

	assert.Equal(t, scope, m.Scope)
	assert.Equal(t, 6, m.ApprovedCount)
	assert.Equal(t, 3, m.PendingCount)
	assert.Equal(t, 1, m.RejectedCount)
	assert.Equal(t, 2, m.LowConfidenceCount)

	// Rejected counts as open work: 6 of 10 items have an approved price.
	assert.InDelta(t, 0.6, m.CompletionPct, 1e-9)
	assert.InDelta(t, 0.7*0.8+0.3*0.6, m.HealthScore, 1e-9)
	assert.False(t, m.ComputedAt.IsZero())
}

func TestComputeEmptyScope(t *testing.T) {
	agg := NewAggregator(noopLogger(), &fakeProposalStats{counts: map[models.ProposalStatus]int{}})

	m, err := agg.Compute(context.Background(), models.Scope{TenantID: "t", OrgID: "o", ProjectID: "p"})
	require.NoError(t, err)

	assert.Zero(t, m.CompletionPct)
	assert.Zero(t, m.HealthScore)
	assert.Zero(t, m.PendingCount)
}

func TestComputeNoApprovals(t *testing.T) {
	agg := NewAggregator(noopLogger(), &fakeProposalStats{
		counts: map[models.ProposalStatus]int{models.ProposalStatusPending: 4},
	})

	m, err := agg.Compute(context.Background(), models.Scope{TenantID: "t", OrgID: "o", ProjectID: "p"})
	require.NoError(t, err)

	assert.Zero(t, m.CompletionPct)
	assert.Zero(t, m.AvgApprovedTopScore)
	assert.Zero(t, m.HealthScore)
}
