package review

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwise/fern/internal/repositories/proposal"
	"github.com/costwise/fern/pkg/database"
	"github.com/costwise/fern/pkg/models"
)

var testScope = models.Scope{TenantID: "tenant-1", OrgID: "org-1", ProjectID: "project-1"}

type fakeProposalStore struct {
	proposals   map[string]*models.MatchProposal
	decideCalls int
	lastFilter  proposal.ListFilter
}

func newFakeProposalStore(proposals ...*models.MatchProposal) *fakeProposalStore {
	store := &fakeProposalStore{proposals: make(map[string]*models.MatchProposal)}
	for _, p := range proposals {
		store.proposals[p.ID] = p
	}
	return store
}

func (f *fakeProposalStore) Get(_ context.Context, _ models.Scope, id string) (*models.MatchProposal, error) {
	p, ok := f.proposals[id]
	if !ok {
		return nil, models.ErrConcurrencyConflict
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProposalStore) Decide(_ context.Context, _ models.Scope, id string, status models.ProposalStatus, chosenEntryID *string, actor string) (*models.MatchProposal, error) {
	f.decideCalls++
	p, ok := f.proposals[id]
	if !ok {
		return nil, models.ErrConcurrencyConflict
	}
	if p.Status != models.ProposalStatusPending {
		return nil, &models.AlreadyDecidedError{ProposalID: id, Status: p.Status}
	}
	now := time.Now().UTC()
	p.Status = status
	p.ChosenEntryID = chosenEntryID
	p.DecidedAt = &now
	p.DecidedBy = &actor
	copied := *p
	return &copied, nil
}

func (f *fakeProposalStore) List(_ context.Context, _ models.Scope, filter proposal.ListFilter, page, pageSize int) (*models.ProposalListResponse, error) {
	f.lastFilter = filter
	items := make([]models.MatchProposal, 0, len(f.proposals))
	for _, p := range f.proposals {
		items = append(items, *p)
	}
	return &models.ProposalListResponse{Items: items, TotalCount: len(items), Page: page, PageSize: pageSize}, nil
}

type fakeEmitter struct {
	decisions []*models.MatchProposal
}

func (f *fakeEmitter) EmitMatchDecision(_ context.Context, p *models.MatchProposal) {
	f.decisions = append(f.decisions, p)
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func pendingProposal(id string) *models.MatchProposal {
	return &models.MatchProposal{
		ID:             id,
		TenantID:       testScope.TenantID,
		OrgID:          testScope.OrgID,
		ProjectID:      testScope.ProjectID,
		ScheduleItemID: "item-1",
		BatchRunID:     "run-1",
		Status:         models.ProposalStatusPending,
		Candidates: database.JSONB[[]models.Candidate]{Data: []models.Candidate{
			{PriceEntryID: "entry-1", Score: 0.95},
			{PriceEntryID: "entry-2", Score: 0.7},
		}},
	}
}

func TestApprove(t *testing.T) {
	store := newFakeProposalStore(pendingProposal("prop-1"))
	emitter := &fakeEmitter{}
	svc := NewService(noopLogger(), store, emitter)

	decided, err := svc.Approve(context.Background(), testScope, "prop-1", models.ApproveProposalRequest{
		ChosenEntryID: "entry-2",
		Actor:         "reviewer@costwise.io",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ProposalStatusApproved, decided.Status)
	require.NotNil(t, decided.ChosenEntryID)
	assert.Equal(t, "entry-2", *decided.ChosenEntryID)
	require.NotNil(t, decided.DecidedBy)
	assert.Equal(t, "reviewer@costwise.io", *decided.DecidedBy)
	assert.NotNil(t, decided.DecidedAt)

	require.Len(t, emitter.decisions, 1)
	assert.Equal(t, "prop-1", emitter.decisions[0].ID)
}

func TestApproveRejectsUnlistedCandidate(t *testing.T) {
	store := newFakeProposalStore(pendingProposal("prop-1"))
	emitter := &fakeEmitter{}
	svc := NewService(noopLogger(), store, emitter)

	_, err := svc.Approve(context.Background(), testScope, "prop-1", models.ApproveProposalRequest{
		ChosenEntryID: "entry-99",
		Actor:         "reviewer@costwise.io",
	})
	require.Error(t, err)

	var invalid *models.InvalidCandidateError
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, "entry-99", invalid.EntryID)

	// Nothing was mutated or emitted.
	assert.Equal(t, 0, store.decideCalls)
	assert.Empty(t, emitter.decisions)
	assert.Equal(t, models.ProposalStatusPending, store.proposals["prop-1"].Status)
}

func TestApproveAlreadyDecided(t *testing.T) {
	p := pendingProposal("prop-1")
	p.Status = models.ProposalStatusRejected
	store := newFakeProposalStore(p)
	emitter := &fakeEmitter{}
	svc := NewService(noopLogger(), store, emitter)

	_, err := svc.Approve(context.Background(), testScope, "prop-1", models.ApproveProposalRequest{
		ChosenEntryID: "entry-1",
		Actor:         "reviewer@costwise.io",
	})
	require.Error(t, err)

	var decidedErr *models.AlreadyDecidedError
	require.ErrorAs(t, err, &decidedErr)
	assert.Equal(t, models.ProposalStatusRejected, decidedErr.Status)
	assert.Equal(t, 0, store.decideCalls)
	assert.Empty(t, emitter.decisions)
}

func TestReject(t *testing.T) {
	store := newFakeProposalStore(pendingProposal("prop-1"))
	emitter := &fakeEmitter{}
	svc := NewService(noopLogger(), store, emitter)

	decided, err := svc.Reject(context.Background(), testScope, "prop-1", models.RejectProposalRequest{
		Actor: "reviewer@costwise.io",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ProposalStatusRejected, decided.Status)
	assert.Nil(t, decided.ChosenEntryID)
	require.Len(t, emitter.decisions, 1)
	assert.Equal(t, models.ProposalStatusRejected, emitter.decisions[0].Status)
}

func TestListPassesFilterThrough(t *testing.T) {
	store := newFakeProposalStore(pendingProposal("prop-1"))
	svc := NewService(noopLogger(), store, &fakeEmitter{})

	lowConfidence := true
	filter := proposal.ListFilter{
		Status:        models.ProposalStatusPending,
		Category:      "Structural Steel",
		LowConfidence: &lowConfidence,
	}
	resp, err := svc.List(context.Background(), testScope, filter, 1, 50)

	require.NoError(t, err)
	assert.Equal(t, filter, store.lastFilter)
	assert.Equal(t, 1, resp.TotalCount)
}

func TestRejectAlreadyDecided(t *testing.T) {
	p := pendingProposal("prop-1")
	p.Status = models.ProposalStatusApproved
	store := newFakeProposalStore(p)
	svc := NewService(noopLogger(), store, &fakeEmitter{})

	_, err := svc.Reject(context.Background(), testScope, "prop-1", models.RejectProposalRequest{Actor: "reviewer@costwise.io"})

	var decidedErr *models.AlreadyDecidedError
	require.ErrorAs(t, err, &decidedErr)
	assert.Equal(t, 0, store.decideCalls)
}
