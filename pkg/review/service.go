// Package review owns the proposal decision lifecycle. Every state change
// to a proposal after creation goes through this service, which is what
// keeps the review invariants in one place: decisions only land on pending
// proposals, an approval must pick a listed candidate, and a decided
// proposal is immutable.
package review

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/costwise/fern/internal/repositories/proposal"
	"github.com/costwise/fern/pkg/models"
	"github.com/costwise/fern/pkg/tracing"
)

// ProposalStore is the persistence surface the review service needs.
// *proposal.Repository implements it.
type ProposalStore interface {
	Get(ctx context.Context, scope models.Scope, id string) (*models.MatchProposal, error)
	Decide(ctx context.Context, scope models.Scope, id string, status models.ProposalStatus, chosenEntryID *string, actor string) (*models.MatchProposal, error)
	List(ctx context.Context, scope models.Scope, filter proposal.ListFilter, page, pageSize int) (*models.ProposalListResponse, error)
}

// DecisionEmitter publishes decision events. *events.Emitter implements it.
type DecisionEmitter interface {
	EmitMatchDecision(ctx context.Context, p *models.MatchProposal)
}

// Service handles review decisions on match proposals
type Service struct {
	logger       ectologger.Logger
	proposalRepo ProposalStore
	emitter      DecisionEmitter
}

// NewService creates a new review service
func NewService(logger ectologger.Logger, proposalRepo ProposalStore, emitter DecisionEmitter) *Service {
	return &Service{
		logger:       logger,
		proposalRepo: proposalRepo,
		emitter:      emitter,
	}
}

// Approve marks a pending proposal approved with the reviewer's chosen
// price entry. The chosen entry must be on the proposal's candidate list;
// otherwise InvalidCandidateError is returned and nothing changes. A
// proposal that is no longer pending returns AlreadyDecidedError.
func (s *Service) Approve(ctx context.Context, scope models.Scope, proposalID string, req models.ApproveProposalRequest) (*models.MatchProposal, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Approve")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"proposal_id": proposalID,
		"actor":       req.Actor,
	})

	p, err := s.proposalRepo.Get(ctx, scope, proposalID)
	if err != nil {
		return nil, err
	}

	if p.Status != models.ProposalStatusPending {
		return nil, &models.AlreadyDecidedError{ProposalID: proposalID, Status: p.Status}
	}
	if !p.HasCandidate(req.ChosenEntryID) {
		return nil, &models.InvalidCandidateError{ProposalID: proposalID, EntryID: req.ChosenEntryID}
	}

	decided, err := s.proposalRepo.Decide(ctx, scope, proposalID, models.ProposalStatusApproved, &req.ChosenEntryID, req.Actor)
	if err != nil {
		return nil, err
	}

	s.emitter.EmitMatchDecision(ctx, decided)
	log.WithFields(map[string]any{"chosen_entry_id": req.ChosenEntryID}).Info("Proposal approved")

	return decided, nil
}

// Reject marks a pending proposal rejected. A rejected item goes back into
// the matcher's pool: the next batch run writes a fresh pending proposal
// for it, while the rejected one stays on record and is never superseded.
func (s *Service) Reject(ctx context.Context, scope models.Scope, proposalID string, req models.RejectProposalRequest) (*models.MatchProposal, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Reject")
	defer span.End()

	p, err := s.proposalRepo.Get(ctx, scope, proposalID)
	if err != nil {
		return nil, err
	}

	if p.Status != models.ProposalStatusPending {
		return nil, &models.AlreadyDecidedError{ProposalID: proposalID, Status: p.Status}
	}

	decided, err := s.proposalRepo.Decide(ctx, scope, proposalID, models.ProposalStatusRejected, nil, req.Actor)
	if err != nil {
		return nil, err
	}

	s.emitter.EmitMatchDecision(ctx, decided)
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"proposal_id": proposalID,
		"actor":       req.Actor,
	}).Info("Proposal rejected")

	return decided, nil
}

// Get retrieves a proposal
func (s *Service) Get(ctx context.Context, scope models.Scope, proposalID string) (*models.MatchProposal, error) {
	return s.proposalRepo.Get(ctx, scope, proposalID)
}

// List retrieves a page of the review queue
func (s *Service) List(ctx context.Context, scope models.Scope, filter proposal.ListFilter, page, pageSize int) (*models.ProposalListResponse, error) {
	return s.proposalRepo.List(ctx, scope, filter, page, pageSize)
}
