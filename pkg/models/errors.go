package models

import (
	"errors"
	"fmt"
)

// Domain error taxonomy for the matching and review pipeline. Repositories
// and services return these; the HTTP layer maps them to status-coded
// responses.

// MalformedRecordError marks a schedule item whose description and category
// are both empty, so no comparable record can be derived. The batch skips
// the item and accounts for it in the run counters.
type MalformedRecordError struct {
	ItemID string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("schedule item %s has no description or category", e.ItemID)
}

// CandidateSetExhaustedError marks an item for which even the degraded
// fallback scan produced no candidates. Not fatal: the item still gets a
// pending proposal with an empty candidate list, flagged low confidence and
// routed straight to review.
type CandidateSetExhaustedError struct {
	ItemID string
}

func (e *CandidateSetExhaustedError) Error() string {
	return fmt.Sprintf("no price entry candidates found for schedule item %s", e.ItemID)
}

// InvalidCandidateError is returned when an approval names a price entry
// that is not on the proposal's candidate list. No state is mutated.
type InvalidCandidateError struct {
	ProposalID string
	EntryID    string
}

func (e *InvalidCandidateError) Error() string {
	return fmt.Sprintf("price entry %s is not a candidate on proposal %s", e.EntryID, e.ProposalID)
}

// AlreadyDecidedError is returned when a review operation targets a
// proposal that is no longer pending. No state is mutated.
type AlreadyDecidedError struct {
	ProposalID string
	Status     ProposalStatus
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("proposal %s is %s, not pending", e.ProposalID, e.Status)
}

// ErrConcurrencyConflict is surfaced when two writers race to create a
// pending proposal for the same item, or to decide the same proposal. The
// losing writer has made no change and may retry or abort.
var ErrConcurrencyConflict = errors.New("concurrent modification detected")

// IsRecoverableItemError reports whether an item-level error lets the batch
// continue with the remaining items.
func IsRecoverableItemError(err error) bool {
	var malformed *MalformedRecordError
	var exhausted *CandidateSetExhaustedError
	return errors.As(err, &malformed) || errors.As(err, &exhausted)
}
