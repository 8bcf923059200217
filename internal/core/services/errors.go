package services

import "errors"

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrRoundNotFound        = errors.New("round not found")
	ErrContributionNotFound = errors.New("contribution not found")

	// ErrInvalidRequest covers malformed input rejected before any state change.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSessionNotActive rejects contributions to pending or finished sessions.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrRoundClosed rejects contributions to an already completed round.
	ErrRoundClosed = errors.New("round already completed")

	// ErrDuplicateContribution enforces one contribution per contributor per round.
	ErrDuplicateContribution = errors.New("contributor already submitted for this round")

	// ErrQuorumNotMet aborts aggregation before any decrypt or verify work.
	ErrQuorumNotMet = errors.New("quorum not met")

	// ErrRoundNotPending signals a concurrent or repeated aggregation attempt;
	// only a pending round can be claimed.
	ErrRoundNotPending = errors.New("round is not pending")

	// ErrInsufficientContributions means every candidate was excluded by the
	// integrity or threshold checks. The round stays retriable.
	ErrInsufficientContributions = errors.New("no contributions survived verification")

	// ErrNotRewardable rejects reward marks on contributions that were never
	// aggregated.
	ErrNotRewardable = errors.New("contribution is not rewardable")
)
