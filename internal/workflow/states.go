package workflow

import (
	"fmt"
	"slices"

	"bloodlink/pkg/types"
)

var requestTransitions = map[types.RequestStatus][]types.RequestStatus{
	types.RequestStatusPending: {
		types.RequestStatusApproved,
		types.RequestStatusRejected,
		types.RequestStatusMatched,
	},
	types.RequestStatusApproved: {
		types.RequestStatusMatched,
		types.RequestStatusRejected,
	},
	// matched and pending_donation fall back to approved when their donor
	// is released by an admin action on the donor.
	types.RequestStatusMatched: {
		types.RequestStatusPendingDonation,
		types.RequestStatusCompleted,
		types.RequestStatusRejected,
		types.RequestStatusApproved,
	},
	types.RequestStatusPendingDonation: {
		types.RequestStatusCompleted,
		types.RequestStatusRejected,
		types.RequestStatusApproved,
	},
}

var donorTransitions = map[types.DonorStatus][]types.DonorStatus{
	types.DonorStatusPending: {
		types.DonorStatusActive,
		types.DonorStatusRejected,
	},
	types.DonorStatusActive: {
		types.DonorStatusInactive,
		types.DonorStatusRejected,
	},
	types.DonorStatusInactive: {
		types.DonorStatusActive,
		types.DonorStatusRejected,
	},
	types.DonorStatusRejected: {
		types.DonorStatusActive,
	},
}

func CanTransitionRequest(from, to types.RequestStatus) bool {
	return slices.Contains(requestTransitions[from], to)
}

func CanTransitionDonor(from, to types.DonorStatus) bool {
	return slices.Contains(donorTransitions[from], to)
}

func requestTransitionError(requestID string, from, to types.RequestStatus) error {
	return fmt.Errorf("request %s cannot move from %s to %s: %w", requestID, from, to, types.ErrInvalidStateTransition)
}

func donorTransitionError(donorID string, from, to types.DonorStatus) error {
	return fmt.Errorf("donor %s cannot move from %s to %s: %w", donorID, from, to, types.ErrInvalidStateTransition)
}
