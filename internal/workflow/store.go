package workflow

import (
	"context"

	"bloodlink/internal/matching"
	"bloodlink/pkg/types"
)

// Tx is the datastore as seen from inside one transaction. Rows read with
// the ForUpdate methods stay locked until the transaction ends.
type Tx interface {
	RequestForUpdate(ctx context.Context, requestID string) (*types.BloodRequest, error)
	DonorForUpdate(ctx context.Context, donorID string) (*types.Donor, error)
	Commitments(ctx context.Context, donorIDs []string) (matching.Commitments, error)
	UpdateRequest(ctx context.Context, requestID string, update types.RequestUpdate) error
	UpdateDonor(ctx context.Context, donorID string, update types.DonorUpdate) error

	// ClaimDonor points the donor at requestID only if its current request
	// still equals expected (nil meaning unset). Otherwise it returns
	// types.ErrDonorClaimed.
	ClaimDonor(ctx context.Context, donorID, requestID string, expected *string) error
}

// Transactor runs fn in a single transaction, committing when fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
