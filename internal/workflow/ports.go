package workflow

import (
	"context"

	"bloodlink/pkg/types"
)

//go:generate mockgen -source=ports.go -destination=../mocks/workflow/mock.go -package=mocks

// Reader serves the unlocked reads used for authorization checks.
type Reader interface {
	Request(ctx context.Context, requestID string) (*types.BloodRequest, error)
	Donor(ctx context.Context, donorID string) (*types.Donor, error)
}

type NotificationWriter interface {
	CreateNotification(ctx context.Context, notification *types.Notification) error
}
