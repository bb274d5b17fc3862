package workflow

import (
	"context"
	"fmt"
	"time"

	"bloodlink/pkg/types"

	"github.com/sirupsen/logrus"
)

// Emitter writes notification rows after a transition has committed. A
// failed write is logged and returned to the caller as a warning; it never
// undoes the transition.
type Emitter struct {
	writer NotificationWriter
	logger *logrus.Logger
	now    func() time.Time
}

func NewEmitter(writer NotificationWriter, logger *logrus.Logger) *Emitter {
	return &Emitter{writer: writer, logger: logger, now: time.Now}
}

func (e *Emitter) Emit(ctx context.Context, userID string, notificationType types.NotificationType, message string) error {
	if userID == "" {
		return nil
	}

	notification := &types.Notification{
		UserID:    userID,
		Type:      notificationType,
		Message:   message,
		CreatedAt: e.now(),
	}

	err := e.writer.CreateNotification(ctx, notification)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"type":    notificationType,
		}).Warn("failed to write notification")
		return fmt.Errorf("failed to notify user %s of %s: %w", userID, notificationType, err)
	}

	return nil
}

const (
	msgDonorSelected     = "You have been selected as a donor for a blood request"
	msgDonationScheduled = "Your donor has confirmed and the donation is scheduled"
	msgDonationCompleted = "The blood donation has been marked as completed"
	msgRequestApproved   = "Your blood request has been approved"
	msgRequestRejected   = "Your blood request has been rejected"
	msgDonorApproved     = "Your donor registration has been approved. You can now receive donation requests."
	msgDonorRejected     = "Your donor registration has been rejected. Please contact support for more information."
	msgDonorDeactivated  = "Your donor account has been deactivated. Please contact support to reactivate."
	msgDonorReleased     = "Your selected donor is no longer available. Please choose another donor."
	msgRequestWithdrawn  = "The blood request you were selected for has been closed"
)
