package types

import "time"

type NotificationType string

const (
	NotificationDonorSelected     NotificationType = "donor_selected"
	NotificationDonationScheduled NotificationType = "donation_scheduled"
	NotificationDonationCompleted NotificationType = "donation_completed"
	NotificationRequestApproved   NotificationType = "request_approved"
	NotificationRequestRejected   NotificationType = "request_rejected"
	NotificationDonorApproved     NotificationType = "donor_approved"
	NotificationDonorRejected     NotificationType = "donor_rejected"
	NotificationDonorDeactivated  NotificationType = "donor_deactivated"
	NotificationDonorReleased     NotificationType = "donor_released"
)

type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"userId"`
	Type      NotificationType `db:"type" json:"type"`
	Message   string           `db:"message" json:"message"`
	IsRead    bool             `db:"is_read" json:"isRead"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
	ReadAt    *time.Time       `db:"read_at" json:"readAt,omitempty"`
}
