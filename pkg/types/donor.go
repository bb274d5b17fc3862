package types

import (
	"fmt"
	"time"
)

type DonorStatus string

const (
	DonorStatusPending  DonorStatus = "pending"
	DonorStatusActive   DonorStatus = "active"
	DonorStatusInactive DonorStatus = "inactive"
	DonorStatusRejected DonorStatus = "rejected"
)

func (s DonorStatus) Valid() bool {
	switch s {
	case DonorStatusPending, DonorStatusActive, DonorStatusInactive, DonorStatusRejected:
		return true
	}
	return false
}

type Donor struct {
	ID     string `db:"id" json:"id"`
	UserID string `db:"user_id" json:"userId"`

	Location

	BloodType         string      `db:"blood_type" json:"bloodType"`
	DateOfBirth       time.Time   `db:"date_of_birth" json:"dateOfBirth"`
	WeightKg          float64     `db:"weight_kg" json:"weightKg"`
	HealthConditions  []string    `db:"health_conditions" json:"healthConditions"`
	AvailabilityTime  string      `db:"availability_time" json:"availabilityTime"`
	LastDonationDate  *time.Time  `db:"last_donation_date" json:"lastDonationDate,omitempty"`
	DonationGapMonths int         `db:"donation_gap_months" json:"donationGapMonths"`
	Status            DonorStatus `db:"status" json:"status"`
	CurrentRequestID  *string     `db:"current_request_id" json:"currentRequestId,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updatedAt"`
}

// Committed reports whether the donor currently holds a request.
func (d *Donor) Committed() bool {
	return d.CurrentRequestID != nil && *d.CurrentRequestID != ""
}

// DonorUpdate is the only way the workflow mutates a donor row. Nil fields
// are left untouched.
type DonorUpdate struct {
	Status              *DonorStatus
	CurrentRequestID    *string
	ClearCurrentRequest bool
	LastDonationDate    *time.Time
}

func (u DonorUpdate) IsEmpty() bool {
	return u.Status == nil && u.CurrentRequestID == nil && !u.ClearCurrentRequest && u.LastDonationDate == nil
}

func (u DonorUpdate) Validate() error {
	if u.IsEmpty() {
		return fmt.Errorf("empty donor update: %w", ErrInvalidInput)
	}
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("unknown donor status %q: %w", *u.Status, ErrInvalidInput)
	}
	if u.CurrentRequestID != nil && u.ClearCurrentRequest {
		return fmt.Errorf("donor update both sets and clears current request: %w", ErrInvalidInput)
	}
	if u.CurrentRequestID != nil && *u.CurrentRequestID == "" {
		return fmt.Errorf("donor update sets an empty current request: %w", ErrInvalidInput)
	}
	return nil
}

// Apply copies the update onto d. Stores use it to keep returned rows in
// sync with what they wrote.
func (u DonorUpdate) Apply(d *Donor) {
	if u.Status != nil {
		d.Status = *u.Status
	}
	if u.CurrentRequestID != nil {
		id := *u.CurrentRequestID
		d.CurrentRequestID = &id
	}
	if u.ClearCurrentRequest {
		d.CurrentRequestID = nil
	}
	if u.LastDonationDate != nil {
		t := *u.LastDonationDate
		d.LastDonationDate = &t
	}
}
