package types

import (
	"fmt"
	"time"
)

type RequestStatus string

const (
	RequestStatusPending         RequestStatus = "pending"
	RequestStatusApproved        RequestStatus = "approved"
	RequestStatusRejected        RequestStatus = "rejected"
	RequestStatusMatched         RequestStatus = "matched"
	RequestStatusPendingDonation RequestStatus = "pending_donation"
	RequestStatusCompleted       RequestStatus = "completed"
)

// TerminalRequestStatuses never transition again. A donor selected on a
// request in one of these states is free.
var TerminalRequestStatuses = []RequestStatus{RequestStatusCompleted, RequestStatusRejected}

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected,
		RequestStatusMatched, RequestStatusPendingDonation, RequestStatusCompleted:
		return true
	}
	return false
}

func (s RequestStatus) Terminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusRejected
}

// BloodRequest is a receiver's request for blood.
type BloodRequest struct {
	ID     string `db:"id" json:"id"`
	UserID string `db:"user_id" json:"userId"`

	Location

	PatientName     string        `db:"patient_name" json:"patientName"`
	BloodType       string        `db:"blood_type" json:"bloodType"`
	Age             int           `db:"age" json:"age"`
	PhoneNumber     string        `db:"phone_number" json:"phoneNumber"`
	Reason          string        `db:"reason" json:"reason"`
	PrescriptionKey *string       `db:"prescription_key" json:"-"`
	Status          RequestStatus `db:"status" json:"status"`
	SelectedDonorID *string       `db:"selected_donor_id" json:"selectedDonorId,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
}

func (r *BloodRequest) HasSelectedDonor() bool {
	return r.SelectedDonorID != nil && *r.SelectedDonorID != ""
}

// RequestUpdate is the only way the workflow mutates a request row. Nil
// fields are left untouched.
type RequestUpdate struct {
	Status             *RequestStatus
	SelectedDonorID    *string
	ClearSelectedDonor bool
}

func (u RequestUpdate) IsEmpty() bool {
	return u.Status == nil && u.SelectedDonorID == nil && !u.ClearSelectedDonor
}

func (u RequestUpdate) Validate() error {
	if u.IsEmpty() {
		return fmt.Errorf("empty request update: %w", ErrInvalidInput)
	}
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("unknown request status %q: %w", *u.Status, ErrInvalidInput)
	}
	if u.SelectedDonorID != nil && u.ClearSelectedDonor {
		return fmt.Errorf("request update both sets and clears selected donor: %w", ErrInvalidInput)
	}
	if u.SelectedDonorID != nil && *u.SelectedDonorID == "" {
		return fmt.Errorf("request update selects an empty donor: %w", ErrInvalidInput)
	}
	return nil
}

func (u RequestUpdate) Apply(r *BloodRequest) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.SelectedDonorID != nil {
		id := *u.SelectedDonorID
		r.SelectedDonorID = &id
	}
	if u.ClearSelectedDonor {
		r.SelectedDonorID = nil
	}
}
