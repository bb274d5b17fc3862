package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bloodlink/internal/matching"
	"bloodlink/pkg/types"

	"github.com/sirupsen/logrus"
)

// Outcome is the committed state of the rows a transition touched.
// Warnings holds notification failures, which never roll a transition back.
type Outcome struct {
	Request  *types.BloodRequest `json:"request,omitempty"`
	Donor    *types.Donor        `json:"donor,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

func (o *Outcome) warn(err error) {
	if err != nil {
		o.Warnings = append(o.Warnings, err.Error())
	}
}

type notice struct {
	userID  string
	kind    types.NotificationType
	message string
}

// Machine applies request and donor transitions. Every transition locks the
// rows it touches, re-checks its preconditions under the lock and writes in
// one transaction. Notifications go out after commit.
//
// SelectDonor locks request then donor. RejectDonor and DeactivateDonor lock
// donor then request. The store reports a deadlock between the two as
// types.ErrConflict.
type Machine struct {
	tx      Transactor
	emitter *Emitter
	logger  *logrus.Logger
	now     func() time.Time
}

func NewMachine(tx Transactor, emitter *Emitter, logger *logrus.Logger) *Machine {
	return &Machine{
		tx:      tx,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
	}
}

func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// SelectDonor commits donorID to requestID and moves the request to matched.
func (m *Machine) SelectDonor(ctx context.Context, requestID, donorID string) (*Outcome, error) {

	var out = new(Outcome)
	var notices []notice

	err := m.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {

		req, err := tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}

		switch {
		case req.Status == types.RequestStatusMatched, req.Status == types.RequestStatusPendingDonation:
			// Lost to a concurrent selection; the caller re-fetches candidates.
			return fmt.Errorf("request %s is already %s: %w", req.ID, req.Status, types.ErrConflict)
		case !matching.Selectable(req.Status):
			return requestTransitionError(req.ID, req.Status, types.RequestStatusMatched)
		}

		donor, err := tx.DonorForUpdate(ctx, donorID)
		if err != nil {
			return err
		}

		commitments, err := tx.Commitments(ctx, []string{donor.ID})
		if err != nil {
			return err
		}

		err = matching.CheckEligibility(req, donor, commitments, m.now())
		if err != nil {
			return fmt.Errorf("donor %s cannot take request %s: %w: %w", donor.ID, req.ID, types.ErrConflict, err)
		}

		if req.HasSelectedDonor() && *req.SelectedDonorID != donor.ID {
			// Only reachable for inconsistent rows; a selectable request never
			// holds a donor.
			return fmt.Errorf("request %s already has donor %s: %w", req.ID, *req.SelectedDonorID, types.ErrConflict)
		}

		err = tx.ClaimDonor(ctx, donor.ID, req.ID, donor.CurrentRequestID)
		if err != nil {
			return err
		}

		status := types.RequestStatusMatched
		update := types.RequestUpdate{Status: &status, SelectedDonorID: &donor.ID}
		err = tx.UpdateRequest(ctx, req.ID, update)
		if err != nil {
			return err
		}

		update.Apply(req)
		donor.CurrentRequestID = &req.ID

		out.Request, out.Donor = req, donor
		notices = append(notices, notice{donor.UserID, types.NotificationDonorSelected, msgDonorSelected})
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"donor_id":   donorID,
	}).Info("donor selected")

	m.notify(ctx, out, notices)
	return out, nil
}

// ScheduleDonation records that the selected donor confirmed and moves a
// matched request to pending_donation.
func (m *Machine) ScheduleDonation(ctx context.Context, requestID string) (*Outcome, error) {

	var out = new(Outcome)
	var notices []notice

	err := m.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {

		req, err := tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}

		if req.Status != types.RequestStatusMatched {
			return requestTransitionError(req.ID, req.Status, types.RequestStatusPendingDonation)
		}

		status := types.RequestStatusPendingDonation
		update := types.RequestUpdate{Status: &status}
		err = tx.UpdateRequest(ctx, req.ID, update)
		if err != nil {
			return err
		}

		update.Apply(req)
		out.Request = req
		notices = append(notices, notice{req.UserID, types.NotificationDonationScheduled, msgDonationScheduled})
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.notify(ctx, out, notices)
	return out, nil
}

// CompleteDonation closes a matched or pending_donation request, frees its
// donor and stamps the donor's last donation date.
func (m *Machine) CompleteDonation(ctx context.Context, requestID string) (*Outcome, error) {

	var out = new(Outcome)
	var notices []notice

	err := m.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {

		req, err := tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}

		if req.Status != types.RequestStatusMatched && req.Status != types.RequestStatusPendingDonation {
			return requestTransitionError(req.ID, req.Status, types.RequestStatusCompleted)
		}

		if !req.HasSelectedDonor() {
			return fmt.Errorf("request %s is %s without a selected donor: %w", req.ID, req.Status, types.ErrConflict)
		}

		donor, err := tx.DonorForUpdate(ctx, *req.SelectedDonorID)
		if err != nil {
			return err
		}

		status := types.RequestStatusCompleted
		reqUpdate := types.RequestUpdate{Status: &status}
		err = tx.UpdateRequest(ctx, req.ID, reqUpdate)
		if err != nil {
			return err
		}

		today := dateOf(m.now())
		donorUpdate := types.DonorUpdate{ClearCurrentRequest: true, LastDonationDate: &today}
		err = tx.UpdateDonor(ctx, donor.ID, donorUpdate)
		if err != nil {
			return err
		}

		reqUpdate.Apply(req)
		donorUpdate.Apply(donor)

		out.Request, out.Donor = req, donor
		notices = append(notices,
			notice{req.UserID, types.NotificationDonationCompleted, msgDonationCompleted},
			notice{donor.UserID, types.NotificationDonationCompleted, msgDonationCompleted},
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithField("request_id", requestID).Info("donation completed")

	m.notify(ctx, out, notices)
	return out, nil
}

func (m *Machine) ApproveRequest(ctx context.Context, requestID string) (*Outcome, error) {

	var out = new(Outcome)
	var notices []notice

	err := m.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {

		req, err := tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}

		if req.Status != types.RequestStatusPending {
			return requestTransitionError(req.ID, req.Status, types.RequestStatusApproved)
		}

		status := types.RequestStatusApproved
		update := types.RequestUpdate{Status: &status}
		err = tx.UpdateRequest(ctx, req.ID, update)
		if err != nil {
			return err
		}

		update.Apply(req)
		out.Request = req
		notices = append(notices, notice{req.UserID, types.NotificationRequestApproved, msgRequestApproved})
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.notify(ctx, out, notices)
	return out, nil
}

// RejectRequest closes any open request. A donor committed to it is freed.
func (m *Machine) RejectRequest(ctx context.Context, requestID string) (*Outcome, error) {
	return m.closeRequest(ctx, requestID, true)
}

// WithdrawRequest closes a request on its owner's behalf. It follows the
// reject path but the owner is not notified of their own action.
func (m *Machine) WithdrawRequest(ctx context.Context, requestID string) (*Outcome, error) {
	return m.closeRequest(ctx, requestID, false)
}

func (m *Machine) closeRequest(ctx context.Context, requestID string, notifyOwner bool) (*Outcome, error) {

	var out = new(Outcome)
	var notices []notice

	err := m.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {

		req, err := tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}

		if !CanTransitionRequest(req.Status, types.RequestStatusRejected) {
			return requestTransitionError(req.ID, req.Status, types.RequestStatusRejected)
		}

		if req.HasSelectedDonor() {
			donor, err := tx.DonorForUpdate(ctx, *req.SelectedDonorID)
			switch {
			case errors.Is(err, types.ErrNotFound):
				m.logger.WithField("request_id", req.ID).Warn("selected donor of rejected request is missing")
			case err != nil:
				return err
			case donor.Committed() && *donor.CurrentRequestID == req.ID:
				update := types.DonorUpdate{ClearCurrentRequest: true}
				err = tx.UpdateDonor(ctx, donor.ID, update)
				if err != nil {
					return err
				}
				update.Apply(donor)
				out.Donor = donor
				notices = append(notices, notice{donor.UserID, types.NotificationDonorReleased, msgRequestWithdrawn})
			}
		}

		status := types.RequestStatusRejected
		update := types.RequestUpdate{Status: &status}
		err = tx.UpdateRequest(ctx, req.ID, update)
		if err != nil {
			return err
		}

		update.Apply(req)
		out.Request = req
		if notifyOwner {
			notices = append(notices, notice{req.UserID, types.NotificationRequestRejected, msgRequestRejected})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.notify(ctx, out, notices)
	return out, nil
}

func (m *Machine) ApproveDonor(ctx context.Context, donorID string) (*Outcome, error) {
	return m.setDonorStatus(ctx, donorID, types.DonorStatusActive, types.NotificationDonorApproved, msgDonorApproved)
}

// RejectDonor marks the donor rejected and releases any request it holds.
func (m *Machine) RejectDonor(ctx context.Context, donorID string) (*Outcome, error) {
	return m.setDonorStatus(ctx, donorID, types.DonorStatusRejected, types.NotificationDonorRejected, msgDonorRejected)
}

// DeactivateDonor marks the donor inactive and releases any request it holds.
func (m *Machine) DeactivateDonor(ctx context.Context, donorID string) (*Outcome, error) {
	return m.setDonorStatus(ctx, donorID, types.DonorStatusInactive, types.NotificationDonorDeactivated, msgDonorDeactivated)
}

func (m *Machine) setDonorStatus(ctx context.Context, donorID string, target types.DonorStatus, kind types.NotificationType, message string) (*Outcome, error) {

	var out = new(Outcome)
	var notices []notice

	err := m.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {

		donor, err := tx.DonorForUpdate(ctx, donorID)
		if err != nil {
			return err
		}

		if !CanTransitionDonor(donor.Status, target) {
			return donorTransitionError(donor.ID, donor.Status, target)
		}

		update := types.DonorUpdate{Status: &target}

		if target != types.DonorStatusActive {
			released, err := m.release(ctx, tx, donor)
			if err != nil {
				return err
			}
			if released != nil {
				out.Request = released
				notices = append(notices, notice{released.UserID, types.NotificationDonorReleased, msgDonorReleased})
			}
			if donor.Committed() {
				update.ClearCurrentRequest = true
			}
		}

		err = tx.UpdateDonor(ctx, donor.ID, update)
		if err != nil {
			return err
		}

		update.Apply(donor)
		out.Donor = donor
		notices = append(notices, notice{donor.UserID, kind, message})
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"donor_id": donorID,
		"status":   target,
	}).Info("donor status changed")

	m.notify(ctx, out, notices)
	return out, nil
}

// release returns the open request holding donor to approved with no
// selected donor. It returns nil when the donor holds nothing.
func (m *Machine) release(ctx context.Context, tx Tx, donor *types.Donor) (*types.BloodRequest, error) {

	commitments, err := tx.Commitments(ctx, []string{donor.ID})
	if err != nil {
		return nil, err
	}

	requestID, ok := commitments[donor.ID]
	if !ok && donor.Committed() {
		requestID, ok = *donor.CurrentRequestID, true
	}
	if !ok {
		return nil, nil
	}

	req, err := tx.RequestForUpdate(ctx, requestID)
	if errors.Is(err, types.ErrNotFound) {
		m.logger.WithFields(logrus.Fields{
			"donor_id":   donor.ID,
			"request_id": requestID,
		}).Warn("donor points at a missing request")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if req.Status.Terminal() || !req.HasSelectedDonor() || *req.SelectedDonorID != donor.ID {
		return nil, nil
	}

	status := types.RequestStatusApproved
	update := types.RequestUpdate{Status: &status, ClearSelectedDonor: true}
	err = tx.UpdateRequest(ctx, req.ID, update)
	if err != nil {
		return nil, err
	}

	update.Apply(req)
	return req, nil
}

func (m *Machine) notify(ctx context.Context, out *Outcome, notices []notice) {
	for _, n := range notices {
		out.warn(m.emitter.Emit(ctx, n.userID, n.kind, n.message))
	}
}

func dateOf(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
