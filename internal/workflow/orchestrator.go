package workflow

import (
	"context"
	"fmt"
	"iter"

	"bloodlink/internal/matching"
	"bloodlink/pkg/types"

	"github.com/sirupsen/logrus"
)

// Actor is the authenticated caller of an orchestrated operation.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// Orchestrator is the entry point the HTTP layer and CLI use. It checks who
// may act on a request and hands the transition itself to the Machine.
type Orchestrator struct {
	machine *Machine
	finder  *matching.Finder
	reader  Reader
	logger  *logrus.Logger
}

func NewOrchestrator(machine *Machine, finder *matching.Finder, reader Reader, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		machine: machine,
		finder:  finder,
		reader:  reader,
		logger:  logger,
	}
}

// FindCandidates returns the ranked candidates for a request. Admins may
// search any request, receivers only their own.
func (o *Orchestrator) FindCandidates(ctx context.Context, requestID string, actor Actor) (iter.Seq[matching.Candidate], error) {

	req, err := o.reader.Request(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if !actor.IsAdmin && req.UserID != actor.UserID {
		return nil, forbidden(actor, req)
	}

	return o.finder.CandidatesFor(ctx, req)
}

// AdminAssign selects a donor on behalf of the receiver.
func (o *Orchestrator) AdminAssign(ctx context.Context, requestID, donorID string) (*Outcome, error) {
	return o.machine.SelectDonor(ctx, requestID, donorID)
}

// ReceiverSelfSelect lets the owner of a request pick its donor.
func (o *Orchestrator) ReceiverSelfSelect(ctx context.Context, requestID, donorID, userID string) (*Outcome, error) {

	req, err := o.reader.Request(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.UserID != userID {
		o.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"user_id":    userID,
		}).Warn("receiver tried to select a donor for a request they do not own")
		return nil, forbidden(Actor{UserID: userID}, req)
	}

	return o.machine.SelectDonor(ctx, requestID, donorID)
}

// ScheduleDonation may be called by an admin or by the user behind the
// selected donor.
func (o *Orchestrator) ScheduleDonation(ctx context.Context, requestID string, actor Actor) (*Outcome, error) {

	if !actor.IsAdmin {
		req, err := o.reader.Request(ctx, requestID)
		if err != nil {
			return nil, err
		}

		if !req.HasSelectedDonor() {
			return nil, requestTransitionError(req.ID, req.Status, types.RequestStatusPendingDonation)
		}

		donor, err := o.reader.Donor(ctx, *req.SelectedDonorID)
		if err != nil {
			return nil, err
		}

		if donor.UserID != actor.UserID {
			return nil, forbidden(actor, req)
		}
	}

	return o.machine.ScheduleDonation(ctx, requestID)
}

// CompleteDonation may be called by an admin or by the receiver who owns
// the request.
func (o *Orchestrator) CompleteDonation(ctx context.Context, requestID string, actor Actor) (*Outcome, error) {

	if !actor.IsAdmin {
		req, err := o.reader.Request(ctx, requestID)
		if err != nil {
			return nil, err
		}

		if req.UserID != actor.UserID {
			return nil, forbidden(actor, req)
		}
	}

	return o.machine.CompleteDonation(ctx, requestID)
}

// WithdrawRequest lets the owner of a request close it. The request is kept
// as rejected and a committed donor is released.
func (o *Orchestrator) WithdrawRequest(ctx context.Context, requestID string, actor Actor) (*Outcome, error) {

	req, err := o.reader.Request(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.UserID != actor.UserID {
		return nil, forbidden(actor, req)
	}

	return o.machine.WithdrawRequest(ctx, requestID)
}

func (o *Orchestrator) ApproveRequest(ctx context.Context, requestID string) (*Outcome, error) {
	return o.machine.ApproveRequest(ctx, requestID)
}

func (o *Orchestrator) RejectRequest(ctx context.Context, requestID string) (*Outcome, error) {
	return o.machine.RejectRequest(ctx, requestID)
}

func (o *Orchestrator) ApproveDonor(ctx context.Context, donorID string) (*Outcome, error) {
	return o.machine.ApproveDonor(ctx, donorID)
}

func (o *Orchestrator) RejectDonor(ctx context.Context, donorID string) (*Outcome, error) {
	return o.machine.RejectDonor(ctx, donorID)
}

func (o *Orchestrator) DeactivateDonor(ctx context.Context, donorID string) (*Outcome, error) {
	return o.machine.DeactivateDonor(ctx, donorID)
}

func forbidden(actor Actor, req *types.BloodRequest) error {
	return fmt.Errorf("user %s does not own request %s: %w", actor.UserID, req.ID, types.ErrForbidden)
}
