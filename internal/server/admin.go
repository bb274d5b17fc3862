package server

import (
	"context"
	"fmt"
	"net/http"

	"bloodlink/internal/workflow"
	"bloodlink/pkg/types"
)

func (s *Service) handleAdminListRequests(w http.ResponseWriter, r *http.Request) {
	status := types.RequestStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		s.handleError(w, r, fmt.Errorf("unknown request status %q: %w", status, types.ErrInvalidInput), "invalid status filter")
		return
	}

	requests, err := s.requestRepo.RequestsByStatus(r.Context(), status)
	if err != nil {
		s.handleError(w, r, err, "failed to list requests")
		return
	}

	s.writeData(w, http.StatusOK, requests)
}

func (s *Service) handleAdminListDonors(w http.ResponseWriter, r *http.Request) {
	status := types.DonorStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		s.handleError(w, r, fmt.Errorf("unknown donor status %q: %w", status, types.ErrInvalidInput), "invalid status filter")
		return
	}

	donors, err := s.donorRepo.ListByStatus(r.Context(), status)
	if err != nil {
		s.handleError(w, r, err, "failed to list donors")
		return
	}

	views := make([]donorView, len(donors))
	for i, d := range donors {
		views[i] = newDonorView(d)
	}

	s.writeData(w, http.StatusOK, views)
}

func (s *Service) handleAdminAssignDonor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var form selectDonorForm
	if err := decodeForm(r, &form, maxJSONBodySize); err != nil {
		s.handleError(w, r, err, "failed to decode donor assignment")
		return
	}

	outcome, err := s.matcher.AdminAssign(ctx, r.PathValue("requestID"), form.DonorID)
	if err != nil {
		s.handleError(w, r, err, "failed to assign donor")
		return
	}

	s.writeOutcome(w, outcome)
}

type transitionFunc func(ctx context.Context, id string) (*workflow.Outcome, error)

// transition adapts a single id workflow call into a handler. param names
// the route parameter holding the id.
func (s *Service) transition(param, msg string, fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		outcome, err := fn(ctx, r.PathValue(param))
		if err != nil {
			s.handleError(w, r, err, msg)
			return
		}

		s.writeOutcome(w, outcome)
	}
}

func (s *Service) handleAdminApproveRequest(w http.ResponseWriter, r *http.Request) {
	s.transition("requestID", "failed to approve request", s.matcher.ApproveRequest)(w, r)
}

func (s *Service) handleAdminRejectRequest(w http.ResponseWriter, r *http.Request) {
	s.transition("requestID", "failed to reject request", s.matcher.RejectRequest)(w, r)
}

func (s *Service) handleAdminApproveDonor(w http.ResponseWriter, r *http.Request) {
	s.transition("donorID", "failed to approve donor", s.matcher.ApproveDonor)(w, r)
}

func (s *Service) handleAdminRejectDonor(w http.ResponseWriter, r *http.Request) {
	s.transition("donorID", "failed to reject donor", s.matcher.RejectDonor)(w, r)
}

func (s *Service) handleAdminDeactivateDonor(w http.ResponseWriter, r *http.Request) {
	s.transition("donorID", "failed to deactivate donor", s.matcher.DeactivateDonor)(w, r)
}
