package server

import (
	"net/http"
	"time"

	"bloodlink/internal/matching"
	"bloodlink/internal/utils"
	"bloodlink/pkg/types"

	"github.com/sirupsen/logrus"
)

type donorView struct {
	*types.Donor
	NextEligibleDate *time.Time `json:"nextEligibleDate,omitempty"`
}

func newDonorView(donor *types.Donor) donorView {
	return donorView{Donor: donor, NextEligibleDate: matching.NextEligibleDate(donor)}
}

// handlePostDonor registers the caller as a pending donor. Name and phone
// number on the form update the caller's profile.
func (s *Service) handlePostDonor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.internalServerError(w, r)
		return
	}

	var form donorForm
	if err := decodeForm(r, &form, maxJSONBodySize); err != nil {
		s.handleError(w, r, err, "failed to decode donor registration")
		return
	}

	donor, err := form.donor(user.ID, time.Now())
	if err != nil {
		s.handleError(w, r, err, "invalid donor registration")
		return
	}

	err = s.donorRepo.Create(ctx, donor)
	if err != nil {
		s.handleError(w, r, err, "failed to register donor")
		return
	}

	if form.FullName != "" || form.PhoneNumber != "" {
		profile := *user
		if form.FullName != "" {
			profile.FullName = utils.StringPtr(form.FullName)
		}
		if form.PhoneNumber != "" {
			profile.PhoneNumber = utils.StringPtr(form.PhoneNumber)
		}
		profile.BloodType = utils.StringPtr(donor.BloodType)

		if err := s.userRepo.UpdateProfile(ctx, &profile); err != nil {
			s.logger.WithError(err).WithField("user_id", user.ID).Warn("failed to update profile from donor registration")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"donor_id":   donor.ID,
		"user_id":    user.ID,
		"blood_type": donor.BloodType,
	}).Info("donor registered")

	s.writeData(w, http.StatusCreated, newDonorView(donor))
}

func (s *Service) handleGetMyDonor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.internalServerError(w, r)
		return
	}

	donor, err := s.donorRepo.ByUserID(ctx, user.ID)
	if err != nil {
		s.handleError(w, r, err, "failed to fetch donor")
		return
	}

	s.writeData(w, http.StatusOK, newDonorView(donor))
}
