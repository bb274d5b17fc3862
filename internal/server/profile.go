package server

import (
	"errors"
	"fmt"
	"net/http"

	"bloodlink/pkg/types"
)

type profileView struct {
	*types.User
	ProfilePictureURL string     `json:"profilePictureUrl,omitempty"`
	Donor             *donorView `json:"donor,omitempty"`
}

func (s *Service) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.logger.WithError(err).Error("user not found in context")
		s.internalServerError(w, r)
		return
	}

	view := profileView{User: user}

	if user.ProfilePictureKey != nil {
		url, err := s.blobs.PresignGet(ctx, *user.ProfilePictureKey)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", user.ID).Warn("failed to presign profile picture")
		} else {
			view.ProfilePictureURL = url
		}
	}

	donor, err := s.donorRepo.ByUserID(ctx, user.ID)
	switch {
	case err == nil:
		dv := newDonorView(donor)
		view.Donor = &dv
	case !errors.Is(err, types.ErrNotFound):
		s.handleError(w, r, err, "failed to fetch donor for profile")
		return
	}

	s.writeData(w, http.StatusOK, view)
}

func (s *Service) handlePostProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.logger.WithError(err).Error("user not found in context")
		s.internalServerError(w, r)
		return
	}

	var form profileForm
	if err := decodeForm(r, &form, maxJSONBodySize); err != nil {
		s.handleError(w, r, err, "failed to decode profile")
		return
	}

	updated := *user
	form.apply(&updated)

	err = s.userRepo.UpdateProfile(ctx, &updated)
	if err != nil {
		s.handleError(w, r, err, "failed to update profile")
		return
	}

	s.writeData(w, http.StatusOK, profileView{User: &updated})
}

func (s *Service) handlePostProfilePicture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.logger.WithError(err).Error("user not found in context")
		s.internalServerError(w, r)
		return
	}

	if err := r.ParseMultipartForm(s.blobs.MaxBytes()); err != nil {
		s.handleError(w, r, fmt.Errorf("expected a multipart upload: %w", types.ErrInvalidInput), "failed to parse profile picture upload")
		return
	}

	key, err := s.storeUpload(ctx, r, "picture", types.UploadKindProfilePicture, user.ID)
	if err != nil {
		s.handleError(w, r, err, "failed to store profile picture")
		return
	}
	if key == "" {
		s.writeFieldErrors(w, r, fieldErrors{"picture": "This field is required."})
		return
	}

	err = s.userRepo.SetProfilePicture(ctx, user.ID, key)
	if err != nil {
		s.handleError(w, r, err, "failed to save profile picture")
		return
	}

	if user.ProfilePictureKey != nil {
		if err := s.blobs.Delete(ctx, *user.ProfilePictureKey); err != nil {
			s.logger.WithError(err).WithField("key", *user.ProfilePictureKey).Warn("failed to delete previous profile picture")
		}
	}

	url, err := s.blobs.PresignGet(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("failed to presign profile picture")
	}

	s.writeData(w, http.StatusOK, map[string]string{"profilePictureUrl": url})
}
