package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"bloodlink/internal/matching"
	"bloodlink/internal/storage"
	"bloodlink/internal/utils"
	"bloodlink/pkg/types"

	"github.com/sirupsen/logrus"
)

const (
	defaultCandidateLimit = 20
	maxCandidateLimit     = 100
)

type requestView struct {
	*types.BloodRequest
	PrescriptionURL string `json:"prescriptionUrl,omitempty"`
}

func (s *Service) handlePostRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.internalServerError(w, r)
		return
	}

	var form bloodRequestForm
	if err := decodeForm(r, &form, s.blobs.MaxBytes()); err != nil {
		s.handleError(w, r, err, "failed to decode blood request")
		return
	}

	request := form.request(user.ID)
	request.ID = utils.NanoID()

	key, err := s.storeUpload(ctx, r, "prescription", types.UploadKindPrescription, user.ID)
	if err != nil {
		s.handleError(w, r, err, "failed to store prescription")
		return
	}
	if key != "" {
		request.PrescriptionKey = &key
	}

	err = s.requestRepo.Create(ctx, request)
	if err != nil {
		if key != "" {
			if delErr := s.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				s.logger.WithError(delErr).WithField("key", key).Warn("failed to remove orphaned prescription")
			}
		}
		s.handleError(w, r, err, "failed to create blood request")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": request.ID,
		"user_id":    user.ID,
		"blood_type": request.BloodType,
	}).Info("blood request submitted")

	s.writeData(w, http.StatusCreated, request)
}

// storeUpload puts the optional multipart file named field into blob
// storage and returns its key. A missing file returns an empty key.
func (s *Service) storeUpload(ctx context.Context, r *http.Request, field, kind, ownerID string) (string, error) {
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %v: %w", field, err, types.ErrInvalidInput)
	}
	defer file.Close()

	upload, err := storage.ReadUpload(file, s.blobs.MaxBytes())
	if err != nil {
		return "", err
	}

	key := utils.BlobKey(kind, ownerID, upload.Extension)
	err = s.blobs.Put(ctx, key, upload)
	if err != nil {
		return "", err
	}

	return key, nil
}

func (s *Service) handleGetMyRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.internalServerError(w, r)
		return
	}

	requests, err := s.requestRepo.RequestsByUser(ctx, user.ID)
	if err != nil {
		s.handleError(w, r, err, "failed to list user requests")
		return
	}

	s.writeData(w, http.StatusOK, requests)
}

// handleGetRequest is open to the owner, admins and the user behind the
// selected donor. Only the owner and admins see the prescription link.
func (s *Service) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.PathValue("requestID")

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.internalServerError(w, r)
		return
	}

	request, err := s.requestRepo.Request(ctx, requestID)
	if err != nil {
		s.handleError(w, r, err, "failed to fetch blood request")
		return
	}

	owner := user.IsAdmin || request.UserID == user.ID
	if !owner && !s.isSelectedDonor(ctx, request, user.ID) {
		s.handleError(w, r, fmt.Errorf("request %s: %w", requestID, types.ErrForbidden), "request access denied")
		return
	}

	view := requestView{BloodRequest: request}
	if owner && request.PrescriptionKey != nil {
		url, err := s.blobs.PresignGet(ctx, *request.PrescriptionKey)
		if err != nil {
			s.logger.WithError(err).WithField("request_id", requestID).Warn("failed to presign prescription")
		} else {
			view.PrescriptionURL = url
		}
	}

	s.writeData(w, http.StatusOK, view)
}

func (s *Service) isSelectedDonor(ctx context.Context, request *types.BloodRequest, userID string) bool {
	if !request.HasSelectedDonor() {
		return false
	}

	donor, err := s.donorRepo.Donor(ctx, *request.SelectedDonorID)
	if err != nil {
		return false
	}

	return donor.UserID == userID
}

func (s *Service) handleGetCandidates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.PathValue("requestID")

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.internalServerError(w, r)
		return
	}

	limit, err := candidateLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.handleError(w, r, err, "invalid candidate limit")
		return
	}

	candidates, err := s.matcher.FindCandidates(ctx, requestID, actorFor(user))
	if err != nil {
		s.handleError(w, r, err, "failed to find candidates")
		return
	}

	s.writeData(w, http.StatusOK, matching.Take(candidates, limit))
}

func candidateLimit(raw string) (int, error) {
	if raw == "" {
		return defaultCandidateLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer: %w", types.ErrInvalidInput)
	}

	return min(limit, maxCandidateLimit), nil
}

func (s *Service) handlePostSelectDonor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.PathValue("requestID")

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.internalServerError(w, r)
		return
	}

	var form selectDonorForm
	if err := decodeForm(r, &form, maxJSONBodySize); err != nil {
		s.handleError(w, r, err, "failed to decode donor selection")
		return
	}

	outcome, err := s.matcher.ReceiverSelfSelect(ctx, requestID, form.DonorID, user.ID)
	if err != nil {
		s.handleError(w, r, err, "failed to select donor")
		return
	}

	s.writeOutcome(w, outcome)
}

func (s *Service) handlePostScheduleDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.PathValue("requestID")

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.internalServerError(w, r)
		return
	}

	outcome, err := s.matcher.ScheduleDonation(ctx, requestID, actorFor(user))
	if err != nil {
		s.handleError(w, r, err, "failed to schedule donation")
		return
	}

	s.writeOutcome(w, outcome)
}

func (s *Service) handlePostCompleteDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.PathValue("requestID")

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.internalServerError(w, r)
		return
	}

	outcome, err := s.matcher.CompleteDonation(ctx, requestID, actorFor(user))
	if err != nil {
		s.handleError(w, r, err, "failed to complete donation")
		return
	}

	s.writeOutcome(w, outcome)
}

func (s *Service) handlePostWithdrawRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.PathValue("requestID")

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.internalServerError(w, r)
		return
	}

	outcome, err := s.matcher.WithdrawRequest(ctx, requestID, actorFor(user))
	if err != nil {
		s.handleError(w, r, err, "failed to withdraw request")
		return
	}

	s.writeOutcome(w, outcome)
}
