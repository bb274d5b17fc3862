package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"net/http"
	"time"

	"bloodlink/internal/matching"
	"bloodlink/internal/storage"
	"bloodlink/internal/workflow"
	"bloodlink/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus"
)

type UserStore interface {
	User(ctx context.Context, userID string) (*types.User, error)
	UpsertIdentity(ctx context.Context, userID, email, fullName string) error
	UpdateProfile(ctx context.Context, user *types.User) error
	SetProfilePicture(ctx context.Context, userID, key string) error
}

type DonorStore interface {
	Create(ctx context.Context, donor *types.Donor) error
	Donor(ctx context.Context, donorID string) (*types.Donor, error)
	ByUserID(ctx context.Context, userID string) (*types.Donor, error)
	ListByStatus(ctx context.Context, status types.DonorStatus) ([]*types.Donor, error)
}

type RequestStore interface {
	Create(ctx context.Context, request *types.BloodRequest) error
	Request(ctx context.Context, requestID string) (*types.BloodRequest, error)
	RequestsByUser(ctx context.Context, userID string) ([]*types.BloodRequest, error)
	RequestsByStatus(ctx context.Context, status types.RequestStatus) ([]*types.BloodRequest, error)
}

type NotificationStore interface {
	NotificationsByUser(ctx context.Context, userID string, unreadOnly bool) ([]*types.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, notificationID, userID string) (*types.Notification, error)
}

type AdminLogWriter interface {
	Create(ctx context.Context, log *types.AdminLog) error
}

type BlobStore interface {
	Put(ctx context.Context, key string, upload *storage.Upload) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string) (string, error)
	MaxBytes() int64
}

type CognitoClient interface {
	SignUp(ctx context.Context, params *cognitoidentityprovider.SignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, params *cognitoidentityprovider.ConfirmSignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmSignUpOutput, error)
	InitiateAuth(ctx context.Context, params *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
}

// Matcher is the workflow surface the HTTP layer drives.
type Matcher interface {
	FindCandidates(ctx context.Context, requestID string, actor workflow.Actor) (iter.Seq[matching.Candidate], error)
	AdminAssign(ctx context.Context, requestID, donorID string) (*workflow.Outcome, error)
	ReceiverSelfSelect(ctx context.Context, requestID, donorID, userID string) (*workflow.Outcome, error)
	ScheduleDonation(ctx context.Context, requestID string, actor workflow.Actor) (*workflow.Outcome, error)
	CompleteDonation(ctx context.Context, requestID string, actor workflow.Actor) (*workflow.Outcome, error)
	WithdrawRequest(ctx context.Context, requestID string, actor workflow.Actor) (*workflow.Outcome, error)
	ApproveRequest(ctx context.Context, requestID string) (*workflow.Outcome, error)
	RejectRequest(ctx context.Context, requestID string) (*workflow.Outcome, error)
	ApproveDonor(ctx context.Context, donorID string) (*workflow.Outcome, error)
	RejectDonor(ctx context.Context, donorID string) (*workflow.Outcome, error)
	DeactivateDonor(ctx context.Context, donorID string) (*workflow.Outcome, error)
}

var _ Matcher = (*workflow.Orchestrator)(nil)

type Service struct {
	logger *logrus.Logger
	config *types.Config

	cognitoClient CognitoClient
	verifier      TokenVerifier
	cookie        *securecookie.SecureCookie

	userRepo         UserStore
	donorRepo        DonorStore
	requestRepo      RequestStore
	notificationRepo NotificationStore
	adminLogRepo     AdminLogWriter
	blobs            BlobStore
	matcher          Matcher

	handler http.Handler
	server  *http.Server
}

func New(
	config *types.Config,
	logger *logrus.Logger,
	cognitoClient CognitoClient,
	verifier TokenVerifier,
	userRepo UserStore,
	donorRepo DonorStore,
	requestRepo RequestStore,
	notificationRepo NotificationStore,
	adminLogRepo AdminLogWriter,
	blobs BlobStore,
	matcher Matcher,
) (*Service, error) {
	mux := flow.New()

	hashKey, err := base64.StdEncoding.DecodeString(config.CookieHashKey)
	if err != nil {
		return nil, fmt.Errorf("decode cookie hash key: %w", err)
	}
	blockKey, err := base64.StdEncoding.DecodeString(config.CookieBlockKey)
	if err != nil {
		return nil, fmt.Errorf("decode cookie block key: %w", err)
	}

	s := &Service{
		logger:        logger,
		config:        config,
		cognitoClient: cognitoClient,
		verifier:      verifier,
		cookie:        securecookie.New(hashKey, blockKey),

		userRepo:         userRepo,
		donorRepo:        donorRepo,
		requestRepo:      requestRepo,
		notificationRepo: notificationRepo,
		adminLogRepo:     adminLogRepo,
		blobs:            blobs,
		matcher:          matcher,

		handler: mux,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.ServerPort),
			Handler:           mux,
			ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
			ReadHeaderTimeout: time.Duration(config.ReadTimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}

	s.buildRouter(mux)

	return s, nil
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Service) Handler() http.Handler {
	return s.handler
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.RequestID)
	r.Use(s.LoggingMiddleware)
	r.Use(s.StripTrailingSlash)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)

	r.HandleFunc("/auth/register", s.handlePostRegister, http.MethodPost)
	r.HandleFunc("/auth/confirm", s.handlePostRegisterConfirm, http.MethodPost)
	r.HandleFunc("/auth/login", s.handlePostLogin, http.MethodPost)
	r.HandleFunc("/auth/logout", s.handlePostLogout, http.MethodPost)

	r.Group(func(r *flow.Mux) {
		r.Use(s.RequireAuth)

		r.HandleFunc("/me", s.handleGetProfile, http.MethodGet)
		r.HandleFunc("/me", s.handlePostProfile, http.MethodPost)
		r.HandleFunc("/me/picture", s.handlePostProfilePicture, http.MethodPost)

		r.HandleFunc("/donors", s.handlePostDonor, http.MethodPost)
		r.HandleFunc("/donors/me", s.handleGetMyDonor, http.MethodGet)

		r.HandleFunc("/requests", s.handlePostRequest, http.MethodPost)
		r.HandleFunc("/requests/mine", s.handleGetMyRequests, http.MethodGet)
		r.HandleFunc("/requests/:requestID", s.handleGetRequest, http.MethodGet)
		r.HandleFunc("/requests/:requestID/candidates", s.handleGetCandidates, http.MethodGet)
		r.HandleFunc("/requests/:requestID/select", s.handlePostSelectDonor, http.MethodPost)
		r.HandleFunc("/requests/:requestID/schedule", s.handlePostScheduleDonation, http.MethodPost)
		r.HandleFunc("/requests/:requestID/complete", s.handlePostCompleteDonation, http.MethodPost)
		r.HandleFunc("/requests/:requestID/withdraw", s.handlePostWithdrawRequest, http.MethodPost)

		r.HandleFunc("/notifications", s.handleGetNotifications, http.MethodGet)
		r.HandleFunc("/notifications/:notificationID/read", s.handlePostNotificationRead, http.MethodPost)

		r.Group(func(r *flow.Mux) {
			r.Use(s.RequireAdmin)
			r.Use(s.AdminAudit)

			r.HandleFunc("/admin/requests", s.handleAdminListRequests, http.MethodGet)
			r.HandleFunc("/admin/requests/:requestID/approve", s.handleAdminApproveRequest, http.MethodPost)
			r.HandleFunc("/admin/requests/:requestID/reject", s.handleAdminRejectRequest, http.MethodPost)
			r.HandleFunc("/admin/requests/:requestID/candidates", s.handleGetCandidates, http.MethodGet)
			r.HandleFunc("/admin/requests/:requestID/assign", s.handleAdminAssignDonor, http.MethodPost)
			r.HandleFunc("/admin/requests/:requestID/complete", s.handlePostCompleteDonation, http.MethodPost)

			r.HandleFunc("/admin/donors", s.handleAdminListDonors, http.MethodGet)
			r.HandleFunc("/admin/donors/:donorID/approve", s.handleAdminApproveDonor, http.MethodPost)
			r.HandleFunc("/admin/donors/:donorID/reject", s.handleAdminRejectDonor, http.MethodPost)
			r.HandleFunc("/admin/donors/:donorID/deactivate", s.handleAdminDeactivateDonor, http.MethodPost)
		})
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) userFromContext(ctx context.Context) (*types.User, error) {
	user, ok := ctx.Value(contextKeyUser).(*types.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

func actorFor(user *types.User) workflow.Actor {
	return workflow.Actor{UserID: user.ID, IsAdmin: user.IsAdmin}
}
