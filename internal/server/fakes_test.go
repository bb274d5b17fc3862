package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"bloodlink/internal/matching"
	"bloodlink/internal/storage"
	"bloodlink/internal/workflow"
	"bloodlink/pkg/types"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ctypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeVerifier map[string]*Identity

func (f fakeVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	identity, ok := f[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return identity, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*types.User
}

func (f *fakeUsers) User(_ context.Context, userID string) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, types.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) UpsertIdentity(_ context.Context, userID, email, fullName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		f.users[userID] = &types.User{ID: userID, Email: &email, FullName: &fullName}
	}
	return nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, user *types.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *user
	f.users[user.ID] = &c
	return nil
}

func (f *fakeUsers) SetProfilePicture(_ context.Context, userID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID].ProfilePictureKey = &key
	return nil
}

type fakeDonors struct {
	donors map[string]*types.Donor
}

func (f *fakeDonors) Create(_ context.Context, donor *types.Donor) error {
	for _, d := range f.donors {
		if d.UserID == donor.UserID {
			return types.ErrDonorAlreadyRegistered
		}
	}
	donor.ID = "D-" + donor.UserID
	donor.Status = types.DonorStatusPending
	f.donors[donor.ID] = donor
	return nil
}

func (f *fakeDonors) Donor(_ context.Context, donorID string) (*types.Donor, error) {
	d, ok := f.donors[donorID]
	if !ok {
		return nil, types.ErrDonorNotFound
	}
	return d, nil
}

func (f *fakeDonors) ByUserID(_ context.Context, userID string) (*types.Donor, error) {
	for _, d := range f.donors {
		if d.UserID == userID {
			return d, nil
		}
	}
	return nil, types.ErrDonorNotFound
}

func (f *fakeDonors) ListByStatus(_ context.Context, status types.DonorStatus) ([]*types.Donor, error) {
	var out []*types.Donor
	for _, d := range f.donors {
		if status == "" || d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeRequests struct {
	requests map[string]*types.BloodRequest
	err      error
}

func (f *fakeRequests) Create(_ context.Context, request *types.BloodRequest) error {
	if f.err != nil {
		return f.err
	}
	request.Status = types.RequestStatusPending
	f.requests[request.ID] = request
	return nil
}

func (f *fakeRequests) Request(_ context.Context, requestID string) (*types.BloodRequest, error) {
	r, ok := f.requests[requestID]
	if !ok {
		return nil, types.ErrRequestNotFound
	}
	return r, nil
}

func (f *fakeRequests) RequestsByUser(_ context.Context, userID string) ([]*types.BloodRequest, error) {
	var out []*types.BloodRequest
	for _, r := range f.requests {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequests) RequestsByStatus(_ context.Context, status types.RequestStatus) ([]*types.BloodRequest, error) {
	var out []*types.BloodRequest
	for _, r := range f.requests {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeNotifications struct {
	notifications []*types.Notification
}

func (f *fakeNotifications) NotificationsByUser(_ context.Context, userID string, unreadOnly bool) ([]*types.Notification, error) {
	var out []*types.Notification
	for _, n := range f.notifications {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotifications) UnreadCount(_ context.Context, userID string) (int, error) {
	count := 0
	for _, n := range f.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, notificationID, userID string) (*types.Notification, error) {
	for _, n := range f.notifications {
		if n.ID != notificationID {
			continue
		}
		if n.UserID != userID {
			return nil, types.ErrForbidden
		}
		n.IsRead = true
		return n, nil
	}
	return nil, types.ErrNotificationNotFound
}

type fakeAdminLog struct {
	mu      sync.Mutex
	entries []*types.AdminLog
	err     error
}

func (f *fakeAdminLog) Create(_ context.Context, log *types.AdminLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, log)
	return nil
}

type fakeBlobs struct {
	puts    map[string]*storage.Upload
	deleted []string
}

func (f *fakeBlobs) Put(_ context.Context, key string, upload *storage.Upload) error {
	f.puts[key] = upload
	return nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeBlobs) PresignGet(_ context.Context, key string) (string, error) {
	return "https://blobs.test/" + key, nil
}

func (f *fakeBlobs) MaxBytes() int64 {
	return 1 << 20
}

type fakeCognito struct {
	signUpErr error
	token     string
}

func (f *fakeCognito) SignUp(context.Context, *cognitoidentityprovider.SignUpInput, ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error) {
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	return &cognitoidentityprovider.SignUpOutput{}, nil
}

func (f *fakeCognito) ConfirmSignUp(context.Context, *cognitoidentityprovider.ConfirmSignUpInput, ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmSignUpOutput, error) {
	return &cognitoidentityprovider.ConfirmSignUpOutput{}, nil
}

func (f *fakeCognito) InitiateAuth(_ context.Context, params *cognitoidentityprovider.InitiateAuthInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error) {
	if params.AuthParameters["PASSWORD"] != "correct horse" {
		return nil, errors.New("NotAuthorizedException")
	}
	return &cognitoidentityprovider.InitiateAuthOutput{
		AuthenticationResult: &ctypes.AuthenticationResultType{AccessToken: &f.token, ExpiresIn: 3600},
	}, nil
}

// fakeMatcher returns err for every call when set, otherwise an outcome
// holding the request id it was called with. owners maps request ids to the
// user allowed to withdraw them.
type fakeMatcher struct {
	err        error
	warnings   []string
	candidates int
	calls      []string
	owners     map[string]string
}

func (f *fakeMatcher) outcome(call, id string) (*workflow.Outcome, error) {
	f.calls = append(f.calls, call+":"+id)
	if f.err != nil {
		return nil, f.err
	}
	return &workflow.Outcome{Request: &types.BloodRequest{ID: id}, Warnings: f.warnings}, nil
}

func (f *fakeMatcher) FindCandidates(_ context.Context, requestID string, _ workflow.Actor) (iter.Seq[matching.Candidate], error) {
	f.calls = append(f.calls, "candidates:"+requestID)
	if f.err != nil {
		return nil, f.err
	}
	n := f.candidates
	return func(yield func(matching.Candidate) bool) {
		for i := 0; i < n; i++ {
			if !yield(matching.Candidate{Donor: &types.Donor{ID: "D"}, Tier: matching.TierCountry}) {
				return
			}
		}
	}, nil
}

func (f *fakeMatcher) AdminAssign(_ context.Context, requestID, donorID string) (*workflow.Outcome, error) {
	return f.outcome("assign", requestID+"/"+donorID)
}

func (f *fakeMatcher) ReceiverSelfSelect(_ context.Context, requestID, donorID, _ string) (*workflow.Outcome, error) {
	return f.outcome("select", requestID+"/"+donorID)
}

func (f *fakeMatcher) ScheduleDonation(_ context.Context, requestID string, _ workflow.Actor) (*workflow.Outcome, error) {
	return f.outcome("schedule", requestID)
}

func (f *fakeMatcher) CompleteDonation(_ context.Context, requestID string, _ workflow.Actor) (*workflow.Outcome, error) {
	return f.outcome("complete", requestID)
}

func (f *fakeMatcher) WithdrawRequest(_ context.Context, requestID string, actor workflow.Actor) (*workflow.Outcome, error) {
	if r, ok := f.owners[requestID]; ok && r != actor.UserID {
		f.calls = append(f.calls, "withdraw-denied:"+requestID)
		return nil, types.ErrForbidden
	}
	return f.outcome("withdraw", requestID)
}

func (f *fakeMatcher) ApproveRequest(_ context.Context, requestID string) (*workflow.Outcome, error) {
	return f.outcome("approve-request", requestID)
}

func (f *fakeMatcher) RejectRequest(_ context.Context, requestID string) (*workflow.Outcome, error) {
	return f.outcome("reject-request", requestID)
}

func (f *fakeMatcher) ApproveDonor(_ context.Context, donorID string) (*workflow.Outcome, error) {
	return f.outcome("approve-donor", donorID)
}

func (f *fakeMatcher) RejectDonor(_ context.Context, donorID string) (*workflow.Outcome, error) {
	return f.outcome("reject-donor", donorID)
}

func (f *fakeMatcher) DeactivateDonor(_ context.Context, donorID string) (*workflow.Outcome, error) {
	return f.outcome("deactivate-donor", donorID)
}

const (
	receiverToken = "receiver-token"
	adminToken    = "admin-token"
)

type testServer struct {
	service       *Service
	users         *fakeUsers
	donors        *fakeDonors
	requests      *fakeRequests
	notifications *fakeNotifications
	adminLog      *fakeAdminLog
	blobs         *fakeBlobs
	cognito       *fakeCognito
	matcher       *fakeMatcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	config := &types.Config{
		ServerPort:       0,
		CognitoClientID:  "client",
		CookieName:       "bloodlink_session",
		SessionMaxAgeSec: 7200,
		CookieHashKey:    base64.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)),
		CookieBlockKey:   base64.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)),
	}

	ts := &testServer{
		users: &fakeUsers{users: map[string]*types.User{
			"admin": {ID: "admin", IsAdmin: true},
		}},
		donors:        &fakeDonors{donors: map[string]*types.Donor{}},
		requests:      &fakeRequests{requests: map[string]*types.BloodRequest{}},
		notifications: &fakeNotifications{},
		adminLog:      &fakeAdminLog{},
		blobs:         &fakeBlobs{puts: map[string]*storage.Upload{}},
		cognito:       &fakeCognito{token: receiverToken},
		matcher:       &fakeMatcher{},
	}

	verifier := fakeVerifier{
		receiverToken: {Subject: "receiver", Email: "receiver@example.com", Name: "Anu"},
		adminToken:    {Subject: "admin", Email: "admin@example.com"},
	}

	service, err := New(config, logger, ts.cognito, verifier,
		ts.users, ts.donors, ts.requests, ts.notifications, ts.adminLog, ts.blobs, ts.matcher)
	require.NoError(t, err)
	ts.service = service

	return ts
}

func (ts *testServer) do(method, path, token, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.service.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) doJSON(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = strings.NewReader(string(raw))
	}
	return ts.do(method, path, token, "application/json", reader)
}

type decodedResponse struct {
	Data      json.RawMessage   `json:"data"`
	Warnings  []string          `json:"warnings"`
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields"`
	RequestID string            `json:"requestId"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) decodedResponse {
	t.Helper()
	var out decodedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func httptestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(ts *testServer, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.service.Handler().ServeHTTP(rec, req)
	return rec
}
