package workflow

import (
	"context"
	"io"
	"sync"
	"time"

	"bloodlink/internal/matching"
	"bloodlink/internal/utils"
	"bloodlink/pkg/types"

	"github.com/sirupsen/logrus"
)

var testNow = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

// memStore serializes transactions behind one mutex, which gives the same
// outcome as row locks for the tests here. A failed transaction leaves the
// committed maps untouched.
type memStore struct {
	mu       sync.Mutex
	requests map[string]*types.BloodRequest
	donors   map[string]*types.Donor

	// failUpdateDonor makes every UpdateDonor call fail inside a transaction.
	failUpdateDonor error
}

var (
	_ Transactor           = (*memStore)(nil)
	_ Reader               = (*memStore)(nil)
	_ matching.DonorSource = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		requests: make(map[string]*types.BloodRequest),
		donors:   make(map[string]*types.Donor),
	}
}

func (s *memStore) addRequest(r *types.BloodRequest) *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r
	return s
}

func (s *memStore) addDonor(d *types.Donor) *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.donors[d.ID] = d
	return s
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		requests:        make(map[string]*types.BloodRequest, len(s.requests)),
		donors:          make(map[string]*types.Donor, len(s.donors)),
		failUpdateDonor: s.failUpdateDonor,
	}
	for id, r := range s.requests {
		c := *r
		tx.requests[id] = &c
	}
	for id, d := range s.donors {
		c := *d
		tx.donors[id] = &c
	}

	err := fn(ctx, tx)
	if err != nil {
		return err
	}

	s.requests, s.donors = tx.requests, tx.donors
	return nil
}

func (s *memStore) Request(_ context.Context, id string) (*types.BloodRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, types.ErrRequestNotFound
	}
	c := *r
	return &c, nil
}

func (s *memStore) Donor(_ context.Context, id string) (*types.Donor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donors[id]
	if !ok {
		return nil, types.ErrDonorNotFound
	}
	c := *d
	return &c, nil
}

func (s *memStore) ActiveDonorsByBloodType(_ context.Context, bloodType string) ([]*types.Donor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Donor
	for _, d := range s.donors {
		if d.BloodType == bloodType && d.Status == types.DonorStatusActive {
			c := *d
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) Commitments(_ context.Context, donorIDs []string) (matching.Commitments, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return commitments(s.requests, s.donors, donorIDs), nil
}

func commitments(requests map[string]*types.BloodRequest, donors map[string]*types.Donor, donorIDs []string) matching.Commitments {
	out := make(matching.Commitments)
	for _, id := range donorIDs {
		for _, r := range requests {
			if !r.Status.Terminal() && r.HasSelectedDonor() && *r.SelectedDonorID == id {
				out[id] = r.ID
			}
		}
		if _, ok := out[id]; ok {
			continue
		}
		d, ok := donors[id]
		if !ok || !d.Committed() {
			continue
		}
		if r, ok := requests[*d.CurrentRequestID]; ok && !r.Status.Terminal() {
			out[id] = r.ID
		}
	}
	return out
}

type memTx struct {
	requests map[string]*types.BloodRequest
	donors   map[string]*types.Donor

	failUpdateDonor error
}

func (t *memTx) RequestForUpdate(_ context.Context, id string) (*types.BloodRequest, error) {
	r, ok := t.requests[id]
	if !ok {
		return nil, types.ErrRequestNotFound
	}
	c := *r
	return &c, nil
}

func (t *memTx) DonorForUpdate(_ context.Context, id string) (*types.Donor, error) {
	d, ok := t.donors[id]
	if !ok {
		return nil, types.ErrDonorNotFound
	}
	c := *d
	return &c, nil
}

func (t *memTx) Commitments(_ context.Context, donorIDs []string) (matching.Commitments, error) {
	return commitments(t.requests, t.donors, donorIDs), nil
}

func (t *memTx) UpdateRequest(_ context.Context, id string, update types.RequestUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	r, ok := t.requests[id]
	if !ok {
		return types.ErrRequestNotFound
	}
	update.Apply(r)
	r.UpdatedAt = testNow
	return nil
}

func (t *memTx) UpdateDonor(_ context.Context, id string, update types.DonorUpdate) error {
	if t.failUpdateDonor != nil {
		return t.failUpdateDonor
	}
	if err := update.Validate(); err != nil {
		return err
	}
	d, ok := t.donors[id]
	if !ok {
		return types.ErrDonorNotFound
	}
	update.Apply(d)
	d.UpdatedAt = testNow
	return nil
}

func (t *memTx) ClaimDonor(_ context.Context, donorID, requestID string, expected *string) error {
	d, ok := t.donors[donorID]
	if !ok {
		return types.ErrDonorNotFound
	}
	if utils.PtrString(d.CurrentRequestID) != utils.PtrString(expected) {
		return types.ErrDonorClaimed
	}
	d.CurrentRequestID = &requestID
	return nil
}

// memNotifications records every notification written. When err is set the
// write fails and nothing is recorded.
type memNotifications struct {
	mu   sync.Mutex
	sent []*types.Notification
	err  error
}

func (n *memNotifications) CreateNotification(_ context.Context, notification *types.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *memNotifications) kinds() []types.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.NotificationType, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.Type
	}
	return out
}

func (n *memNotifications) to(userID string) []types.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []types.NotificationType
	for _, s := range n.sent {
		if s.UserID == userID {
			out = append(out, s.Type)
		}
	}
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type harness struct {
	store         *memStore
	notifications *memNotifications
	machine       *Machine
}

func newHarness() *harness {
	store := newMemStore()
	notifications := &memNotifications{}
	logger := quietLogger()
	machine := NewMachine(store, NewEmitter(notifications, logger), logger).
		WithClock(func() time.Time { return testNow })
	return &harness{store: store, notifications: notifications, machine: machine}
}

func kerala(district string) types.Location {
	return types.Location{District: district, State: "Kerala", Country: "India"}
}

func newRequest(id, bloodType string, status types.RequestStatus) *types.BloodRequest {
	return &types.BloodRequest{
		ID:        id,
		UserID:    "receiver-" + id,
		Location:  kerala("Ernakulam"),
		BloodType: bloodType,
		Status:    status,
	}
}

func newDonor(id, bloodType string, status types.DonorStatus) *types.Donor {
	return &types.Donor{
		ID:        id,
		UserID:    "user-" + id,
		Location:  kerala("Ernakulam"),
		BloodType: bloodType,
		Status:    status,
	}
}
