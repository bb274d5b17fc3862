package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"bloodlink/internal/matching"
	"bloodlink/internal/utils"
	"bloodlink/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectDonor(t *testing.T) {
	h := newHarness()
	h.store.addRequest(newRequest("R1", "O+", types.RequestStatusApproved))
	h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))

	out, err := h.machine.SelectDonor(context.Background(), "R1", "D1")
	require.NoError(t, err)
	assert.Empty(t, out.Warnings)

	assert.Equal(t, types.RequestStatusMatched, out.Request.Status)
	assert.Equal(t, "D1", utils.PtrString(out.Request.SelectedDonorID))
	assert.Equal(t, "R1", utils.PtrString(out.Donor.CurrentRequestID))

	req, _ := h.store.Request(context.Background(), "R1")
	donor, _ := h.store.Donor(context.Background(), "D1")
	assert.Equal(t, types.RequestStatusMatched, req.Status)
	assert.Equal(t, "R1", utils.PtrString(donor.CurrentRequestID))

	assert.Equal(t, []types.NotificationType{types.NotificationDonorSelected}, h.notifications.to("user-D1"))
}

func TestSelectDonor_FromPending(t *testing.T) {
	h := newHarness()
	h.store.addRequest(newRequest("R1", "O+", types.RequestStatusPending))
	h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))

	out, err := h.machine.SelectDonor(context.Background(), "R1", "D1")
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusMatched, out.Request.Status)
}

func TestSelectDonor_Failures(t *testing.T) {
	committed := newDonor("D5", "O+", types.DonorStatusActive)
	committed.CurrentRequestID = utils.StringPtr("R9")

	recent := newDonor("D6", "O+", types.DonorStatusActive)
	recent.LastDonationDate = utils.TimePtr(testNow.AddDate(0, -1, 0))
	recent.DonationGapMonths = 3

	tests := []struct {
		name      string
		requestID string
		donorID   string
		want      error
		reason    error
	}{
		{"missing request", "nope", "D1", types.ErrNotFound, nil},
		{"missing donor", "R1", "nope", types.ErrNotFound, nil},
		{"completed request", "R2", "D1", types.ErrInvalidStateTransition, nil},
		{"rejected request", "R3", "D1", types.ErrInvalidStateTransition, nil},
		{"already matched", "R4", "D1", types.ErrConflict, nil},
		{"blood type mismatch", "R1", "D2", types.ErrConflict, matching.ErrBloodTypeMismatch},
		{"inactive donor", "R1", "D3", types.ErrConflict, matching.ErrDonorNotActive},
		{"pending donor", "R1", "D4", types.ErrConflict, matching.ErrDonorNotActive},
		{"committed elsewhere", "R1", "D5", types.ErrConflict, matching.ErrDonorCommitted},
		{"donation gap", "R1", "D6", types.ErrConflict, matching.ErrDonationGap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.store.
				addRequest(newRequest("R1", "O+", types.RequestStatusApproved)).
				addRequest(newRequest("R2", "O+", types.RequestStatusCompleted)).
				addRequest(newRequest("R3", "O+", types.RequestStatusRejected)).
				addRequest(newRequest("R4", "O+", types.RequestStatusMatched)).
				addRequest(newRequest("R9", "O+", types.RequestStatusMatched)).
				addDonor(newDonor("D1", "O+", types.DonorStatusActive)).
				addDonor(newDonor("D2", "A+", types.DonorStatusActive)).
				addDonor(newDonor("D3", "O+", types.DonorStatusInactive)).
				addDonor(newDonor("D4", "O+", types.DonorStatusPending)).
				addDonor(committed).
				addDonor(recent)

			out, err := h.machine.SelectDonor(context.Background(), tt.requestID, tt.donorID)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.want)
			if tt.reason != nil {
				assert.ErrorIs(t, err, tt.reason)
			}
			assert.Empty(t, h.notifications.kinds())

			if req, err := h.store.Request(context.Background(), "R1"); err == nil {
				assert.Equal(t, types.RequestStatusApproved, req.Status)
				assert.False(t, req.HasSelectedDonor())
			}
		})
	}
}

func TestSelectDonor_StaleCommitmentIsReplaced(t *testing.T) {
	h := newHarness()
	donor := newDonor("D1", "O+", types.DonorStatusActive)
	donor.CurrentRequestID = utils.StringPtr("R0")
	h.store.
		addRequest(newRequest("R0", "O+", types.RequestStatusCompleted)).
		addRequest(newRequest("R1", "O+", types.RequestStatusApproved)).
		addDonor(donor)

	out, err := h.machine.SelectDonor(context.Background(), "R1", "D1")
	require.NoError(t, err)
	assert.Equal(t, "R1", utils.PtrString(out.Donor.CurrentRequestID))
}

func TestSelectDonor_RaceForSameDonor(t *testing.T) {
	const contenders = 8

	h := newHarness()
	h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))
	for i := range contenders {
		h.store.addRequest(newRequest(fmt.Sprintf("R%d", i), "O+", types.RequestStatusApproved))
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := range contenders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.machine.SelectDonor(context.Background(), fmt.Sprintf("R%d", i), "D1")
		}()
	}
	wg.Wait()

	winners := 0
	winner := ""
	for i, err := range errs {
		if err == nil {
			winners++
			winner = fmt.Sprintf("R%d", i)
			continue
		}
		assert.ErrorIs(t, err, types.ErrConflict)
	}
	require.Equal(t, 1, winners)

	donor, _ := h.store.Donor(context.Background(), "D1")
	assert.Equal(t, winner, utils.PtrString(donor.CurrentRequestID))

	matched := 0
	for i := range contenders {
		req, _ := h.store.Request(context.Background(), fmt.Sprintf("R%d", i))
		if req.Status == types.RequestStatusMatched {
			matched++
			assert.Equal(t, "D1", utils.PtrString(req.SelectedDonorID))
		}
	}
	assert.Equal(t, 1, matched)
}

func TestSelectDonor_RaceForSameRequestAndDonor(t *testing.T) {
	h := newHarness()
	h.store.addRequest(newRequest("R1", "O+", types.RequestStatusApproved))
	h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.machine.SelectDonor(context.Background(), "R1", "D1")
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.ErrorIs(t, err, types.ErrConflict)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestSelectDonor_NotificationFailureIsAWarning(t *testing.T) {
	h := newHarness()
	h.notifications.err = errors.New("notifications table is gone")
	h.store.addRequest(newRequest("R1", "O+", types.RequestStatusApproved))
	h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))

	out, err := h.machine.SelectDonor(context.Background(), "R1", "D1")
	require.NoError(t, err)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "notifications table is gone")

	req, _ := h.store.Request(context.Background(), "R1")
	assert.Equal(t, types.RequestStatusMatched, req.Status)
}

func TestCompleteDonation_RollsBackOnWriteFailure(t *testing.T) {
	h := newHarness()
	h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))
	h.store.addRequest(newRequest("R2", "O+", types.RequestStatusMatched))
	h.store.failUpdateDonor = errors.New("disk full")

	// Completion writes both rows; the donor write fails after the request
	// write and neither may be visible afterwards.
	h.store.requests["R2"].SelectedDonorID = utils.StringPtr("D1")
	h.store.donors["D1"].CurrentRequestID = utils.StringPtr("R2")

	_, err := h.machine.CompleteDonation(context.Background(), "R2")
	require.Error(t, err)

	req, _ := h.store.Request(context.Background(), "R2")
	donor, _ := h.store.Donor(context.Background(), "D1")
	assert.Equal(t, types.RequestStatusMatched, req.Status)
	assert.Equal(t, "R2", utils.PtrString(donor.CurrentRequestID))
	assert.Nil(t, donor.LastDonationDate)
	assert.Empty(t, h.notifications.kinds())
}

func TestCompleteDonation(t *testing.T) {
	for _, status := range []types.RequestStatus{types.RequestStatusMatched, types.RequestStatusPendingDonation} {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness()
			h.store.addRequest(newRequest("R1", "O+", types.RequestStatusApproved))
			h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))

			_, err := h.machine.SelectDonor(context.Background(), "R1", "D1")
			require.NoError(t, err)
			if status == types.RequestStatusPendingDonation {
				_, err = h.machine.ScheduleDonation(context.Background(), "R1")
				require.NoError(t, err)
			}

			out, err := h.machine.CompleteDonation(context.Background(), "R1")
			require.NoError(t, err)

			assert.Equal(t, types.RequestStatusCompleted, out.Request.Status)
			assert.Equal(t, "D1", utils.PtrString(out.Request.SelectedDonorID))
			assert.False(t, out.Donor.Committed())
			require.NotNil(t, out.Donor.LastDonationDate)
			assert.Equal(t, dateOf(testNow), *out.Donor.LastDonationDate)

			assert.Contains(t, h.notifications.to("receiver-R1"), types.NotificationDonationCompleted)
			assert.Contains(t, h.notifications.to("user-D1"), types.NotificationDonationCompleted)
		})
	}
}

func TestCompleteDonation_DonorIsFreeAgain(t *testing.T) {
	h := newHarness()
	h.store.addRequest(newRequest("R1", "O+", types.RequestStatusApproved))
	h.store.addRequest(newRequest("R2", "O+", types.RequestStatusApproved))
	h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))

	_, err := h.machine.SelectDonor(context.Background(), "R1", "D1")
	require.NoError(t, err)

	finder := matching.NewFinder(h.store, quietLogger())
	seq, err := finder.Candidates(context.Background(), "R2")
	require.NoError(t, err)
	assert.Empty(t, matching.Take(seq, 10))

	_, err = h.machine.CompleteDonation(context.Background(), "R1")
	require.NoError(t, err)

	seq, err = finder.Candidates(context.Background(), "R2")
	require.NoError(t, err)
	got := matching.Take(seq, 10)
	require.Len(t, got, 1)
	assert.Equal(t, "D1", got[0].Donor.ID)
}

func TestCompleteDonation_GapAppliesAfterCompletion(t *testing.T) {
	h := newHarness()
	donor := newDonor("D1", "O+", types.DonorStatusActive)
	donor.DonationGapMonths = 3
	h.store.addRequest(newRequest("R1", "O+", types.RequestStatusApproved))
	h.store.addRequest(newRequest("R2", "O+", types.RequestStatusApproved))
	h.store.addDonor(donor)

	_, err := h.machine.SelectDonor(context.Background(), "R1", "D1")
	require.NoError(t, err)
	_, err = h.machine.CompleteDonation(context.Background(), "R1")
	require.NoError(t, err)

	_, err = h.machine.SelectDonor(context.Background(), "R2", "D1")
	assert.ErrorIs(t, err, matching.ErrDonationGap)
}

func TestCompleteDonation_InvalidStates(t *testing.T) {
	for _, status := range []types.RequestStatus{
		types.RequestStatusPending,
		types.RequestStatusApproved,
		types.RequestStatusCompleted,
		types.RequestStatusRejected,
	} {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness()
			h.store.addRequest(newRequest("R1", "O+", status))

			_, err := h.machine.CompleteDonation(context.Background(), "R1")
			assert.ErrorIs(t, err, types.ErrInvalidStateTransition)
		})
	}

	h := newHarness()
	_, err := h.machine.CompleteDonation(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestScheduleDonation(t *testing.T) {
	h := newHarness()
	h.store.addRequest(newRequest("R1", "O+", types.RequestStatusApproved))
	h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))

	_, err := h.machine.ScheduleDonation(context.Background(), "R1")
	assert.ErrorIs(t, err, types.ErrInvalidStateTransition)

	_, err = h.machine.SelectDonor(context.Background(), "R1", "D1")
	require.NoError(t, err)

	out, err := h.machine.ScheduleDonation(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusPendingDonation, out.Request.Status)
	assert.Equal(t, []types.NotificationType{types.NotificationDonationScheduled}, h.notifications.to("receiver-R1"))

	_, err = h.machine.ScheduleDonation(context.Background(), "R1")
	assert.ErrorIs(t, err, types.ErrInvalidStateTransition)
}

func TestApproveRequest(t *testing.T) {
	h := newHarness()
	h.store.addRequest(newRequest("R1", "O+", types.RequestStatusPending))

	out, err := h.machine.ApproveRequest(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusApproved, out.Request.Status)
	assert.Equal(t, []types.NotificationType{types.NotificationRequestApproved}, h.notifications.to("receiver-R1"))

	_, err = h.machine.ApproveRequest(context.Background(), "R1")
	assert.ErrorIs(t, err, types.ErrInvalidStateTransition)
}

func TestRejectRequest_ReleasesDonor(t *testing.T) {
	h := newHarness()
	h.store.addRequest(newRequest("R1", "O+", types.RequestStatusApproved))
	h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))

	_, err := h.machine.SelectDonor(context.Background(), "R1", "D1")
	require.NoError(t, err)

	out, err := h.machine.RejectRequest(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusRejected, out.Request.Status)
	require.NotNil(t, out.Donor)
	assert.False(t, out.Donor.Committed())

	donor, _ := h.store.Donor(context.Background(), "D1")
	assert.False(t, donor.Committed())
	assert.Contains(t, h.notifications.to("user-D1"), types.NotificationDonorReleased)
	assert.Contains(t, h.notifications.to("receiver-R1"), types.NotificationRequestRejected)

	_, err = h.machine.RejectRequest(context.Background(), "R1")
	assert.ErrorIs(t, err, types.ErrInvalidStateTransition)
}

func TestWithdrawRequest_ReleasesDonorWithoutNotifyingOwner(t *testing.T) {
	h := newHarness()
	h.store.addRequest(newRequest("R1", "O+", types.RequestStatusApproved))
	h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))

	_, err := h.machine.SelectDonor(context.Background(), "R1", "D1")
	require.NoError(t, err)
	_, err = h.machine.ScheduleDonation(context.Background(), "R1")
	require.NoError(t, err)
	sentToOwner := len(h.notifications.to("receiver-R1"))

	out, err := h.machine.WithdrawRequest(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusRejected, out.Request.Status)
	require.NotNil(t, out.Donor)
	assert.False(t, out.Donor.Committed())

	req, _ := h.store.Request(context.Background(), "R1")
	assert.Equal(t, types.RequestStatusRejected, req.Status)
	donor, _ := h.store.Donor(context.Background(), "D1")
	assert.False(t, donor.Committed())
	assert.Equal(t, types.DonorStatusActive, donor.Status)

	assert.Contains(t, h.notifications.to("user-D1"), types.NotificationDonorReleased)
	assert.Len(t, h.notifications.to("receiver-R1"), sentToOwner)

	_, err = h.machine.WithdrawRequest(context.Background(), "R1")
	assert.ErrorIs(t, err, types.ErrInvalidStateTransition)
}

func TestWithdrawRequest_NoDonor(t *testing.T) {
	h := newHarness()
	h.store.addRequest(newRequest("R1", "O+", types.RequestStatusPending))

	out, err := h.machine.WithdrawRequest(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusRejected, out.Request.Status)
	assert.Nil(t, out.Donor)
	assert.Empty(t, h.notifications.kinds())
}

func TestApproveDonor(t *testing.T) {
	h := newHarness()
	h.store.addDonor(newDonor("D1", "O+", types.DonorStatusPending))

	out, err := h.machine.ApproveDonor(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, types.DonorStatusActive, out.Donor.Status)
	assert.Equal(t, []types.NotificationType{types.NotificationDonorApproved}, h.notifications.to("user-D1"))

	_, err = h.machine.ApproveDonor(context.Background(), "D1")
	assert.ErrorIs(t, err, types.ErrInvalidStateTransition)
}

func TestDonorRemoval_CascadesToRequest(t *testing.T) {
	removals := map[string]func(*Machine, context.Context, string) (*Outcome, error){
		"reject":     (*Machine).RejectDonor,
		"deactivate": (*Machine).DeactivateDonor,
	}

	for name, remove := range removals {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			h.store.addRequest(newRequest("R1", "O+", types.RequestStatusApproved))
			h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))
			h.store.addDonor(newDonor("D2", "O+", types.DonorStatusActive))

			_, err := h.machine.SelectDonor(context.Background(), "R1", "D1")
			require.NoError(t, err)

			out, err := remove(h.machine, context.Background(), "D1")
			require.NoError(t, err)

			require.NotNil(t, out.Request)
			assert.Equal(t, types.RequestStatusApproved, out.Request.Status)
			assert.False(t, out.Request.HasSelectedDonor())
			assert.False(t, out.Donor.Committed())
			assert.NotEqual(t, types.DonorStatusActive, out.Donor.Status)

			assert.Contains(t, h.notifications.to("receiver-R1"), types.NotificationDonorReleased)

			// The request can take a new donor straight away.
			_, err = h.machine.SelectDonor(context.Background(), "R1", "D2")
			require.NoError(t, err)
		})
	}
}

func TestDonorRemoval_PendingDonationIsReleased(t *testing.T) {
	h := newHarness()
	h.store.addRequest(newRequest("R1", "O+", types.RequestStatusApproved))
	h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))

	_, err := h.machine.SelectDonor(context.Background(), "R1", "D1")
	require.NoError(t, err)
	_, err = h.machine.ScheduleDonation(context.Background(), "R1")
	require.NoError(t, err)

	out, err := h.machine.DeactivateDonor(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusApproved, out.Request.Status)
	assert.Equal(t, types.DonorStatusInactive, out.Donor.Status)
}

func TestDonorRemoval_WithoutCommitment(t *testing.T) {
	h := newHarness()
	h.store.addDonor(newDonor("D1", "O+", types.DonorStatusActive))

	out, err := h.machine.RejectDonor(context.Background(), "D1")
	require.NoError(t, err)
	assert.Nil(t, out.Request)
	assert.Equal(t, types.DonorStatusRejected, out.Donor.Status)
	assert.Equal(t, []types.NotificationType{types.NotificationDonorRejected}, h.notifications.kinds())
}

func TestDonorTransitions(t *testing.T) {
	tests := []struct {
		from types.DonorStatus
		to   types.DonorStatus
		ok   bool
	}{
		{types.DonorStatusPending, types.DonorStatusActive, true},
		{types.DonorStatusPending, types.DonorStatusRejected, true},
		{types.DonorStatusPending, types.DonorStatusInactive, false},
		{types.DonorStatusActive, types.DonorStatusInactive, true},
		{types.DonorStatusActive, types.DonorStatusActive, false},
		{types.DonorStatusInactive, types.DonorStatusActive, true},
		{types.DonorStatusInactive, types.DonorStatusInactive, false},
		{types.DonorStatusRejected, types.DonorStatusActive, true},
		{types.DonorStatusRejected, types.DonorStatusInactive, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, CanTransitionDonor(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestRequestTransitions(t *testing.T) {
	for _, terminal := range types.TerminalRequestStatuses {
		for _, to := range []types.RequestStatus{
			types.RequestStatusPending,
			types.RequestStatusApproved,
			types.RequestStatusMatched,
			types.RequestStatusPendingDonation,
			types.RequestStatusCompleted,
			types.RequestStatusRejected,
		} {
			assert.False(t, CanTransitionRequest(terminal, to), "%s -> %s", terminal, to)
		}
	}

	assert.True(t, CanTransitionRequest(types.RequestStatusMatched, types.RequestStatusCompleted))
	assert.False(t, CanTransitionRequest(types.RequestStatusPending, types.RequestStatusCompleted))
	assert.False(t, CanTransitionRequest(types.RequestStatusApproved, types.RequestStatusPendingDonation))
}
