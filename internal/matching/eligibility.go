// Package matching decides which donors can serve a blood request and in
// what order they should be offered.
package matching

import (
	"errors"
	"time"

	"bloodlink/pkg/types"
)

// DaysPerMonth converts a donor's donation gap in months to days.
const DaysPerMonth = 30

var (
	ErrDonorNotActive    = errors.New("donor is not active")
	ErrBloodTypeMismatch = errors.New("donor blood type does not match request")
	ErrDonorCommitted    = errors.New("donor is committed to another open request")
	ErrDonationGap       = errors.New("donor has not completed the donation gap")
)

// Commitments maps a donor id to the id of the open (non terminal) request
// that currently holds that donor, either through the request's
// selected_donor_id or the donor's current_request_id.
type Commitments map[string]string

// CheckEligibility returns nil when donor may be matched to req, otherwise
// one of the Err* reasons above.
func CheckEligibility(req *types.BloodRequest, donor *types.Donor, commitments Commitments, now time.Time) error {
	if donor.Status != types.DonorStatusActive {
		return ErrDonorNotActive
	}

	if donor.BloodType != req.BloodType {
		return ErrBloodTypeMismatch
	}

	if holder, ok := commitments[donor.ID]; ok && holder != req.ID {
		return ErrDonorCommitted
	}

	if !GapSatisfied(donor, now) {
		return ErrDonationGap
	}

	return nil
}

// GapSatisfied reports whether enough whole days have passed since the
// donor's last donation. A donor that never donated, or has no gap
// configured, is always satisfied.
func GapSatisfied(donor *types.Donor, now time.Time) bool {
	if donor.LastDonationDate == nil || donor.DonationGapMonths <= 0 {
		return true
	}

	required := donor.DonationGapMonths * DaysPerMonth
	return daysBetween(*donor.LastDonationDate, now) >= required
}

// NextEligibleDate is the first day the donor passes the gap check.
func NextEligibleDate(donor *types.Donor) *time.Time {
	if donor.LastDonationDate == nil || donor.DonationGapMonths <= 0 {
		return nil
	}
	next := dateOf(*donor.LastDonationDate).AddDate(0, 0, donor.DonationGapMonths*DaysPerMonth)
	return &next
}

// Filter keeps the donors eligible for req, preserving input order.
func Filter(req *types.BloodRequest, donors []*types.Donor, commitments Commitments, now time.Time) []*types.Donor {
	out := make([]*types.Donor, 0, len(donors))
	for _, donor := range donors {
		if CheckEligibility(req, donor, commitments, now) == nil {
			out = append(out, donor)
		}
	}
	return out
}

func daysBetween(from, to time.Time) int {
	return int(dateOf(to).Sub(dateOf(from)).Hours() / 24)
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
