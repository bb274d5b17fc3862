package matching

import (
	"time"

	"bloodlink/internal/utils"
	"bloodlink/pkg/types"
)

var testNow = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

func place(district, state, country string) types.Location {
	return types.Location{District: district, State: state, Country: country}
}

func newRequest(id, bloodType string, loc types.Location) *types.BloodRequest {
	return &types.BloodRequest{
		ID:        id,
		UserID:    "receiver-" + id,
		Location:  loc,
		BloodType: bloodType,
		Status:    types.RequestStatusApproved,
	}
}

func newDonor(id, bloodType string, loc types.Location, lastDonation *time.Time) *types.Donor {
	return &types.Donor{
		ID:               id,
		UserID:           "user-" + id,
		Location:         loc,
		BloodType:        bloodType,
		Status:           types.DonorStatusActive,
		LastDonationDate: lastDonation,
	}
}

func monthsAgo(n int) *time.Time {
	return utils.TimePtr(testNow.AddDate(0, -n, 0))
}

func donorIDs(donors []*types.Donor) []string {
	out := make([]string, len(donors))
	for i, d := range donors {
		out[i] = d.ID
	}
	return out
}

func candidateIDs(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Donor.ID
	}
	return out
}
