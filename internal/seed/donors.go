package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bloodlink/internal/utils"
	"bloodlink/internal/workflow"
	"bloodlink/pkg/types"
)

type DonorCreator interface {
	Create(ctx context.Context, donor *types.Donor) error
	ByUserID(ctx context.Context, userID string) (*types.Donor, error)
}

type DonorApprover interface {
	ApproveDonor(ctx context.Context, donorID string) (*workflow.Outcome, error)
}

type place struct {
	District string
	Lat      float64
	Lng      float64
}

var keralaPlaces = []place{
	{District: "Ernakulam", Lat: 9.9816, Lng: 76.2999},
	{District: "Thiruvananthapuram", Lat: 8.5241, Lng: 76.9366},
	{District: "Kozhikode", Lat: 11.2588, Lng: 75.7804},
	{District: "Thrissur", Lat: 10.5276, Lng: 76.2144},
	{District: "Kollam", Lat: 8.8932, Lng: 76.6141},
}

// One donor per fake donor user, in the same order.
var fakeDonorProfiles = []struct {
	BloodType  string
	Place      int
	WithCoords bool
	LastDonate int // days ago, 0 for never
	GapMonths  int
	Approve    bool
}{
	{BloodType: "O+", Place: 0, WithCoords: true, Approve: true},
	{BloodType: "O+", Place: 1, WithCoords: true, LastDonate: 200, GapMonths: 3, Approve: true},
	{BloodType: "O+", Place: 0, LastDonate: 30, GapMonths: 3, Approve: true},
	{BloodType: "B-", Place: 2, WithCoords: true, Approve: true},
	{BloodType: "A+", Place: 3, Approve: true},
	{BloodType: "AB-", Place: 4, WithCoords: true, Approve: true},
	{BloodType: "O-", Place: 1, Approve: false},
	{BloodType: "A+", Place: 0, WithCoords: true, LastDonate: 120, GapMonths: 4, Approve: true},
}

// SeedDonors registers a donor for each fake donor user and approves most
// of them through the workflow so approval notifications are written.
func SeedDonors(ctx context.Context, donorRepo DonorCreator, approver DonorApprover) error {
	created, approved := 0, 0
	now := time.Now()

	for i, fakeUser := range fakeDonorUsers {
		profile := fakeDonorProfiles[i]

		donor, err := donorRepo.ByUserID(ctx, fakeUser.ID)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("failed to fetch fake donor for %s: %w", fakeUser.ID, err)
		}

		if donor == nil {
			p := keralaPlaces[profile.Place]
			donor = &types.Donor{
				UserID: fakeUser.ID,
				Location: types.Location{
					Country:  "India",
					State:    "Kerala",
					District: p.District,
					Address:  fmt.Sprintf("[seed] %s", p.District),
				},
				BloodType:         profile.BloodType,
				DateOfBirth:       now.AddDate(-25-i, 0, 0),
				WeightKg:          float64(55 + i*3),
				HealthConditions:  []string{},
				AvailabilityTime:  "weekends",
				DonationGapMonths: profile.GapMonths,
			}
			if profile.WithCoords {
				donor.Lat = utils.Float64Ptr(p.Lat)
				donor.Lng = utils.Float64Ptr(p.Lng)
			}
			if profile.LastDonate > 0 {
				donor.LastDonationDate = utils.TimePtr(now.AddDate(0, 0, -profile.LastDonate))
			}

			if err := donorRepo.Create(ctx, donor); err != nil {
				return fmt.Errorf("failed to create fake donor for %s: %w", fakeUser.ID, err)
			}
			created++
		}

		if !profile.Approve || donor.Status != types.DonorStatusPending {
			continue
		}

		outcome, err := approver.ApproveDonor(ctx, donor.ID)
		if err != nil {
			return fmt.Errorf("failed to approve fake donor %s: %w", donor.ID, err)
		}
		for _, warning := range outcome.Warnings {
			fmt.Printf("warning: %s\n", warning)
		}
		approved++
	}

	fmt.Printf("Fake donors seeded: %d created, %d approved\n", created, approved)
	return nil
}
