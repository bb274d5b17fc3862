package seed

import (
	"context"
	"fmt"
	"math/rand"

	"bloodlink/internal/utils"
	"bloodlink/internal/workflow"
	"bloodlink/pkg/types"

	"github.com/jackc/pgx/v5/pgxpool"
)

type RequestCreator interface {
	Create(ctx context.Context, request *types.BloodRequest) error
}

type RequestApprover interface {
	ApproveRequest(ctx context.Context, requestID string) (*workflow.Outcome, error)
}

var fakeRequestReasons = []string{
	"Scheduled cardiac surgery.",
	"Accident trauma, emergency ward.",
	"Dengue with low platelet count.",
	"Post delivery complications.",
	"Chemotherapy support.",
	"Thalassemia transfusion cycle.",
}

var fakePatientNames = []string{"Ravi", "Sarala", "Thomas", "Aysha", "Gopalan", "Maya", "Kiran"}

type weightedRequestStatus struct {
	Status types.RequestStatus
	Weight int
}

// Seeded requests only reach statuses that need no donor.
var weightedStatuses = []weightedRequestStatus{
	{Status: types.RequestStatusPending, Weight: 40},
	{Status: types.RequestStatusApproved, Weight: 60},
}

// SeedRequests creates count requests for the fake receivers. Blood types
// are drawn from the seeded donors so candidate search has results. With
// reset, previously seeded requests are deleted first.
func SeedRequests(
	ctx context.Context,
	pool *pgxpool.Pool,
	requestRepo RequestCreator,
	approver RequestApprover,
	rng *rand.Rand,
	count int,
	reset bool,
) error {
	if count <= 0 {
		fmt.Println("Skipping fake requests seed because count <= 0")
		return nil
	}

	if reset {
		result, err := pool.Exec(ctx, `DELETE FROM blood_requests WHERE reason LIKE '[seed] %'`)
		if err != nil {
			return fmt.Errorf("failed to reset seeded fake requests: %w", err)
		}
		fmt.Printf("Reset seeded fake requests: %d deleted\n", result.RowsAffected())
	}

	receiverIDs := seedFakeReceiverIDs()

	created, approved := 0, 0
	for i := 0; i < count; i++ {
		profile := fakeDonorProfiles[rng.Intn(len(fakeDonorProfiles))]
		p := keralaPlaces[rng.Intn(len(keralaPlaces))]

		request := &types.BloodRequest{
			UserID: receiverIDs[rng.Intn(len(receiverIDs))],
			Location: types.Location{
				Country:  "India",
				State:    "Kerala",
				District: p.District,
			},
			PatientName: fakePatientNames[rng.Intn(len(fakePatientNames))],
			BloodType:   profile.BloodType,
			Age:         rng.Intn(70) + 5,
			PhoneNumber: fmt.Sprintf("98470%05d", rng.Intn(100000)),
			Reason:      fmt.Sprintf("[seed] %s", fakeRequestReasons[rng.Intn(len(fakeRequestReasons))]),
		}
		if rng.Intn(100) < 60 {
			request.Lat = utils.Float64Ptr(p.Lat)
			request.Lng = utils.Float64Ptr(p.Lng)
		}

		if err := requestRepo.Create(ctx, request); err != nil {
			return fmt.Errorf("failed to create fake request %d: %w", i+1, err)
		}
		created++

		if pickWeightedStatus(rng) != types.RequestStatusApproved {
			continue
		}

		if _, err := approver.ApproveRequest(ctx, request.ID); err != nil {
			return fmt.Errorf("failed to approve fake request %s: %w", request.ID, err)
		}
		approved++
	}

	fmt.Printf("Fake requests seeded: %d created, %d approved\n", created, approved)
	return nil
}

func pickWeightedStatus(rng *rand.Rand) types.RequestStatus {
	total := 0
	for _, item := range weightedStatuses {
		total += item.Weight
	}

	if total == 0 {
		return types.RequestStatusPending
	}

	roll := rng.Intn(total)
	running := 0
	for _, item := range weightedStatuses {
		running += item.Weight
		if roll < running {
			return item.Status
		}
	}

	return types.RequestStatusPending
}
