// Package seed loads demo data for local development.
package seed

import (
	"context"
	"fmt"

	"bloodlink/internal/utils"
	"bloodlink/pkg/types"
)

type UserCreator interface {
	Create(ctx context.Context, user *types.User) error
}

type fakeUserSeed struct {
	ID       string
	Email    string
	FullName string
	Phone    string
	IsAdmin  bool
}

var fakeAdmin = fakeUserSeed{
	ID: "00000000-0000-0000-0000-000000000001", Email: "admin+seed@bloodlink.example", FullName: "Seed Admin", IsAdmin: true,
}

var fakeDonorUsers = []fakeUserSeed{
	{ID: "11111111-1111-1111-1111-111111111111", Email: "anu.thomas+seed1@example.com", FullName: "Anu Thomas", Phone: "9847000001"},
	{ID: "22222222-2222-2222-2222-222222222222", Email: "arjun.menon+seed2@example.com", FullName: "Arjun Menon", Phone: "9847000002"},
	{ID: "33333333-3333-3333-3333-333333333333", Email: "fathima.k+seed3@example.com", FullName: "Fathima K", Phone: "9847000003"},
	{ID: "44444444-4444-4444-4444-444444444444", Email: "rahul.nair+seed4@example.com", FullName: "Rahul Nair", Phone: "9847000004"},
	{ID: "55555555-5555-5555-5555-555555555555", Email: "divya.pillai+seed5@example.com", FullName: "Divya Pillai", Phone: "9847000005"},
	{ID: "66666666-6666-6666-6666-666666666666", Email: "joseph.varghese+seed6@example.com", FullName: "Joseph Varghese", Phone: "9847000006"},
	{ID: "77777777-7777-7777-7777-777777777777", Email: "lakshmi.das+seed7@example.com", FullName: "Lakshmi Das", Phone: "9847000007"},
	{ID: "88888888-8888-8888-8888-888888888888", Email: "sameer.ali+seed8@example.com", FullName: "Sameer Ali", Phone: "9847000008"},
}

var fakeReceiverUsers = []fakeUserSeed{
	{ID: "99999999-9999-9999-9999-999999999991", Email: "meera.r+seed9@example.com", FullName: "Meera R", Phone: "9847000009"},
	{ID: "99999999-9999-9999-9999-999999999992", Email: "vinod.kumar+seed10@example.com", FullName: "Vinod Kumar", Phone: "9847000010"},
	{ID: "99999999-9999-9999-9999-999999999993", Email: "sneha.john+seed11@example.com", FullName: "Sneha John", Phone: "9847000011"},
}

func seedFakeReceiverIDs() []string {
	ids := make([]string, 0, len(fakeReceiverUsers))
	for _, user := range fakeReceiverUsers {
		ids = append(ids, user.ID)
	}
	return ids
}

// SeedUsers inserts the demo admin, donor and receiver users. Existing rows
// are left alone.
func SeedUsers(ctx context.Context, userRepo UserCreator) error {
	all := append([]fakeUserSeed{fakeAdmin}, fakeDonorUsers...)
	all = append(all, fakeReceiverUsers...)

	for _, fakeUser := range all {
		user := &types.User{
			ID:          fakeUser.ID,
			Email:       utils.StringPtr(fakeUser.Email),
			FullName:    utils.StringPtr(fakeUser.FullName),
			PhoneNumber: utils.TrimmedStringPtr(fakeUser.Phone),
			IsAdmin:     fakeUser.IsAdmin,
			IsAvailable: true,
		}

		if err := userRepo.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create fake user %s: %w", fakeUser.ID, err)
		}
	}

	fmt.Printf("Fake users seeded: %d ensured\n", len(all))
	return nil
}
