package matching

import (
	"cmp"
	"slices"

	"bloodlink/internal/geo"
	"bloodlink/pkg/types"
)

// Tier is how closely a donor's location matches the request. Lower is
// better; TierNone donors are never offered.
type Tier int

const (
	TierNone Tier = iota
	TierDistrict
	TierState
	TierCountry
)

func (t Tier) String() string {
	switch t {
	case TierDistrict:
		return "same_district"
	case TierState:
		return "same_state"
	case TierCountry:
		return "same_country"
	}
	return "none"
}

type Candidate struct {
	Donor      *types.Donor `json:"donor"`
	Tier       Tier         `json:"tier"`
	DistanceKm *float64     `json:"distanceKm,omitempty"`
}

func TierFor(req *types.BloodRequest, donor *types.Donor) Tier {
	if !types.SamePlace(req.Country, donor.Country) {
		return TierNone
	}
	if !types.SamePlace(req.State, donor.State) {
		return TierCountry
	}
	if !types.SamePlace(req.District, donor.District) {
		return TierState
	}
	return TierDistrict
}

// Rank orders donors for req: by tier, then never-donated first and oldest
// last donation next, then by donor id. Donors outside the request's
// country are dropped. Distance is attached when both sides have valid
// coordinates.
func Rank(req *types.BloodRequest, donors []*types.Donor) []Candidate {
	out := make([]Candidate, 0, len(donors))
	for _, donor := range donors {
		tier := TierFor(req, donor)
		if tier == TierNone {
			continue
		}

		c := Candidate{Donor: donor, Tier: tier}
		if km, err := geo.Between(req.Location, donor.Location); err == nil {
			c.DistanceKm = &km
		}
		out = append(out, c)
	}

	slices.SortFunc(out, Compare)
	return out
}

// Compare is the total order used by Rank.
func Compare(a, b Candidate) int {
	if c := cmp.Compare(a.Tier, b.Tier); c != 0 {
		return c
	}

	la, lb := a.Donor.LastDonationDate, b.Donor.LastDonationDate
	switch {
	case la == nil && lb != nil:
		return -1
	case la != nil && lb == nil:
		return 1
	case la != nil && lb != nil:
		if c := la.Compare(*lb); c != 0 {
			return c
		}
	}

	return cmp.Compare(a.Donor.ID, b.Donor.ID)
}
