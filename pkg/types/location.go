package types

import "strings"

// Location is shared by donors and blood requests. Coordinates are optional;
// records without them still match on district/state/country.
type Location struct {
	Country  string   `db:"country" json:"country"`
	State    string   `db:"state" json:"state"`
	District string   `db:"district" json:"district"`
	Address  string   `db:"address" json:"address"`
	Lat      *float64 `db:"location_lat" json:"lat,omitempty"`
	Lng      *float64 `db:"location_lng" json:"lng,omitempty"`
}

func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lng != nil
}

// SamePlace compares two place names ignoring case and surrounding space.
// Empty names never match.
func SamePlace(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
