// Package geo computes great-circle distances between coordinates.
package geo

import (
	"fmt"
	"math"

	"bloodlink/pkg/types"
)

const EarthRadiusKm = 6371.0

type Point struct {
	Lat float64
	Lng float64
}

func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return fmt.Errorf("coordinate (%v, %v) is NaN: %w", p.Lat, p.Lng, types.ErrInvalidCoordinate)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range: %w", p.Lat, types.ErrInvalidCoordinate)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude %v out of range: %w", p.Lng, types.ErrInvalidCoordinate)
	}
	return nil
}

// FromPtrs builds a point from nullable columns.
func FromPtrs(lat, lng *float64) (Point, error) {
	if lat == nil || lng == nil {
		return Point{}, fmt.Errorf("missing coordinate: %w", types.ErrInvalidCoordinate)
	}
	p := Point{Lat: *lat, Lng: *lng}
	return p, p.Validate()
}

// Distance returns the haversine distance between a and b in kilometers.
func Distance(a, b Point) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}

	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	deltaLat := toRadians(b.Lat - a.Lat)
	deltaLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c, nil
}

// Between is Distance for two locations with optional coordinates.
func Between(a, b types.Location) (float64, error) {
	pa, err := FromPtrs(a.Lat, a.Lng)
	if err != nil {
		return 0, err
	}
	pb, err := FromPtrs(b.Lat, b.Lng)
	if err != nil {
		return 0, err
	}
	return Distance(pa, pb)
}

func toRadians(degrees float64) float64 {
	return degrees * (math.Pi / 180)
}
