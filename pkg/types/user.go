package types

import "time"

type User struct {
	ID                string    `db:"id" json:"id"`
	Email             *string   `db:"email" json:"email,omitempty"`
	FullName          *string   `db:"full_name" json:"fullName,omitempty"`
	PhoneNumber       *string   `db:"phone_number" json:"phoneNumber,omitempty"`
	IsAdmin           bool      `db:"is_admin" json:"isAdmin"`
	BloodType         *string   `db:"blood_type" json:"bloodType,omitempty"`
	Address           *string   `db:"address" json:"address,omitempty"`
	Lat               *float64  `db:"location_lat" json:"lat,omitempty"`
	Lng               *float64  `db:"location_lng" json:"lng,omitempty"`
	IsAvailable       bool      `db:"is_available" json:"isAvailable"`
	ProfilePictureKey *string   `db:"profile_picture_key" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}
