package types

import "strings"

var BloodTypes = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// NormalizeBloodType upper-cases and trims a blood type. It does not
// validate; use ValidBloodType for that.
func NormalizeBloodType(bt string) string {
	return strings.ToUpper(strings.TrimSpace(bt))
}

func ValidBloodType(bt string) bool {
	for _, v := range BloodTypes {
		if v == bt {
			return true
		}
	}
	return false
}
