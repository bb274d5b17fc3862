package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"bloodlink/internal/utils"
	"bloodlink/pkg/types"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"
)

const (
	dateLayout      = "2006-01-02"
	maxJSONBodySize = 1 << 20
)

var decoder = form.NewDecoder()

var validate = newValidator()

var (
	hasUpperReg  = regexp.MustCompile(`[A-Z]`)
	hasLowerReg  = regexp.MustCompile(`[a-z]`)
	hasDigitReg  = regexp.MustCompile(`[0-9]`)
	hasSymbolReg = regexp.MustCompile(`[^A-Za-z0-9]`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("blood_type", func(fl validator.FieldLevel) bool {
		return types.ValidBloodType(fl.Field().String())
	})

	_ = v.RegisterValidation("strong_password", func(fl validator.FieldLevel) bool {
		password := fl.Field().String()
		return len(password) >= 12 &&
			hasUpperReg.MatchString(password) &&
			hasLowerReg.MatchString(password) &&
			hasDigitReg.MatchString(password) &&
			hasSymbolReg.MatchString(password)
	})

	return v
}

// fieldErrors maps a form field name to a human readable problem.
type fieldErrors map[string]string

func (f fieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("invalid fields: %s", strings.Join(keys, ", "))
}

func (f fieldErrors) Unwrap() error {
	return types.ErrInvalidInput
}

type normalizer interface {
	normalize()
}

// decodeForm fills dst from a JSON, multipart or url-encoded body, then
// normalizes and validates it.
func decodeForm(r *http.Request, dst any, maxMemory int64) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodySize))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			return fmt.Errorf("malformed json body: %v: %w", err, types.ErrInvalidInput)
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return fmt.Errorf("malformed multipart body: %v: %w", err, types.ErrInvalidInput)
		}
		if err := decoder.Decode(dst, r.Form); err != nil {
			return fmt.Errorf("malformed form body: %v: %w", err, types.ErrInvalidInput)
		}
	default:
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("malformed form body: %v: %w", err, types.ErrInvalidInput)
		}
		if err := decoder.Decode(dst, r.Form); err != nil {
			return fmt.Errorf("malformed form body: %v: %w", err, types.ErrInvalidInput)
		}
	}

	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}

	return validateForm(dst)
}

func validateForm(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate form: %w", err)
	}

	fields := fieldErrors{}
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_with", "required_without":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "blood_type":
		return "Choose one of " + strings.Join(types.BloodTypes, ", ") + "."
	case "strong_password":
		return "Password must be at least 12 characters and include uppercase, lowercase, number, and symbol."
	case "eqfield":
		return "Passwords do not match."
	case "datetime":
		return "Use the YYYY-MM-DD format."
	case "min", "gte", "gt":
		return "Value is too small."
	case "max", "lte", "lt":
		return "Value is too large."
	case "oneof":
		return "Choose one of " + fe.Param() + "."
	}
	return "Value is invalid."
}

func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil
	}
	return &t
}

type registerForm struct {
	Email           string `form:"email" json:"email" validate:"required,email"`
	FullName        string `form:"full_name" json:"full_name" validate:"required,max=200"`
	Password        string `form:"password" json:"password" validate:"required,strong_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password" validate:"eqfield=Password"`
}

func (f *registerForm) normalize() {
	f.Email = strings.TrimSpace(f.Email)
	f.FullName = strings.TrimSpace(f.FullName)
}

type confirmForm struct {
	Email string `form:"email" json:"email" validate:"required,email"`
	Code  string `form:"code" json:"code" validate:"required,max=16"`
}

func (f *confirmForm) normalize() {
	f.Email = strings.TrimSpace(f.Email)
	f.Code = strings.TrimSpace(f.Code)
}

type loginForm struct {
	Email    string `form:"email" json:"email" validate:"required,email"`
	Password string `form:"password" json:"password" validate:"required"`
}

func (f *loginForm) normalize() {
	f.Email = strings.TrimSpace(f.Email)
}

type bloodRequestForm struct {
	PatientName   string   `form:"patient_name" json:"patient_name" validate:"required,max=200"`
	BloodType     string   `form:"blood_type" json:"blood_type" validate:"required,blood_type"`
	Age           int      `form:"age" json:"age" validate:"gte=0,lte=130"`
	PhoneNumber   string   `form:"phone_number" json:"phone_number" validate:"required,min=6,max=20"`
	ContactNumber string   `form:"contact_number" json:"contact_number" validate:"-"`
	Reason        string   `form:"reason" json:"reason" validate:"max=2000"`
	Country       string   `form:"country" json:"country" validate:"required,max=100"`
	State         string   `form:"state" json:"state" validate:"required,max=100"`
	District      string   `form:"district" json:"district" validate:"required,max=100"`
	Address       string   `form:"address" json:"address" validate:"max=500"`
	Lat           *float64 `form:"location_lat" json:"location_lat" validate:"required_with=Lng,omitempty,gte=-90,lte=90"`
	Lng           *float64 `form:"location_lng" json:"location_lng" validate:"required_with=Lat,omitempty,gte=-180,lte=180"`
}

// contact_number is accepted as an alias of phone_number.
func (f *bloodRequestForm) normalize() {
	f.PatientName = strings.TrimSpace(f.PatientName)
	f.BloodType = types.NormalizeBloodType(f.BloodType)
	f.PhoneNumber = strings.TrimSpace(f.PhoneNumber)
	if f.PhoneNumber == "" {
		f.PhoneNumber = strings.TrimSpace(f.ContactNumber)
	}
	f.Reason = strings.TrimSpace(f.Reason)
	f.Country = strings.TrimSpace(f.Country)
	f.State = strings.TrimSpace(f.State)
	f.District = strings.TrimSpace(f.District)
	f.Address = strings.TrimSpace(f.Address)
}

func (f *bloodRequestForm) request(userID string) *types.BloodRequest {
	return &types.BloodRequest{
		UserID: userID,
		Location: types.Location{
			Country:  f.Country,
			State:    f.State,
			District: f.District,
			Address:  f.Address,
			Lat:      f.Lat,
			Lng:      f.Lng,
		},
		PatientName: f.PatientName,
		BloodType:   f.BloodType,
		Age:         f.Age,
		PhoneNumber: f.PhoneNumber,
		Reason:      f.Reason,
	}
}

type donorForm struct {
	FullName          string   `form:"full_name" json:"full_name" validate:"max=200"`
	PhoneNumber       string   `form:"phone_number" json:"phone_number" validate:"omitempty,min=6,max=20"`
	ContactNumber     string   `form:"contact_number" json:"contact_number" validate:"-"`
	BloodType         string   `form:"blood_type" json:"blood_type" validate:"required,blood_type"`
	DateOfBirth       string   `form:"date_of_birth" json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	WeightKg          float64  `form:"weight_kg" json:"weight_kg" validate:"required,gt=0,lte=500"`
	HealthConditions  []string `form:"health_conditions" json:"health_conditions" validate:"max=20,dive,max=200"`
	AvailabilityTime  string   `form:"availability_time" json:"availability_time" validate:"required,max=100"`
	LastDonationDate  string   `form:"last_donation_date" json:"last_donation_date" validate:"omitempty,datetime=2006-01-02"`
	DonationGapMonths int      `form:"donation_gap_months" json:"donation_gap_months" validate:"gte=0,lte=24"`
	Country           string   `form:"country" json:"country" validate:"required,max=100"`
	State             string   `form:"state" json:"state" validate:"required,max=100"`
	District          string   `form:"district" json:"district" validate:"required,max=100"`
	Address           string   `form:"address" json:"address" validate:"required,max=500"`
	Lat               *float64 `form:"location_lat" json:"location_lat" validate:"required_with=Lng,omitempty,gte=-90,lte=90"`
	Lng               *float64 `form:"location_lng" json:"location_lng" validate:"required_with=Lat,omitempty,gte=-180,lte=180"`
}

func (f *donorForm) normalize() {
	f.FullName = strings.TrimSpace(f.FullName)
	f.PhoneNumber = strings.TrimSpace(f.PhoneNumber)
	if f.PhoneNumber == "" {
		f.PhoneNumber = strings.TrimSpace(f.ContactNumber)
	}
	f.BloodType = types.NormalizeBloodType(f.BloodType)
	f.AvailabilityTime = strings.TrimSpace(f.AvailabilityTime)
	conditions := f.HealthConditions[:0]
	for _, c := range f.HealthConditions {
		if c = strings.TrimSpace(c); c != "" {
			conditions = append(conditions, c)
		}
	}
	f.HealthConditions = conditions
	f.Country = strings.TrimSpace(f.Country)
	f.State = strings.TrimSpace(f.State)
	f.District = strings.TrimSpace(f.District)
	f.Address = strings.TrimSpace(f.Address)
}

// donor builds the donor row. Dates have already passed validation.
func (f *donorForm) donor(userID string, now time.Time) (*types.Donor, error) {
	dob := parseDate(f.DateOfBirth)
	if dob == nil || !dob.Before(now) {
		return nil, fieldErrors{"date_of_birth": "Date of birth must be in the past."}
	}

	last := parseDate(f.LastDonationDate)
	if last != nil && last.After(now) {
		return nil, fieldErrors{"last_donation_date": "Last donation date cannot be in the future."}
	}

	return &types.Donor{
		UserID: userID,
		Location: types.Location{
			Country:  f.Country,
			State:    f.State,
			District: f.District,
			Address:  f.Address,
			Lat:      f.Lat,
			Lng:      f.Lng,
		},
		BloodType:         f.BloodType,
		DateOfBirth:       *dob,
		WeightKg:          f.WeightKg,
		HealthConditions:  f.HealthConditions,
		AvailabilityTime:  f.AvailabilityTime,
		LastDonationDate:  last,
		DonationGapMonths: f.DonationGapMonths,
	}, nil
}

type profileForm struct {
	FullName    string   `form:"full_name" json:"full_name" validate:"max=200"`
	PhoneNumber string   `form:"phone_number" json:"phone_number" validate:"omitempty,min=6,max=20"`
	BloodType   string   `form:"blood_type" json:"blood_type" validate:"omitempty,blood_type"`
	Address     string   `form:"address" json:"address" validate:"max=500"`
	Lat         *float64 `form:"location_lat" json:"location_lat" validate:"required_with=Lng,omitempty,gte=-90,lte=90"`
	Lng         *float64 `form:"location_lng" json:"location_lng" validate:"required_with=Lat,omitempty,gte=-180,lte=180"`
	IsAvailable *bool    `form:"is_available" json:"is_available"`
}

func (f *profileForm) normalize() {
	f.BloodType = types.NormalizeBloodType(f.BloodType)
}

// apply copies the submitted fields onto user. Blank strings clear a field.
func (f *profileForm) apply(user *types.User) {
	user.FullName = utils.TrimmedStringPtr(f.FullName)
	user.PhoneNumber = utils.TrimmedStringPtr(f.PhoneNumber)
	user.BloodType = utils.TrimmedStringPtr(f.BloodType)
	user.Address = utils.TrimmedStringPtr(f.Address)
	user.Lat = f.Lat
	user.Lng = f.Lng
	if f.IsAvailable != nil {
		user.IsAvailable = *f.IsAvailable
	}
}

type selectDonorForm struct {
	DonorID string `form:"donor_id" json:"donor_id" validate:"required,max=64"`
}

func (f *selectDonorForm) normalize() {
	f.DonorID = strings.TrimSpace(f.DonorID)
}
