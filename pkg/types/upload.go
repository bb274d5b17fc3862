package types

// Upload kinds, used as the first segment of a blob key.
const (
	UploadKindPrescription   = "prescriptions"
	UploadKindProfilePicture = "profile-pictures"
)

var AllowedUploadMimeTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
}
