package utils

import (
	"path"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	NanoidSize     = 32
	nanoidAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

func NanoID() string {
	return NanoIDSize(NanoidSize)
}

func NanoIDSize(size int) string {
	if size == 0 {
		size = NanoidSize
	}

	return gonanoid.MustGenerate(nanoidAlphabet, size)
}

// BlobKey builds an object key of the form kind/owner/<nanoid><ext>.
func BlobKey(kind, ownerID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(kind, ownerID, NanoIDSize(24)+ext)
}
