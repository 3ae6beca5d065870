package wizard

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// MaxAvatarBytes is the largest avatar accepted: 2 MiB.
const MaxAvatarBytes int64 = 2 << 20

var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/bmp":  "bmp",
}

// ValidateAvatar checks an uploaded avatar and returns its content type. The
// type is sniffed from the bytes; a declared type that is not an image is
// rejected as well. max <= 0 means MaxAvatarBytes.
func ValidateAvatar(fileName, declaredType string, data []byte, max int64) (string, error) {
	if max <= 0 {
		max = MaxAvatarBytes
	}
	if len(data) == 0 {
		return "", ErrAvatarEmpty
	}
	if int64(len(data)) > max {
		return "", fmt.Errorf("%w: %s exceeds the %s limit", ErrAvatarTooLarge,
			humanize.IBytes(uint64(len(data))), humanize.IBytes(uint64(max)))
	}
	if declaredType != "" && !strings.HasPrefix(strings.ToLower(declaredType), "image/") {
		return "", fmt.Errorf("%w: %s declared as %s", ErrAvatarNotImage, fileName, declaredType)
	}
	sniffed := http.DetectContentType(data)
	if !strings.HasPrefix(sniffed, "image/") {
		return "", fmt.Errorf("%w: %s looks like %s", ErrAvatarNotImage, fileName, sniffed)
	}
	return sniffed, nil
}

// AvatarExtension picks the object extension for a stored avatar, preferring
// the sniffed type over the uploaded file name.
func AvatarExtension(contentType, fileName string) string {
	if ext, ok := imageExtensions[contentType]; ok {
		return ext
	}
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), "."); ext != "" {
		return ext
	}
	return "img"
}
