// Package media handles image payload encodings: data URIs, MIME types and checksums.
package media

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/starford/florae/internal/models"
)

// ErrNoImage is returned when a stored value carries no decodable image.
var ErrNoImage = errors.New("media: no image data")

var (
	mimeToExt = map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"image/gif":  ".gif",
		"image/webp": ".webp",
		"image/heic": ".heic",
	}

	bareBase64Re = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Ext returns the file extension for an image MIME type, or ".bin".
func Ext(mime string) string {
	if ext, ok := mimeToExt[strings.ToLower(strings.TrimSpace(mime))]; ok {
		return ext
	}
	return ".bin"
}

// Supported reports whether mime is an accepted image type.
func Supported(mime string) bool {
	_, ok := mimeToExt[strings.ToLower(strings.TrimSpace(mime))]
	return ok
}

// Detect sniffs the MIME type of data, honouring a declared type when it is a known image type.
func Detect(data []byte, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	if Supported(declared) {
		return declared
	}
	sniffed := http.DetectContentType(data)
	if Supported(sniffed) {
		return sniffed
	}
	return models.DefaultImageMIME
}

// DecodeDataURI parses data:<mime>;base64,<payload>.
func DecodeDataURI(uri string) (models.Image, error) {
	rest := strings.TrimPrefix(strings.TrimSpace(uri), "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return models.Image{}, fmt.Errorf("media: invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return models.Image{}, fmt.Errorf("media: only base64 data URIs are supported")
	}

	data, err := decodeBase64(encoded)
	if err != nil {
		return models.Image{}, err
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	if mime == "" {
		mime = models.DefaultImageMIME
	}
	return models.Image{Data: data, MIMEType: mime}, nil
}

// Resolve turns a stored image_data value into image bytes. It accepts data
// URIs and bare base64 payloads, which older rows carry without a prefix.
func Resolve(stored string) (models.Image, error) {
	trimmed := strings.TrimSpace(stored)
	if trimmed == "" {
		return models.Image{}, ErrNoImage
	}
	if strings.HasPrefix(trimmed, "data:") {
		return DecodeDataURI(trimmed)
	}
	compact := strings.Join(strings.Fields(trimmed), "")
	if !bareBase64Re.MatchString(compact) {
		return models.Image{}, ErrNoImage
	}
	data, err := decodeBase64(compact)
	if err != nil {
		return models.Image{}, err
	}
	return models.Image{Data: data, MIMEType: models.DefaultImageMIME}, nil
}

func decodeBase64(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("media: invalid base64 data: %w", err)
		}
	}
	return data, nil
}
