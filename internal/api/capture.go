package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/starford/florae/internal/media"
	"github.com/starford/florae/internal/models"
)

const (
	captureField   = "image"
	maxUploadBytes = 20 << 20 // 20 MB
)

var errNoUpload = errors.New("missing 'image' field in multipart form")

// readCapture reads the uploaded photo from a multipart form.
func readCapture(w http.ResponseWriter, r *http.Request) (models.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return models.Image{}, errors.New("file too large or invalid multipart")
	}

	file, header, err := r.FormFile(captureField)
	if err != nil {
		return models.Image{}, errNoUpload
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.Image{}, errors.New("failed to read upload")
	}
	if len(data) == 0 {
		return models.Image{}, errNoUpload
	}

	return models.Image{
		Data:     data,
		MIMEType: media.Detect(data, header.Header.Get("Content-Type")),
		URI:      header.Filename,
	}, nil
}
