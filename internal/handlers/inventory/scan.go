package inventory

import (
	"bytes"
	"errors"
	"image"
	"io"
	"net/http"
	"strings"

	"smartqr/internal/models"
	"smartqr/internal/response"
	"smartqr/internal/scan"
	"smartqr/internal/store"
	"smartqr/internal/validation"
)

// ScanResult is the answer to a decoded frame.
type ScanResult struct {
	Payload    models.Payload `json:"payload"`
	Registered bool           `json:"registered"`
	Item       *models.Item   `json:"item,omitempty"`
}

// DecodeFrame handles POST /api/v1/scan/decode. The frame is either the
// multipart field "frame" or the raw request body.
func (h *Handler) DecodeFrame(w http.ResponseWriter, r *http.Request) {
	data, err := readFrame(r)
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		response.Err(w, "frame is not a PNG, JPEG or GIF image", 400)
		return
	}

	payload, err := scan.DecodeImage(img)
	if err != nil {
		if errors.Is(err, scan.ErrMalformedPayload) {
			response.Err(w, "QR 코드 인식에 실패했습니다. ("+err.Error()+")", 422)
			return
		}
		response.Err(w, err.Error(), 500)
		return
	}
	if payload == nil {
		response.Err(w, "QR 코드 인식에 실패했습니다.", 422)
		return
	}

	res := ScanResult{Payload: *payload}
	item, err := h.Store.GetItem(r.Context(), payload.ItemCode)
	switch {
	case err == nil:
		res.Registered = true
		res.Item = &item
	case !errors.Is(err, store.ErrNotFound):
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, res)
}

func readFrame(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, validation.MaxFrameSize+1)
	ve := &validation.ValidationErrors{}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(validation.MaxFrameSize); err != nil {
			return nil, errors.New("invalid multipart form")
		}
		file, header, err := r.FormFile("frame")
		if err != nil {
			return nil, errors.New("frame field is required")
		}
		defer file.Close()
		validation.ValidateFrameUpload(ve, header.Filename, header.Size)
		if ve.HasErrors() {
			return nil, ve
		}
		return io.ReadAll(file)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.New("frame too large or unreadable")
	}
	validation.ValidateFrameUpload(ve, "", int64(len(data)))
	if ve.HasErrors() {
		return nil, ve
	}
	return data, nil
}
