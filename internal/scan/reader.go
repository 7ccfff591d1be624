package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"smartqr/internal/models"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/nfnt/resize"
)

// ErrMalformedPayload is returned when a QR code decodes to something that
// is not a label record.
var ErrMalformedPayload = errors.New("malformed label payload")

// DefaultMaxEdge bounds the longer side of a frame before decoding.
const DefaultMaxEdge = 1280

// FrameSource yields camera frames. Next blocks until a frame is available,
// the context ends, or the source is exhausted (io.EOF).
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
}

// Reader runs the read-decode loop over a FrameSource.
type Reader struct {
	Source FrameSource

	// Preview, when set, receives every frame before it is decoded.
	Preview func(image.Image)

	// MaxEdge is the largest frame side handed to the decoder; larger
	// frames are downscaled. Zero means DefaultMaxEdge.
	MaxEdge int
}

// Scan reads frames until one carries a QR code and returns its parsed
// payload. It returns (nil, nil) when the source ends or ctx is cancelled
// before anything was recognised.
func (r *Reader) Scan(ctx context.Context) (*models.Payload, error) {
	for {
		img, err := r.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil, nil
			}
			return nil, err
		}
		if r.Preview != nil {
			r.Preview(img)
		}
		text, ok := decodeText(r.shrink(img))
		if !ok {
			continue
		}
		return ParsePayload([]byte(text))
	}
}

func (r *Reader) shrink(img image.Image) image.Image {
	edge := r.MaxEdge
	if edge <= 0 {
		edge = DefaultMaxEdge
	}
	b := img.Bounds()
	if b.Dx() <= edge && b.Dy() <= edge {
		return img
	}
	return resize.Thumbnail(uint(edge), uint(edge), img, resize.Bilinear)
}

var decodeHints = map[gozxing.DecodeHintType]interface{}{
	gozxing.DecodeHintType_TRY_HARDER: true,
}

func decodeText(img image.Image) (string, bool) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false
	}
	res, err := zxqr.NewQRCodeReader().Decode(bmp, decodeHints)
	if err != nil {
		return "", false
	}
	return res.GetText(), true
}

// DecodeImage decodes a single still frame. It returns (nil, nil) when the
// frame holds no QR code.
func DecodeImage(img image.Image) (*models.Payload, error) {
	r := &Reader{Source: &ImageSource{Frames: []image.Image{img}}}
	return r.Scan(context.Background())
}

// ParsePayload parses the JSON carried by a label.
func ParsePayload(data []byte) (*models.Payload, error) {
	var p models.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	p.ItemCode = strings.TrimSpace(p.ItemCode)
	if p.ItemCode == "" || strings.TrimSpace(p.ItemName) == "" {
		return nil, fmt.Errorf("%w: item_name and item_code are required", ErrMalformedPayload)
	}
	return &p, nil
}
