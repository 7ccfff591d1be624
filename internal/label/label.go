package label

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"smartqr/internal/models"
	"smartqr/internal/validation"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrMissingField is wrapped by Generate when the name or code is blank.
var ErrMissingField = errors.New("missing required field")

// DefaultSize is the edge length of a label image in pixels.
const DefaultSize = 256

// Registrar is the store operation a label generation ends with.
type Registrar interface {
	RegisterOrReset(ctx context.Context, name, code string, qty int, category string) (models.Item, error)
}

// Encoder writes QR label images and registers the labelled item.
type Encoder struct {
	Store  Registrar
	Dir    string // label directory, usually <workdir>/qrcodes
	Size   int
	MaxQty int
}

// Request is the form input for one label.
type Request struct {
	ItemName   string `json:"item_name"`
	ItemCode   string `json:"item_code"`
	InitialQty int    `json:"initial_qty"`
	Category   string `json:"category"`
}

// Result describes a generated label.
type Result struct {
	Path    string         `json:"path"`
	Payload models.Payload `json:"payload"`
	Item    models.Item    `json:"item"`
}

// Validate trims req in place and reports every problem with it.
func (e *Encoder) Validate(req *Request) error {
	req.ItemName = strings.TrimSpace(req.ItemName)
	req.ItemCode = strings.TrimSpace(req.ItemCode)
	req.Category = strings.TrimSpace(req.Category)

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "item_name", req.ItemName)
	validation.RequireField(ve, "item_code", req.ItemCode)
	if ve.HasErrors() {
		return fmt.Errorf("%w: %s", ErrMissingField, ve.Error())
	}
	validation.ValidateItemCode(ve, "item_code", req.ItemCode)
	validation.ValidateMaxLength(ve, "item_name", req.ItemName, validation.MaxStringLength)
	validation.ValidateMaxLength(ve, "item_code", req.ItemCode, validation.MaxStringLength)
	validation.ValidateIntRange(ve, "initial_qty", req.InitialQty, 0, e.maxQty())
	return ve.Err()
}

// Generate writes the label image for req, overwriting any earlier image
// for the same code, and then registers the item or resets its stock to
// req.InitialQty. The image and the row are not written atomically.
func (e *Encoder) Generate(ctx context.Context, req Request) (Result, error) {
	if err := e.Validate(&req); err != nil {
		return Result{}, err
	}

	payload := models.Payload{ItemName: req.ItemName, ItemCode: req.ItemCode, InitialQty: req.InitialQty}
	png, err := EncodePNG(payload, e.size())
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create label dir: %w", err)
	}
	path := e.Path(req.ItemCode)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return Result{}, fmt.Errorf("write label: %w", err)
	}

	item, err := e.Store.RegisterOrReset(ctx, req.ItemName, req.ItemCode, req.InitialQty, req.Category)
	if err != nil {
		return Result{}, fmt.Errorf("register %s: %w", req.ItemCode, err)
	}
	log.Printf("label: generated %s (%s) qty=%d -> %s", req.ItemCode, req.ItemName, req.InitialQty, path)
	return Result{Path: path, Payload: payload, Item: item}, nil
}

// Path is the deterministic image location for code.
func (e *Encoder) Path(code string) string {
	return filepath.Join(e.Dir, code+".png")
}

func (e *Encoder) size() int {
	if e.Size <= 0 {
		return DefaultSize
	}
	return e.Size
}

func (e *Encoder) maxQty() int {
	if e.MaxQty <= 0 {
		return validation.MaxQuantity
	}
	return e.MaxQty
}

// EncodePNG renders payload as a QR code PNG of the given edge length.
func EncodePNG(payload models.Payload, size int) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(string(data), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
