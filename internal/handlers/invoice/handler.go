package invoice

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"smartqr/internal/invoice"
	"smartqr/internal/models"
	"smartqr/internal/response"
	"smartqr/internal/store"
	"smartqr/internal/validation"
	"smartqr/internal/websocket"
)

// Handler holds dependencies for invoice handlers.
type Handler struct {
	Service  *invoice.Service
	Drafts   *invoice.Drafts
	Hub      *websocket.Hub
	Operator string // default requester
	MaxQty   int
}

// LineRequest adds one item to an invoice. Either a scanned payload or a
// bare item code selects the item.
type LineRequest struct {
	Payload   *models.Payload `json:"payload,omitempty"`
	ItemCode  string          `json:"item_code,omitempty"`
	Qty       int             `json:"qty"`
	Requester string          `json:"requester,omitempty"`
}

// DraftView is a draft and its numbered lines.
type DraftView struct {
	ID    string               `json:"id"`
	Lines []models.InvoiceLine `json:"lines"`
}

// GenerateResult reports a written invoice.
type GenerateResult struct {
	invoice.Receipt
	URL string `json:"url"`
}

func view(d *invoice.Draft) DraftView {
	return DraftView{ID: d.ID, Lines: d.Lines()}
}

func (h *Handler) requester(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return h.Operator
}

func (h *Handler) maxQty() int {
	if h.MaxQty <= 0 {
		return validation.MaxQuantity
	}
	return h.MaxQty
}

// line validates req and resolves it against the inventory.
func (h *Handler) line(r *http.Request, req LineRequest) (models.InvoiceLine, int, error) {
	ve := &validation.ValidationErrors{}
	if req.Payload == nil {
		validation.RequireField(ve, "item_code", req.ItemCode)
	}
	validation.ValidateIntRange(ve, "qty", req.Qty, 1, h.maxQty())
	if ve.HasErrors() {
		return models.InvoiceLine{}, 400, ve
	}

	var (
		l   models.InvoiceLine
		err error
	)
	if req.Payload != nil {
		l, err = h.Service.LineFromPayload(r.Context(), req.Payload, req.Qty)
	} else {
		l, err = h.Service.LineFromCode(r.Context(), strings.TrimSpace(req.ItemCode), req.Qty)
	}
	return l, status(err), err
}

func status(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, store.ErrNotFound):
		return 404
	case errors.Is(err, invoice.ErrEmptyDraft), errors.Is(err, invoice.ErrInvalidQty):
		return 400
	}
	return 500
}

func (h *Handler) written(rec invoice.Receipt) GenerateResult {
	h.Hub.BroadcastChange("requests", "created", len(rec.Entries))
	return GenerateResult{Receipt: rec, URL: "/files/exports/" + filepath.Base(rec.Path)}
}

// QuickInvoice handles POST /api/v1/invoices/quick.
func (h *Handler) QuickInvoice(w http.ResponseWriter, r *http.Request) {
	var req LineRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	l, code, err := h.line(r, req)
	if err != nil {
		response.Err(w, err.Error(), code)
		return
	}
	rec, err := h.Service.Quick(r.Context(), l, h.requester(req.Requester))
	if err != nil {
		response.Err(w, err.Error(), status(err))
		return
	}
	response.JSON(w, h.written(rec))
}

// OpenDraft handles POST /api/v1/invoices/drafts.
func (h *Handler) OpenDraft(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, view(h.Drafts.Open()))
}

// GetDraft handles GET /api/v1/invoices/drafts/:id.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request, id string) {
	d, ok := h.Drafts.Get(id)
	if !ok {
		response.Err(w, "draft not found", 404)
		return
	}
	response.JSON(w, view(d))
}

// DiscardDraft handles DELETE /api/v1/invoices/drafts/:id.
func (h *Handler) DiscardDraft(w http.ResponseWriter, r *http.Request, id string) {
	if !h.Drafts.Discard(id) {
		response.Err(w, "draft not found", 404)
		return
	}
	response.JSON(w, map[string]string{"status": "discarded"})
}

// AddLine handles POST /api/v1/invoices/drafts/:id/lines.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request, id string) {
	d, ok := h.Drafts.Get(id)
	if !ok {
		response.Err(w, "draft not found", 404)
		return
	}
	var req LineRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	l, code, err := h.line(r, req)
	if err != nil {
		response.Err(w, err.Error(), code)
		return
	}
	d.Add(l)
	response.JSON(w, view(d))
}

// RemoveLines handles DELETE /api/v1/invoices/drafts/:id/lines with a body
// of {"positions": [...]}. Positions are zero-based; unknown ones are
// ignored.
func (h *Handler) RemoveLines(w http.ResponseWriter, r *http.Request, id string) {
	d, ok := h.Drafts.Get(id)
	if !ok {
		response.Err(w, "draft not found", 404)
		return
	}
	var body struct {
		Positions []int `json:"positions"`
	}
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	d.Remove(body.Positions...)
	response.JSON(w, view(d))
}

// GenerateInvoice handles POST /api/v1/invoices/drafts/:id/generate. The
// draft is closed once its invoice is written.
func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request, id string) {
	d, ok := h.Drafts.Get(id)
	if !ok {
		response.Err(w, "draft not found", 404)
		return
	}
	var body struct {
		Requester string `json:"requester"`
	}
	if r.ContentLength != 0 {
		if err := response.DecodeBody(r, &body); err != nil {
			response.Err(w, "invalid body", 400)
			return
		}
	}
	rec, err := h.Service.Flush(r.Context(), d, h.requester(body.Requester))
	if err != nil {
		response.Err(w, err.Error(), status(err))
		return
	}
	h.Drafts.Discard(id)
	response.JSON(w, h.written(rec))
}
