package inventory

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"smartqr/internal/export"
	"smartqr/internal/label"
	"smartqr/internal/models"
	"smartqr/internal/response"
	"smartqr/internal/stock"
	"smartqr/internal/store"
	"smartqr/internal/validation"
	"smartqr/internal/websocket"
)

// Handler holds dependencies for inventory handlers.
type Handler struct {
	Store    *store.Store
	Hub      *websocket.Hub
	Labels   *label.Encoder
	Exporter *export.Exporter
	Adjust   *stock.Flow
}

// GenerateLabel handles POST /api/v1/labels.
func (h *Handler) GenerateLabel(w http.ResponseWriter, r *http.Request) {
	var req label.Request
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	res, err := h.Labels.Generate(r.Context(), req)
	if err != nil {
		var ve *validation.ValidationErrors
		switch {
		case errors.Is(err, label.ErrMissingField):
			response.Err(w, "물품명과 고유코드를 모두 입력하세요.", 400)
		case errors.As(err, &ve):
			response.Err(w, ve.Error(), 400)
		default:
			response.Err(w, err.Error(), 500)
		}
		return
	}
	h.Hub.BroadcastChange("inventory", "updated", res.Item.ItemCode)
	response.JSON(w, res)
}

// LabelImage handles GET /api/v1/labels/:code.
func (h *Handler) LabelImage(w http.ResponseWriter, r *http.Request, code string) {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "item_code", code)
	validation.ValidateItemCode(ve, "item_code", code)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	path := h.Labels.Path(code)
	if _, err := os.Stat(path); err != nil {
		response.Err(w, "label not found", 404)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

// ResolveAdjust handles POST /api/v1/adjust/resolve. The body is the
// scanned payload; the answer is the item and its current stock.
func (h *Handler) ResolveAdjust(w http.ResponseWriter, r *http.Request) {
	var p models.Payload
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	p.ItemCode = strings.TrimSpace(p.ItemCode)
	if p.ItemCode == "" {
		response.Err(w, "QR 코드 인식에 실패했습니다.", 422)
		return
	}
	pending, out, err := h.Adjust.Resolve(r.Context(), &p)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if out != nil {
		response.Err(w, out.Message(), 404)
		return
	}
	response.JSON(w, pending)
}

// CommitAdjust handles POST /api/v1/adjust/commit.
func (h *Handler) CommitAdjust(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemCode string `json:"item_code"`
		Delta    *int   `json:"delta"`
	}
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "item_code", body.ItemCode)
	if body.Delta == nil {
		ve.Add("delta", "is required")
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	out, err := h.Adjust.Commit(r.Context(), strings.TrimSpace(body.ItemCode), *body.Delta)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if out.Kind == stock.NotRegistered {
		response.Err(w, out.Message(), 404)
		return
	}
	h.Hub.BroadcastChange("inventory", "updated", out.ItemCode)
	response.JSON(w, map[string]interface{}{"outcome": out, "message": out.Message()})
}

// ListInventory handles GET /api/v1/inventory.
func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSONTotal(w, items, len(items))
}

// ListRequests handles GET /api/v1/requests.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.ListRequests(r.Context())
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSONTotal(w, entries, len(entries))
}

// ClearInventory handles DELETE /api/v1/inventory?confirm=true.
func (h *Handler) ClearInventory(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		response.Err(w, "confirmation required", 409)
		return
	}
	n, err := h.Store.ClearItems(r.Context())
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	log.Printf("inventory: cleared %d items", n)
	h.Hub.BroadcastChange("inventory", "cleared", nil)
	response.JSON(w, map[string]int64{"deleted": n})
}

// ExportInventory handles POST /api/v1/inventory/export.
func (h *Handler) ExportInventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	path, err := h.Exporter.Inventory(items)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, ExportResult{Path: path, URL: "/files/exports/" + filepath.Base(path), Rows: len(items)})
}

// ExportResult points at a written spreadsheet.
type ExportResult struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	Rows int    `json:"rows"`
}

// DownloadExport handles GET /files/exports/:name.
func (h *Handler) DownloadExport(w http.ResponseWriter, r *http.Request, name string) {
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, ".xlsx") {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(h.Exporter.Dir, name)
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	http.ServeFile(w, r, path)
}
