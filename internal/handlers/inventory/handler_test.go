package inventory_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"smartqr/internal/export"
	"smartqr/internal/handlers/inventory"
	"smartqr/internal/label"
	"smartqr/internal/models"
	"smartqr/internal/stock"
	"smartqr/internal/store"
	"smartqr/internal/testutil"

	"github.com/xuri/excelize/v2"
)

func newTestHandler(t *testing.T) (*inventory.Handler, *store.Store) {
	t.Helper()
	s := testutil.SetupStore(t)
	dir := t.TempDir()
	return &inventory.Handler{
		Store:    s,
		Labels:   &label.Encoder{Store: s, Dir: filepath.Join(dir, "qrcodes")},
		Exporter: &export.Exporter{Dir: filepath.Join(dir, "exports")},
		Adjust:   &stock.Flow{Store: s},
	}, s
}

func TestGenerateLabel(t *testing.T) {
	h, s := newTestHandler(t)

	body := `{"item_name":"Widget","item_code":"W1","initial_qty":10}`
	req := httptest.NewRequest("POST", "/api/v1/labels", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.GenerateLabel(w, req)

	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res label.Result
	testutil.DecodeEnvelope(t, w, &res)
	if res.Item.TotalStock != 10 || res.Payload.ItemCode != "W1" {
		t.Errorf("Unexpected result %+v", res)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Errorf("Expected label file: %v", err)
	}
	item, err := s.GetItem(context.Background(), "W1")
	if err != nil || item.TotalStock != 10 {
		t.Errorf("Expected registered W1 with 10, got %+v err=%v", item, err)
	}
}

func TestGenerateLabel_Validation(t *testing.T) {
	h, s := newTestHandler(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing code", `{"item_name":"Widget","initial_qty":1}`, 400},
		{"blank name", `{"item_name":"  ","item_code":"W1"}`, 400},
		{"negative qty", `{"item_name":"Widget","item_code":"W1","initial_qty":-1}`, 400},
		{"path in code", `{"item_name":"Widget","item_code":"../W1"}`, 400},
		{"bad json", `{`, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/labels", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.GenerateLabel(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}

	items, _ := s.ListItems(context.Background())
	if len(items) != 0 {
		t.Errorf("Expected nothing registered, got %d items", len(items))
	}
}

func TestLabelImage(t *testing.T) {
	h, _ := newTestHandler(t)
	h.Labels.Generate(context.Background(), label.Request{ItemName: "Widget", ItemCode: "W1", InitialQty: 1})

	w := httptest.NewRecorder()
	h.LabelImage(w, httptest.NewRequest("GET", "/api/v1/labels/W1", nil), "W1")
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}

	w = httptest.NewRecorder()
	h.LabelImage(w, httptest.NewRequest("GET", "/api/v1/labels/G1", nil), "G1")
	if w.Code != 404 {
		t.Errorf("Expected 404 for missing label, got %d", w.Code)
	}
}

func TestAdjust_ResolveThenCommit(t *testing.T) {
	h, s := newTestHandler(t)
	testutil.Register(t, s, "Widget", "W1", 10)

	req := httptest.NewRequest("POST", "/api/v1/adjust/resolve", strings.NewReader(`{"item_name":"Widget","item_code":"W1","initial_qty":10}`))
	w := httptest.NewRecorder()
	h.ResolveAdjust(w, req)
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var pending stock.Pending
	testutil.DecodeEnvelope(t, w, &pending)
	if pending.Current != 10 || pending.ItemCode != "W1" {
		t.Errorf("Unexpected pending %+v", pending)
	}

	w = httptest.NewRecorder()
	h.CommitAdjust(w, testutil.JSONRequest("POST", "/api/v1/adjust/commit", map[string]interface{}{"item_code": "W1", "delta": -3}))
	testutil.AssertStatus(t, w, 200)
	var res struct {
		Outcome stock.Outcome `json:"outcome"`
		Message string        `json:"message"`
	}
	testutil.DecodeEnvelope(t, w, &res)
	if res.Outcome.Item.TotalStock != 7 || res.Outcome.Status != "committed" {
		t.Errorf("Unexpected outcome %+v", res.Outcome)
	}
	if !strings.Contains(res.Message, "7") {
		t.Errorf("Expected message with new stock, got %q", res.Message)
	}
}

func TestAdjust_NotRegistered(t *testing.T) {
	h, s := newTestHandler(t)

	req := httptest.NewRequest("POST", "/api/v1/adjust/resolve", strings.NewReader(`{"item_name":"Ghost","item_code":"X9"}`))
	w := httptest.NewRecorder()
	h.ResolveAdjust(w, req)
	if w.Code != 404 {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	if msg := testutil.ErrorMessage(t, w); !strings.Contains(msg, "X9") {
		t.Errorf("Expected message naming the code, got %q", msg)
	}

	req = httptest.NewRequest("POST", "/api/v1/adjust/commit", strings.NewReader(`{"item_code":"X9","delta":5}`))
	w = httptest.NewRecorder()
	h.CommitAdjust(w, req)
	if w.Code != 404 {
		t.Errorf("Expected 404 on commit, got %d", w.Code)
	}
	items, _ := s.ListItems(context.Background())
	if len(items) != 0 {
		t.Errorf("Expected no rows created, got %d", len(items))
	}
}

func TestCommitAdjust_MissingDelta(t *testing.T) {
	h, s := newTestHandler(t)
	testutil.Register(t, s, "Widget", "W1", 10)

	w := httptest.NewRecorder()
	h.CommitAdjust(w, testutil.JSONRequest("POST", "/api/v1/adjust/commit", map[string]string{"item_code": "W1"}))
	testutil.AssertStatus(t, w, 400)
	item, _ := s.GetItem(context.Background(), "W1")
	if item.TotalStock != 10 {
		t.Errorf("Expected stock untouched, got %d", item.TotalStock)
	}
}

func TestListInventoryAndRequests(t *testing.T) {
	h, s := newTestHandler(t)
	ctx := context.Background()
	s.RegisterOrReset(ctx, "Widget", "W1", 10, "")
	s.RegisterOrReset(ctx, "Gadget", "G1", 5, "tools")
	s.AppendRequests(ctx, []models.RequestEntry{{ItemCode: "G1", ItemName: "Gadget", QuantityRequested: 5, RequestDate: "2025-03-01T10:00:00"}})

	w := httptest.NewRecorder()
	h.ListInventory(w, httptest.NewRequest("GET", "/api/v1/inventory", nil))
	var items []models.Item
	resp := testutil.DecodeEnvelope(t, w, &items)
	if len(items) != 2 || items[0].ItemCode != "W1" || items[1].Category != "tools" {
		t.Errorf("Unexpected items %+v", items)
	}
	if resp.Meta == nil || resp.Meta.Total != 2 {
		t.Errorf("Expected meta total 2, got %+v", resp.Meta)
	}

	w = httptest.NewRecorder()
	h.ListRequests(w, httptest.NewRequest("GET", "/api/v1/requests", nil))
	var entries []models.RequestEntry
	testutil.DecodeEnvelope(t, w, &entries)
	if len(entries) != 1 || entries[0].QuantityRequested != 5 {
		t.Errorf("Unexpected entries %+v", entries)
	}
}

func TestListInventory_Empty(t *testing.T) {
	h, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	h.ListInventory(w, httptest.NewRequest("GET", "/api/v1/inventory", nil))
	if !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Errorf("Expected empty array, got %s", w.Body.String())
	}
}

func TestClearInventory_RequiresConfirm(t *testing.T) {
	h, s := newTestHandler(t)
	ctx := context.Background()
	s.RegisterOrReset(ctx, "Widget", "W1", 10, "")
	s.AppendRequests(ctx, []models.RequestEntry{{ItemCode: "W1", ItemName: "Widget", QuantityRequested: 1, RequestDate: "2025-03-01T10:00:00"}})

	w := httptest.NewRecorder()
	h.ClearInventory(w, httptest.NewRequest("DELETE", "/api/v1/inventory", nil))
	if w.Code != 409 {
		t.Errorf("Expected 409 without confirm, got %d", w.Code)
	}
	if items, _ := s.ListItems(ctx); len(items) != 1 {
		t.Fatalf("Expected item kept, got %d", len(items))
	}

	w = httptest.NewRecorder()
	h.ClearInventory(w, httptest.NewRequest("DELETE", "/api/v1/inventory?confirm=true", nil))
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if items, _ := s.ListItems(ctx); len(items) != 0 {
		t.Errorf("Expected inventory empty, got %d", len(items))
	}
	if entries, _ := s.ListRequests(ctx); len(entries) != 1 {
		t.Errorf("Expected request log untouched, got %d", len(entries))
	}
}

func TestExportInventory(t *testing.T) {
	h, s := newTestHandler(t)
	ctx := context.Background()
	s.RegisterOrReset(ctx, "Widget", "W1", 10, "")
	s.Adjust(ctx, "W1", -3)

	w := httptest.NewRecorder()
	h.ExportInventory(w, httptest.NewRequest("POST", "/api/v1/inventory/export", nil))
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res inventory.ExportResult
	testutil.DecodeEnvelope(t, w, &res)

	f, err := excelize.OpenFile(res.Path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows("Inventory")
	if len(rows) != 2 {
		t.Fatalf("Expected header plus 1 row, got %d", len(rows))
	}
	want := []string{"Widget", "W1", "7"}
	for i, v := range want {
		if rows[1][i] != v {
			t.Errorf("col %d: expected %q, got %q", i, v, rows[1][i])
		}
	}

	name := filepath.Base(res.Path)
	w = httptest.NewRecorder()
	h.DownloadExport(w, httptest.NewRequest("GET", res.URL, nil), name)
	if w.Code != 200 || w.Body.Len() == 0 {
		t.Errorf("Expected download, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.DownloadExport(w, httptest.NewRequest("GET", "/files/exports/x", nil), "../data.db")
	if w.Code != 404 {
		t.Errorf("Expected 404 for traversal, got %d", w.Code)
	}
}

func qrFrame(t *testing.T, p models.Payload) []byte {
	t.Helper()
	data, err := label.EncodePNG(p, 256)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func blankFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestDecodeFrame_RawBody(t *testing.T) {
	h, s := newTestHandler(t)
	testutil.Register(t, s, "Widget", "W1", 10)

	req := httptest.NewRequest("POST", "/api/v1/scan/decode", bytes.NewReader(qrFrame(t, models.Payload{ItemName: "Widget", ItemCode: "W1", InitialQty: 10})))
	req.Header.Set("Content-Type", "image/png")
	w := httptest.NewRecorder()
	h.DecodeFrame(w, req)
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res inventory.ScanResult
	testutil.DecodeEnvelope(t, w, &res)
	if !res.Registered || res.Item == nil || res.Item.TotalStock != 10 {
		t.Errorf("Unexpected scan result %+v", res)
	}
}

func TestDecodeFrame_Multipart(t *testing.T) {
	h, _ := newTestHandler(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("frame", "frame.png")
	fw.Write(qrFrame(t, models.Payload{ItemName: "Gadget", ItemCode: "G1"}))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/scan/decode", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.DecodeFrame(w, req)
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res inventory.ScanResult
	testutil.DecodeEnvelope(t, w, &res)
	if res.Registered || res.Payload.ItemCode != "G1" {
		t.Errorf("Expected unregistered G1, got %+v", res)
	}
}

func TestDecodeFrame_Failures(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name string
		body []byte
		want int
	}{
		{"empty", nil, 400},
		{"not an image", []byte("hello"), 400},
		{"no code", blankFrame(t), 422},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/scan/decode", bytes.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.DecodeFrame(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}
