package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smartqr/internal/models"
	"smartqr/internal/store"
)

// Clock is the fixed time test stores and services stamp rows with.
var Clock = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }

// SetupStore opens an in-memory store with the fixed clock and closes it
// when the test ends.
func SetupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	s.Now = Clock
	t.Cleanup(func() { s.Close() })
	return s
}

// Register adds an item without a category.
func Register(t *testing.T, s *store.Store, name, code string, qty int) models.Item {
	t.Helper()
	item, err := s.RegisterOrReset(context.Background(), name, code, qty, "")
	if err != nil {
		t.Fatalf("Failed to register %s: %v", code, err)
	}
	return item
}

// JSONRequest builds a request with body marshalled as JSON.
func JSONRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeAPIResponse decodes the response envelope.
func DecodeAPIResponse(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode API response: %v", err)
	}
	return response
}

// AssertStatus fails the test when the recorded status differs.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes the "data" member of the envelope into v.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) models.APIResponse {
	t.Helper()
	resp := DecodeAPIResponse(t, w)
	dataBytes, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(dataBytes, v); err != nil {
		t.Fatalf("Failed to decode data from envelope: %v", err)
	}
	return resp
}

// ErrorMessage returns the "error" member of an error response.
func ErrorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp["error"]
}
