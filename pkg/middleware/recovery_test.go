package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/utafrali/FulfillmentGo/pkg/logger"
)

func TestRecovery_PanicReturnsErrorEnvelope(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(&buf)

	handler := Recovery(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	var out struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", out.Error.Code, "INTERNAL_ERROR")
	}
	if out.Error.Message != "an internal error occurred" {
		t.Errorf("message = %q", out.Error.Message)
	}

	if buf.Len() == 0 {
		t.Fatal("expected panic to be logged")
	}
}

func TestRecovery_IncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(&buf)

	handler := Recovery(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	ctx := logger.WithCorrelationID(context.Background(), "corr-panic-1")
	req := httptest.NewRequest(http.MethodGet, "/orders", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var out struct {
		Error struct {
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Error.RequestID != "corr-panic-1" {
		t.Errorf("request_id = %q, want %q", out.Error.RequestID, "corr-panic-1")
	}
}

func TestRecovery_NoPanicPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(&buf)

	handler := Recovery(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}
