package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meridian-robotics/pointcloud.replay/internal/monitoring"
	"github.com/meridian-robotics/pointcloud.replay/internal/testutil"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp["error"] != "test error" {
		t.Errorf("error = %s, want 'test error'", resp["error"])
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	data := map[string]string{"message": "hello"}
	WriteJSON(rec, http.StatusCreated, data)

	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp["message"] != "hello" {
		t.Errorf("message = %s, want 'hello'", resp["message"])
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	data := map[string]int{"count": 42}
	WriteJSONOK(rec, data)

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp["count"] != 42 {
		t.Errorf("count = %d, want 42", resp["count"])
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NotFound(rec, "no such capture")

	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp["error"] != "no such capture" {
		t.Errorf("error = %s, want 'no such capture'", resp["error"])
	}
}

// Encoding an unmarshalable value must not panic; the failure goes to the
// package logger.
func TestWriteJSONEncodeFailure(t *testing.T) {
	original := monitoring.Logf
	var logged bool
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = true })
	t.Cleanup(func() { monitoring.Logf = original })

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	if !logged {
		t.Error("encode failure was not logged")
	}
}
