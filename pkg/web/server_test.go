package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ubicomp-capstone/gazepatch/internal/store"
	"github.com/ubicomp-capstone/gazepatch/pkg/calib"
	"github.com/ubicomp-capstone/gazepatch/pkg/genart"
	"github.com/ubicomp-capstone/gazepatch/pkg/hub"
	"github.com/ubicomp-capstone/gazepatch/pkg/session"
	"github.com/ubicomp-capstone/gazepatch/pkg/swap"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	display := swap.NewDisplayState([]byte("png-bytes"))
	sess, err := session.New(context.Background(), session.DefaultConfig(),
		calib.NewCalibrator(st), genart.NewMock(), display,
		session.WithEventSink(st),
	)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	return NewServer("0", sess, st, hub.New("stream", 16, nil), nil), st
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}

	var decoded map[string]json.RawMessage
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if len(data) > 0 && json.Valid(data) {
		json.Unmarshal(data, &decoded)
	}
	return resp, decoded
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	resp, body := doJSON(t, s, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(body["status"]) != `"ok"` {
		t.Errorf("status field = %s", body["status"])
	}
}

func TestTelemetryLatest(t *testing.T) {
	s, _ := newTestServer(t)
	resp, body := doJSON(t, s, http.MethodGet, "/telemetry/latest", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(body["blink_state"]) != `"open"` {
		t.Errorf("blink_state = %s", body["blink_state"])
	}
}

func TestCalibrationLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	// Fresh server reports identity.
	resp, body := doJSON(t, s, http.MethodGet, "/api/calibration", nil)
	if resp.StatusCode != http.StatusOK || string(body["identity"]) != "true" {
		t.Fatalf("fresh calibration: status=%d identity=%s", resp.StatusCode, body["identity"])
	}

	// Solve from five clean samples.
	samples := []calib.Sample{
		{Measured: calib.Point{X: 0.1, Y: 0.1}, Target: calib.Point{X: 0.14, Y: 0.14}},
		{Measured: calib.Point{X: 0.9, Y: 0.1}, Target: calib.Point{X: 0.86, Y: 0.14}},
		{Measured: calib.Point{X: 0.1, Y: 0.9}, Target: calib.Point{X: 0.14, Y: 0.86}},
		{Measured: calib.Point{X: 0.9, Y: 0.9}, Target: calib.Point{X: 0.86, Y: 0.86}},
		{Measured: calib.Point{X: 0.5, Y: 0.5}, Target: calib.Point{X: 0.5, Y: 0.5}},
	}
	resp, body = doJSON(t, s, http.MethodPost, "/api/calibration", map[string]any{"samples": samples})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("solve status = %d: %s", resp.StatusCode, body["error"])
	}

	resp, body = doJSON(t, s, http.MethodGet, "/api/calibration", nil)
	if string(body["identity"]) != "false" {
		t.Error("calibration still identity after solve")
	}
	if string(body["sample_count"]) != "5" {
		t.Errorf("sample_count = %s", body["sample_count"])
	}

	// Delete resets to identity.
	resp, _ = doJSON(t, s, http.MethodDelete, "/api/calibration", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	_, body = doJSON(t, s, http.MethodGet, "/api/calibration", nil)
	if string(body["identity"]) != "true" {
		t.Error("calibration not identity after delete")
	}
}

func TestCalibrationSolveErrors(t *testing.T) {
	s, _ := newTestServer(t)

	t.Run("too few samples", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodPost, "/api/calibration", map[string]any{
			"samples": []calib.Sample{
				{Measured: calib.Point{X: 0.1, Y: 0.1}, Target: calib.Point{X: 0.1, Y: 0.1}},
			},
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("degenerate samples", func(t *testing.T) {
		// All measured points on one line.
		resp, _ := doJSON(t, s, http.MethodPost, "/api/calibration", map[string]any{
			"samples": []calib.Sample{
				{Measured: calib.Point{X: 0.1, Y: 0.1}, Target: calib.Point{X: 0.1, Y: 0.1}},
				{Measured: calib.Point{X: 0.2, Y: 0.2}, Target: calib.Point{X: 0.2, Y: 0.2}},
				{Measured: calib.Point{X: 0.3, Y: 0.3}, Target: calib.Point{X: 0.3, Y: 0.3}},
			},
		})
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", resp.StatusCode)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/calibration", bytes.NewReader([]byte("{nope")))
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.App().Test(req, -1)
		if err != nil {
			t.Fatalf("Test: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestEventsEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	st.Record("fixation_trigger", map[string]any{"focus": "TL"})
	st.Record("swap_committed", map[string]any{"target": "BR"})

	resp, body := doJSON(t, s, http.MethodGet, "/api/events?limit=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var events []store.Event
	if err := json.Unmarshal(body["events"], &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 2 || events[0].Kind != "swap_committed" {
		t.Errorf("events = %+v", events)
	}
}

func TestStateAndReset(t *testing.T) {
	s, _ := newTestServer(t)

	resp, body := doJSON(t, s, http.MethodGet, "/api/state", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state status = %d", resp.StatusCode)
	}
	if _, ok := body["snapshot"]; !ok {
		t.Error("state response missing snapshot")
	}
	if _, ok := body["pending_swap"]; ok {
		t.Error("fresh session reports a pending swap")
	}

	resp, _ = doJSON(t, s, http.MethodPost, "/api/reset", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("reset status = %d", resp.StatusCode)
	}
}

func TestDisplayEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/display", nil)
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "png-bytes" {
		t.Errorf("body = %q", data)
	}
	if resp.Header.Get("X-Display-Version") != "0" {
		t.Errorf("version header = %q", resp.Header.Get("X-Display-Version"))
	}
}
