package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/rangefinder/pkg/nn"
	"github.com/cyclopcam/rangefinder/pkg/rangefinder"
	"github.com/cyclopcam/rangefinder/server/calibdb"
	"github.com/cyclopcam/rangefinder/server/config"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const testModelJSON = `{
	"architecture": "test",
	"width": 128,
	"height": 128,
	"predictions": 4,
	"classes": ["person", "car", "dog"]
}`

// Rows are x, y, w, h, objectness, person, car, dog.
// The car is at the center of a 128x128 image, and is 48 pixels high.
var testTensor = []float32{
	0.5, 0.5, 0.25, 0.375, 0.9, 0, 1, 0,
	0.125, 0.125, 0.125, 0.25, 0.5, 1, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
}

func testConfig(t *testing.T, dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Model = filepath.Join(dir, "model.json")
	cfg.DB = filepath.Join(dir, "calibration.sqlite")
	require.NoError(t, os.WriteFile(cfg.Model, []byte(testModelJSON), 0644))
	return cfg
}

func startTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	s, err := NewServer(logs.NewTestingLog(t), cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Shutdown()
	})
	return s, ts
}

func doRequest(t *testing.T, method, url, contentType string, body []byte) (int, []byte) {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, respBody
}

func getJSON(t *testing.T, url string, obj any) {
	code, body := doRequest(t, "GET", url, "", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	require.NoError(t, json.Unmarshal(body, obj))
}

func postFrame(t *testing.T, ts *httptest.Server, tensor []float32) *rangefinder.FrameResult {
	code, body := doRequest(t, "POST", ts.URL+"/api/frame", "application/octet-stream", nn.Float32ToLE(tensor))
	require.Equal(t, http.StatusOK, code, string(body))
	r := &rangefinder.FrameResult{}
	require.NoError(t, json.Unmarshal(body, r))
	return r
}

func TestPingAndConfig(t *testing.T) {
	_, ts := startTestServer(t, testConfig(t, t.TempDir()))

	ping := pingJSON{}
	getJSON(t, ts.URL+"/api/ping", &ping)
	require.NotZero(t, ping.Time)

	cfg := map[string]any{}
	getJSON(t, ts.URL+"/api/config", &cfg)
	require.Equal(t, "test", cfg["architecture"])
	require.EqualValues(t, 128, cfg["width"])
	require.EqualValues(t, 3, cfg["numClasses"])
	require.InDelta(t, rangefinder.DefaultScale, cfg["scale"], 1e-6)
	sizes := cfg["referenceSizes"].(map[string]any)["sizes"].(map[string]any)
	require.InDelta(t, 1.5, sizes["car"], 1e-6)
}

func TestFrame(t *testing.T) {
	_, ts := startTestServer(t, testConfig(t, t.TempDir()))

	r := postFrame(t, ts, testTensor)
	require.Equal(t, 128, r.Width)
	require.Equal(t, 2, len(r.Detections))
	require.NotNil(t, r.Estimate)
	require.Equal(t, "car", r.Estimate.ClassName)
	require.Equal(t, int32(48), r.Estimate.SpanPixels)
	// 1.5 * 1000 / 48 / 0.35
	require.InDelta(t, 89.2857, r.Estimate.Distance, 1e-3)

	// JSON body, with an explicit image size
	body, _ := json.Marshal(&frameJSON{Tensor: testTensor})
	code, raw := doRequest(t, "POST", ts.URL+"/api/frame?width=256&height=256", "application/json", body)
	require.Equal(t, http.StatusOK, code, string(raw))
	jr := rangefinder.FrameResult{}
	require.NoError(t, json.Unmarshal(raw, &jr))
	require.Equal(t, 256, jr.Width)
	require.Equal(t, int32(96), jr.Estimate.SpanPixels)

	// An empty frame is not an error
	r = postFrame(t, ts, make([]float32, 4*8))
	require.Nil(t, r.Nearest)
	require.Equal(t, rangefinder.NoDistanceNoObject, r.NoDistanceReason)

	// Client errors
	code, _ = doRequest(t, "POST", ts.URL+"/api/frame", "", nn.Float32ToLE(testTensor[:8]))
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = doRequest(t, "POST", ts.URL+"/api/frame", "", []byte{1, 2, 3})
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = doRequest(t, "POST", ts.URL+"/api/frame?width=100", "", nn.Float32ToLE(testTensor))
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = doRequest(t, "POST", ts.URL+"/api/frame?dtype=float16", "", nn.Float32ToLE(testTensor))
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = doRequest(t, "POST", ts.URL+"/api/frame", "application/json", []byte("{not json"))
	require.Equal(t, http.StatusBadRequest, code)

	// Quantized tensor of the right size
	code, raw = doRequest(t, "POST", ts.URL+"/api/frame?dtype=uint8", "", make([]byte, 4*8))
	require.Equal(t, http.StatusOK, code, string(raw))

	stats := statsJSON{}
	getJSON(t, ts.URL+"/api/stats", &stats)
	require.Equal(t, int64(4), stats.Frames)
	require.Equal(t, int64(2), stats.FramesWithDistance)
}

func TestCalibration(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	s, err := NewServer(logs.NewTestingLog(t), cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())

	status := rangefinder.WorkflowStatus{}
	getJSON(t, ts.URL+"/api/calibration", &status)
	require.Equal(t, rangefinder.WorkflowIdle, status.State)

	// Complete before Begin
	code, _ := doRequest(t, "POST", ts.URL+"/api/calibration/complete", "", nil)
	require.Equal(t, http.StatusConflict, code)

	code, body := doRequest(t, "POST", ts.URL+"/api/calibration/begin", "", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	code, _ = doRequest(t, "POST", ts.URL+"/api/calibration/begin", "", nil)
	require.Equal(t, http.StatusConflict, code)

	// No object has been captured yet
	code, _ = doRequest(t, "POST", ts.URL+"/api/calibration/complete", "", nil)
	require.Equal(t, http.StatusConflict, code)

	postFrame(t, ts, testTensor)
	getJSON(t, ts.URL+"/api/calibration", &status)
	require.Equal(t, rangefinder.WorkflowAwaitingInput, status.State)
	require.Equal(t, "car", status.Frozen.ClassName)

	// The car is 48 pixels high. 24cm -> raw 5 -> k 1
	code, body = doRequest(t, "POST", ts.URL+"/api/calibration/complete", "application/json", []byte(`{"manualHeightCm": "24"}`))
	require.Equal(t, http.StatusOK, code, string(body))
	done := calibrationCompletedJSON{}
	require.NoError(t, json.Unmarshal(body, &done))
	require.True(t, done.Result.Manual)
	require.InDelta(t, 1.0, done.Result.Scale, 1e-6)
	require.NotNil(t, done.Record)
	require.InDelta(t, 1.0, s.Pipeline.Calibration().Scale(), 1e-6)

	// The next frame uses the new scale. 1.5 * 1000 / 48 / 1
	r := postFrame(t, ts, testTensor)
	require.InDelta(t, 31.25, r.Estimate.Distance, 1e-3)

	// Cancel leaves the scale alone
	code, _ = doRequest(t, "POST", ts.URL+"/api/calibration/begin", "", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = doRequest(t, "POST", ts.URL+"/api/calibration/cancel", "", nil)
	require.Equal(t, http.StatusOK, code)
	getJSON(t, ts.URL+"/api/calibration", &status)
	require.Equal(t, rangefinder.WorkflowIdle, status.State)
	require.InDelta(t, 1.0, status.Scale, 1e-6)

	history := []calibdb.Calibration{}
	getJSON(t, ts.URL+"/api/calibration/history?limit=10", &history)
	require.Equal(t, 1, len(history))
	require.Equal(t, "car", history[0].ClassName)
	require.Equal(t, "height", history[0].Axis)

	ts.Close()
	s.Shutdown()
	s.Shutdown()

	// The scale constant survives a restart
	s2, ts2 := startTestServer(t, cfg)
	require.InDelta(t, 1.0, s2.Pipeline.Calibration().Scale(), 1e-6)
	r = postFrame(t, ts2, testTensor)
	require.InDelta(t, 31.25, r.Estimate.Distance, 1e-3)
}

func TestResultsWebSocket(t *testing.T) {
	s, ts := startTestServer(t, testConfig(t, t.TempDir()))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/results"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.Results.NumClients() == 1 }, 5*time.Second, 10*time.Millisecond)

	postFrame(t, ts, testTensor)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msgType, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	r := rangefinder.FrameResult{}
	require.NoError(t, json.Unmarshal(msg, &r))
	require.Equal(t, "car", r.Nearest.Detection.ClassName)

	// Paused clients receive nothing
	require.NoError(t, conn.WriteJSON(&webSocketJSON{Command: "pause"}))
	require.Eventually(t, func() bool {
		s.Results.lock.Lock()
		defer s.Results.lock.Unlock()
		for _, c := range s.Results.clients {
			return c.paused.Load()
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	postFrame(t, ts, testTensor)
	require.NoError(t, conn.WriteJSON(&webSocketJSON{Command: "resume"}))
	require.Eventually(t, func() bool {
		s.Results.lock.Lock()
		defer s.Results.lock.Unlock()
		for _, c := range s.Results.clients {
			return !c.paused.Load()
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	postFrame(t, ts, make([]float32, 4*8))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	r = rangefinder.FrameResult{}
	require.NoError(t, json.Unmarshal(msg, &r))
	require.Nil(t, r.Nearest)

	conn.Close()
	require.Eventually(t, func() bool { return s.Results.NumClients() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestResultHubDropsWhenFull(t *testing.T) {
	h := NewResultHub(logs.NewTestingLog(t))
	c := h.subscribe()
	require.Equal(t, 1, h.NumClients())
	for i := 0; i < ResultSendBufferSize+5; i++ {
		h.Publish(&rangefinder.FrameResult{Width: i})
	}
	require.Equal(t, int64(ResultSendBufferSize), c.nSent.Load())
	require.Equal(t, int64(5), c.nDropped.Load())
	h.Close()
	n := 0
	for range c.send {
		n++
	}
	require.Equal(t, ResultSendBufferSize, n)
	require.Equal(t, 0, h.NumClients())
	// Unsubscribing after Close is harmless
	h.unsubscribe(c)
}
