package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfence/keyfence/internal/config"
	"github.com/keyfence/keyfence/internal/engine"
	"github.com/keyfence/keyfence/internal/events"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	bus := events.New()
	eng := engine.New(cfg, bus)
	s := New(eng)
	url, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s, url
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	_, url := startTestServer(t)

	startBody, _ := json.Marshal(map[string]any{
		"devices":       []any{},
		"mode":          "capture_only",
		"guest_id":      "",
		"duration_secs": 0,
	})
	resp, err := http.Post(url+"/sessions/start", "application/json", bytes.NewReader(startBody))
	require.NoError(t, err)
	defer resp.Body.Close()

	var startResp startSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&startResp))
	require.Empty(t, startResp.Error)
	require.NotEmpty(t, startResp.Handle)

	statusResp, err := http.Get(url + "/sessions/status?handle=" + startResp.Handle)
	require.NoError(t, err)
	defer statusResp.Body.Close()
	var status struct {
		Active bool `json:"Active"`
	}
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&status))
	assert.True(t, status.Active)

	stopBody, _ := json.Marshal(map[string]string{"handle": startResp.Handle})
	stopResp, err := http.Post(url+"/sessions/stop", "application/json", bytes.NewReader(stopBody))
	require.NoError(t, err)
	defer stopResp.Body.Close()

	logResp, err := http.Get(url + "/sessions/log?handle=" + startResp.Handle)
	require.NoError(t, err)
	defer logResp.Body.Close()
	var log []any
	require.NoError(t, json.NewDecoder(logResp.Body).Decode(&log))
}

func TestStopUnknownSessionReturnsError(t *testing.T) {
	_, url := startTestServer(t)

	body, _ := json.Marshal(map[string]string{"handle": "does-not-exist"})
	resp, err := http.Post(url+"/sessions/stop", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.Error)
}

func TestMethodNotAllowedOnDevices(t *testing.T) {
	_, url := startTestServer(t)

	resp, err := http.Post(url+"/devices", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestURLMatchesStartedAddress(t *testing.T) {
	s, url := startTestServer(t)
	assert.Equal(t, url, s.URL())
	time.Sleep(10 * time.Millisecond) // let the accept loop settle
}
