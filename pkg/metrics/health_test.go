package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterComponent(t *testing.T) {
	resetHealth()

	RegisterComponent("store", true, "running")

	health := GetHealth()
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Components["store"])
}

func TestGetHealthOneUnhealthy(t *testing.T) {
	resetHealth()
	SetVersion("1.0.0")

	RegisterComponent("store", true, "")
	RegisterComponent("events", false, "disk full")

	health := GetHealth()
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "unhealthy: disk full", health.Components["events"])
	assert.Equal(t, "1.0.0", health.Version)
}

func TestReadinessWaitsForCriticalComponents(t *testing.T) {
	resetHealth()

	ready := GetReadiness()
	assert.Equal(t, "not_ready", ready.Status)
	assert.Contains(t, ready.Message, "waiting for")

	RegisterComponent("store", true, "")
	ready = GetReadiness()
	assert.Equal(t, "not_ready", ready.Status)

	RegisterComponent("events", true, "")
	ready = GetReadiness()
	assert.Equal(t, "ready", ready.Status)
}

func TestUpdateComponentFlipsReadiness(t *testing.T) {
	resetHealth()
	RegisterComponent("store", true, "")
	RegisterComponent("events", true, "")
	require.Equal(t, "ready", GetReadiness().Status)

	UpdateComponent("store", false, "scan failed")
	assert.Equal(t, "not_ready", GetReadiness().Status)
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	resetHealth()
	RegisterComponent("store", true, "")

	rec := httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)

	UpdateComponent("store", false, "corrupt bucket")
	rec = httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyHandlerStatusCodes(t *testing.T) {
	resetHealth()

	rec := httptest.NewRecorder()
	ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	RegisterComponent("store", true, "")
	RegisterComponent("events", true, "")
	rec = httptest.NewRecorder()
	ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLivenessHandlerAlwaysOK(t *testing.T) {
	resetHealth()

	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
	assert.NotEmpty(t, body["uptime"])
}
