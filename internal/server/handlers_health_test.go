package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestHandleLiveness(t *testing.T) {
	env := newTestEnv(t, testConfig(), HealthCheck{Name: "hub", Check: healthErr("down")})
	env.clock.Advance(90 * time.Second)

	rec := env.do(t, http.MethodGet, "/health/live", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.InDelta(t, 90.0, body["uptime"], 0.001)
}

func TestHandleReadiness(t *testing.T) {
	env := newTestEnv(t, testConfig(),
		HealthCheck{Name: "hub", Check: healthOK},
		HealthCheck{Name: "registry", Check: healthOK},
	)

	rec := env.do(t, http.MethodGet, "/health/ready", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHandleReadiness_FailedCheck(t *testing.T) {
	env := newTestEnv(t, testConfig(),
		HealthCheck{Name: "hub", Check: healthOK},
		HealthCheck{Name: "registry", Check: healthErr("not seeded")},
	)

	rec := env.do(t, http.MethodGet, "/health/ready", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
	assert.Contains(t, rec.Body.String(), `"failed_check":"registry"`)
	assert.Contains(t, rec.Body.String(), `"error":"not seeded"`)
}

func TestHandleVersion(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, http.MethodGet, "/version", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["version"])
	assert.NotEmpty(t, body["go_version"])
}
