package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/api/user/login", "POST", 200, 10*time.Millisecond)
	m.RecordRequest("/api/user/login", "POST", 200, 30*time.Millisecond)
	m.RecordError("/api/user/login", "POST", "INVALID_CREDENTIALS")

	snap := m.Snapshot()
	require.Len(t, snap.Requests, 1)
	assert.Equal(t, int64(2), snap.Requests[0].Count)
	assert.Equal(t, 200, snap.Requests[0].Status)
	assert.InDelta(t, 20.0, snap.Requests[0].AvgLatencyMs, 0.01)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "INVALID_CREDENTIALS", snap.Errors[0].Code)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "X")
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	metrics := NewMetrics()

	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), metrics))
	app.Get("/things/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest("GET", "/things/42", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/things/42", entries[0].ContextMap()["path"])

	snap := metrics.Snapshot()
	require.Len(t, snap.Requests, 1)
	assert.Equal(t, "/things/:id", snap.Requests[0].Route)
}
