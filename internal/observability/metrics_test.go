package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTransitionCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordTransition("volume_shortfall", "forward", "applied")
	m.RecordTransition("volume_shortfall", "forward", "applied")
	m.RecordTransition("volume_shortfall", "close", "PRECONDITION_FAILED")

	assert.EqualValues(t, 2, m.TransitionCount("volume_shortfall", "forward", "applied"))
	assert.EqualValues(t, 1, m.TransitionCount("volume_shortfall", "close", "PRECONDITION_FAILED"))
	assert.EqualValues(t, 0, m.TransitionCount("resume_update", "forward", "applied"))

	snap := m.Snapshot()
	assert.Len(t, snap["transitions"], 2)
}

func TestNilMetricsAreInert(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", http.MethodGet, 200, time.Millisecond)
	m.RecordError("/", http.MethodGet, "NOT_FOUND")
	m.RecordTransition("a", "b", "c")
	assert.Zero(t, m.TransitionCount("a", "b", "c"))
}

func TestRequestLoggerCountsRequests(t *testing.T) {
	m := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), m))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()

	var total int64
	for key, n := range m.Snapshot()["requests"] {
		assert.Contains(t, key, "|GET|200")
		total += n
	}
	assert.EqualValues(t, 1, total)
}
