package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWorstStatusWins(t *testing.T) {
	c := NewChecker()
	c.Register("index", Static(StatusUp, "42 records"))
	c.Register("redis", PingCheck(func(context.Context) error { return errors.New("refused") }, false))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "refused", report.Components["redis"].Message)
	assert.NotEmpty(t, report.Components["index"].Latency)

	c.Register("records", PingCheck(func(context.Context) error { return errors.New("empty") }, true))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("redis", Static(StatusDegraded, "not configured"))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("index", Static(StatusDown, "no records"))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDown, report.Status)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}

func TestRunTimesOutSlowCheck(t *testing.T) {
	c := NewChecker()
	c.SetCheckTimeout(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	c.Register("kafka", func(ctx context.Context) ComponentHealth {
		<-release
		return ComponentHealth{Status: StatusUp}
	})
	c.Register("index", Static(StatusUp, ""))

	start := time.Now()
	report := c.Run(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusDown, report.Status)
	assert.Contains(t, report.Components["kafka"].Message, "timed out")
	assert.Equal(t, StatusUp, report.Components["index"].Status)
	assert.Equal(t, []string{"index", "kafka"}, c.Names())
}
