package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/epeers/navgraph/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	c := New()
	c.RunStarted()
	c.PeriodProcessed()
	c.PeriodProcessed()
	c.OwnershipAdjusted()
	c.IRRUnavailable()
	c.BalanceSynthesized()
	c.ObserveJob("clump", 20*time.Millisecond)
	c.RunFinished(models.RunCompleted)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.periodsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ownershipAdjustments))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.irrUnavailable))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.synthesizedBalances))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.runsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues(string(models.RunCompleted))))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.RunStarted()
	c.PeriodProcessed()
	c.ObserveJob("vehicle", time.Second)
	c.RunFinished(models.RunFailed)
	assert.Nil(t, c.Registry())
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.PeriodProcessed()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "navgraph_vehicle_periods_total 1"))
}
