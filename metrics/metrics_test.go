package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricefeed/model"
)

func TestTrackerRecordsReport(t *testing.T) {
	m := New()
	report := &model.RunReport{
		Branches: []model.BranchReport{{
			ChainCode:              "CHAIN_001",
			BranchCode:             "337",
			ProductsInserted:       2,
			PromotionsInserted:     1,
			PromotionItemsInserted: 3,
			Feeds: []model.FeedOutcome{
				{FeedType: model.FeedPrice, State: model.StateStored},
				{FeedType: model.FeedPromo, State: model.StateFailed, Stage: model.StageParse},
			},
			Errors: []model.StageError{{Stage: model.StageParse, Reason: "malformed feed"}},
		}},
	}

	assert.NoError(t, m.Track().End(report, nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feeds.WithLabelValues("PriceFull", "stored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feeds.WithLabelValues("PromoFull", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageErrors.WithLabelValues("parse")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rowsStored.WithLabelValues("products")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rowsStored.WithLabelValues("promotion_items")))
}

func TestTrackerPassesErrorThrough(t *testing.T) {
	m := New()
	want := errors.New("boom")

	got := m.Track().End(nil, want)

	assert.Same(t, want, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("failure")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFetch(model.FeedPrice, time.Second)
	assert.NoError(t, m.Track().End(&model.RunReport{}, nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/chains/{chain}/branches", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chains/7/branches", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/api/chains/{chain}/branches", "418")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pricefeed_http_requests_total"))
}
