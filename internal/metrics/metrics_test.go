package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/almsbox/internal/metrics"
	"github.com/MrJamesThe3rd/almsbox/internal/transaction"
)

func TestLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := metrics.NewLifecycle(reg)

	l.TransitionApplied(transaction.StatusPending, transaction.StatusVerified)
	l.TransitionApplied(transaction.StatusVerified, transaction.StatusCompleted)
	l.Credited(200)
	l.Credited(50)
	l.TransitionRefused("verify")

	count, err := testutil.GatherAndCount(reg, "almsbox_transaction_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}

	assert.Equal(t, float64(2), values["almsbox_ledger_credits_total"])
	assert.Equal(t, float64(250), values["almsbox_ledger_credited_minor_units_total"])
	assert.Equal(t, float64(1), values["almsbox_transaction_refused_transitions_total"])
}

func TestHTTP_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTP(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	count, err := testutil.GatherAndCount(reg, "almsbox_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
