package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := New("forum")
	c.Mutations.WithLabelValues("addComment", "ok").Inc()
	c.EventsPublished.WithLabelValues("commentUpdate").Add(2)
	c.ActiveConnections.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Mutations.WithLabelValues("addComment", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.EventsPublished.WithLabelValues("commentUpdate")))

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `forum_mutations_total{operation="addComment",outcome="ok"} 1`)
	assert.Contains(t, rr.Body.String(), "forum_socket_active_connections 1")
}

func TestNew_Independent(t *testing.T) {
	assert.NotPanics(t, func() {
		New("forum")
		New("forum")
	})
}
