package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCollectors(t *testing.T) {
	RulesLoaded.WithLabelValues("domain").Inc()
	IncludesMissing.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `geosite_rules_loaded_total{kind="domain"}`)
	assert.Contains(t, string(body), "geosite_includes_missing_total")
}
