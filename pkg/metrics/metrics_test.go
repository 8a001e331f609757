package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveFetch_LabelsStatus(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveFetch("wong", "api", "", 0.4)
	m.ObserveFetch("wong", "api", "timeout", 10)
	m.ObserveFetch("wong", "api", "timeout", 10)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceFetchTotal.WithLabelValues("wong", "api", "success", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SourceFetchTotal.WithLabelValues("wong", "api", "failure", "timeout")))
}

func TestNew_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
