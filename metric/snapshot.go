package metric

import (
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
)

// Snapshot returns current counter and gauge values keyed by metric name.
// Labelled metrics are summed across label values, histograms report the
// number of observations.
func (m *Metric) Snapshot() map[string]float64 {
	values := make(map[string]float64)
	if m == nil {
		return values
	}
	families, err := m.registry.Gather()
	if err != nil {
		return values
	}
	for _, mf := range families {
		name := strings.TrimPrefix(mf.GetName(), namespace+"_")
		for _, sample := range mf.GetMetric() {
			values[name] += value(mf.GetType(), sample)
		}
	}
	return values
}

// Names returns sorted metric names of the snapshot.
func Names(snapshot map[string]float64) []string {
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func value(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	case dto.MetricType_HISTOGRAM:
		return float64(m.GetHistogram().GetSampleCount())
	}
	return 0
}
