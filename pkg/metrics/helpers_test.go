package metrics

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"
)

// labels are name/value pairs; every pair must match.
func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels ...string) (float64, error) {
	m, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return m.GetCounter().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels ...string) (float64, error) {
	m, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return m.GetHistogram().GetSampleSum(), nil
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name string, labels ...string) (float64, error) {
	m, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return m.GetGauge().GetValue(), nil
}

func findMetric(mfs []*dto.MetricFamily, name string, labels []string) (*dto.Metric, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabels(metric.GetLabel(), labels) {
				return metric, nil
			}
		}
		return nil, fmt.Errorf("metric %q missing labels %v", name, labels)
	}
	return nil, fmt.Errorf("metric %q not found", name)
}

func hasLabels(pairs []*dto.LabelPair, want []string) bool {
	for i := 0; i+1 < len(want); i += 2 {
		found := false
		for _, p := range pairs {
			if p.GetName() == want[i] && p.GetValue() == want[i+1] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
