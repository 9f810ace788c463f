package metrics

import "github.com/kilianp07/obsched/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr, when set, serves /metrics on this address.
	PrometheusAddr string `json:"prometheus_addr"`
}
