// Package infra holds the adapters behind the core interfaces: the zerolog
// logger, the Prometheus and InfluxDB metric sinks and the MQTT plan
// publisher.
package infra
