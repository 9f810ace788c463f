package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/obsched/core/metrics"
	"github.com/kilianp07/obsched/infra/logger"
)

// InfluxSink writes scheduling runs to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordRun writes one schedule_run point.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("schedule_run").
		AddTag("run_id", ev.RunID).
		AddTag("solver", ev.Solver).
		AddTag("status", ev.Status).
		AddField("proven", ev.Proven).
		AddField("score", round3(ev.Score)).
		AddField("observations", ev.Observations).
		AddField("scheduled", ev.Scheduled).
		AddField("variables", ev.Variables).
		AddField("constraints", ev.Constraints).
		AddField("nodes", ev.Nodes).
		AddField("solve_ms", round3(ev.SolveTime.Seconds()*1000)).
		SetTime(ev.Time).
		SortTags()
	for res, u := range ev.Usage {
		p = p.AddField("usage_"+strings.ToLower(res), round3(u))
	}
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordStarts writes one schedule_start point per scheduled observation.
func (s *InfluxSink) RecordStarts(starts []coremetrics.StartEvent) error {
	if len(starts) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, len(starts))
	for i, st := range starts {
		points[i] = write.NewPointWithMeasurement("schedule_start").
			AddTag("run_id", st.RunID).
			AddTag("observation", st.Observation).
			AddTag("band", strconv.Itoa(st.Band)).
			AddTag("resource", st.Resource).
			AddField("slot", st.Slot).
			AddField("slots", st.Slots).
			AddField("priority", round3(st.Priority)).
			AddField("quality", round3(st.Quality)).
			SetTime(st.Time).
			SortTags()
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
