package config

import (
	"time"

	"github.com/golang/glog"
	mainConfig "github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/metrics"
	prometheusmetrics "github.com/prebid/prebid-auction/metrics/prometheus"
	gometrics "github.com/rcrowley/go-metrics"
	influxdb "github.com/vrischmann/go-metrics-influxdb"
)

// NewMetricsEngine reads the configuration and returns the appropriate metrics engine
// for this instance.
func NewMetricsEngine(cfg *mainConfig.Configuration, adapterList []string) *DetailedMetricsEngine {
	// Create a list of metrics engines to use.
	// Capacity of 2, as unlikely to have more than 2 metrics backends, and in the case
	// of 1 we won't use the list so it will be garbage collected.
	engineList := make(MultiMetricsEngine, 0, 2)
	returnEngine := DetailedMetricsEngine{}

	if cfg.Metrics.Influxdb.Host != "" {
		// Currently use go-metrics as the metrics piece for influx
		returnEngine.GoMetrics = metrics.NewMetrics(gometrics.NewPrefixedRegistry("prebidauction."), adapterList)
		engineList = append(engineList, returnEngine.GoMetrics)
		// Set up the Influx logger
		go influxdb.InfluxDB(
			returnEngine.GoMetrics.MetricsRegistry,                             // metrics registry
			time.Second*time.Duration(cfg.Metrics.Influxdb.MetricSendInterval), // Configurable interval
			cfg.Metrics.Influxdb.Host,                                          // the InfluxDB url
			cfg.Metrics.Influxdb.Database,                                      // your InfluxDB database
			cfg.Metrics.Influxdb.Username,                                      // your InfluxDB user
			cfg.Metrics.Influxdb.Password,                                      // your InfluxDB password
		)
		glog.Infof("Sending metrics to InfluxDB at %s every %ds", cfg.Metrics.Influxdb.Host, cfg.Metrics.Influxdb.MetricSendInterval)
	}
	if cfg.Metrics.Prometheus.Port != 0 {
		// Set up the Prometheus metrics.
		returnEngine.PrometheusMetrics = prometheusmetrics.NewMetrics(cfg.Metrics.Prometheus)
		engineList = append(engineList, returnEngine.PrometheusMetrics)
	}

	// Now return the proper metrics engine
	if len(engineList) > 1 {
		returnEngine.MetricsEngine = &engineList
	} else if len(engineList) == 1 {
		returnEngine.MetricsEngine = engineList[0]
	} else {
		returnEngine.MetricsEngine = &DummyMetricsEngine{}
	}

	return &returnEngine
}

// DetailedMetricsEngine is a MetricsEngine that preserves links to underlying metrics engines.
type DetailedMetricsEngine struct {
	metrics.MetricsEngine
	GoMetrics         *metrics.Metrics
	PrometheusMetrics *prometheusmetrics.Metrics
}

// MultiMetricsEngine logs metrics to multiple metrics databases The can be useful in transitioning
// an instance from one engine to another, you can run both in parallel to verify stats match up.
type MultiMetricsEngine []metrics.MetricsEngine

// RecordConnectionAccept across all engines
func (me *MultiMetricsEngine) RecordConnectionAccept(success bool) {
	for _, thisME := range *me {
		thisME.RecordConnectionAccept(success)
	}
}

// RecordConnectionClose across all engines
func (me *MultiMetricsEngine) RecordConnectionClose(success bool) {
	for _, thisME := range *me {
		thisME.RecordConnectionClose(success)
	}
}

// RecordAuction across all engines
func (me *MultiMetricsEngine) RecordAuction(labels metrics.Labels) {
	for _, thisME := range *me {
		thisME.RecordAuction(labels)
	}
}

// RecordPlacements across all engines
func (me *MultiMetricsEngine) RecordPlacements(labels metrics.Labels, numPlacements int) {
	for _, thisME := range *me {
		thisME.RecordPlacements(labels, numPlacements)
	}
}

// RecordAuctionTime across all engines
func (me *MultiMetricsEngine) RecordAuctionTime(labels metrics.Labels, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordAuctionTime(labels, length)
	}
}

// RecordAdapterRequest across all engines
func (me *MultiMetricsEngine) RecordAdapterRequest(labels metrics.AdapterLabels) {
	for _, thisME := range *me {
		thisME.RecordAdapterRequest(labels)
	}
}

// RecordAdapterBidReceived across all engines
func (me *MultiMetricsEngine) RecordAdapterBidReceived(labels metrics.AdapterLabels, hasAdm bool) {
	for _, thisME := range *me {
		thisME.RecordAdapterBidReceived(labels, hasAdm)
	}
}

// RecordAdapterPrice across all engines
func (me *MultiMetricsEngine) RecordAdapterPrice(labels metrics.AdapterLabels, cpm float64) {
	for _, thisME := range *me {
		thisME.RecordAdapterPrice(labels, cpm)
	}
}

// RecordAdapterTime across all engines
func (me *MultiMetricsEngine) RecordAdapterTime(labels metrics.AdapterLabels, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordAdapterTime(labels, length)
	}
}

// RecordAdapterPanic across all engines
func (me *MultiMetricsEngine) RecordAdapterPanic(labels metrics.AdapterLabels) {
	for _, thisME := range *me {
		thisME.RecordAdapterPanic(labels)
	}
}

// RecordLateResponse across all engines
func (me *MultiMetricsEngine) RecordLateResponse(labels metrics.AdapterLabels) {
	for _, thisME := range *me {
		thisME.RecordLateResponse(labels)
	}
}

// RecordLiveAuctions across all engines
func (me *MultiMetricsEngine) RecordLiveAuctions(count int) {
	for _, thisME := range *me {
		thisME.RecordLiveAuctions(count)
	}
}

// DummyMetricsEngine is a Noop metrics engine in case no metrics are configured. (may also be useful for tests)
type DummyMetricsEngine struct{}

func (me *DummyMetricsEngine) RecordConnectionAccept(success bool)                                {}
func (me *DummyMetricsEngine) RecordConnectionClose(success bool)                                 {}
func (me *DummyMetricsEngine) RecordAuction(labels metrics.Labels)                                {}
func (me *DummyMetricsEngine) RecordPlacements(labels metrics.Labels, numPlacements int)          {}
func (me *DummyMetricsEngine) RecordAuctionTime(labels metrics.Labels, length time.Duration)      {}
func (me *DummyMetricsEngine) RecordAdapterRequest(labels metrics.AdapterLabels)                  {}
func (me *DummyMetricsEngine) RecordAdapterBidReceived(labels metrics.AdapterLabels, hasAdm bool) {}
func (me *DummyMetricsEngine) RecordAdapterPrice(labels metrics.AdapterLabels, cpm float64)       {}
func (me *DummyMetricsEngine) RecordAdapterTime(labels metrics.AdapterLabels, length time.Duration) {
}
func (me *DummyMetricsEngine) RecordAdapterPanic(labels metrics.AdapterLabels) {}
func (me *DummyMetricsEngine) RecordLateResponse(labels metrics.AdapterLabels) {}
func (me *DummyMetricsEngine) RecordLiveAuctions(count int)                    {}
