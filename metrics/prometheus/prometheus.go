package prometheusmetrics

import (
	"strconv"
	"time"

	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Defines the actual Prometheus metrics we will be using. Satisfies interface MetricsEngine
type Metrics struct {
	Registry      *prometheus.Registry
	connCounter   prometheus.Gauge
	connError     *prometheus.CounterVec
	auctions      *prometheus.CounterVec
	placements    *prometheus.CounterVec
	auctionTimer  *prometheus.HistogramVec
	liveAuctions  prometheus.Gauge
	adaptRequests *prometheus.CounterVec
	adaptErrors   *prometheus.CounterVec
	adaptTimer    *prometheus.HistogramVec
	adaptBids     *prometheus.CounterVec
	adaptPrices   *prometheus.HistogramVec
	adaptPanics   *prometheus.CounterVec
	adaptLate     *prometheus.CounterVec
}

const (
	statusLabel  = "status"
	adapterLabel = "adapter"
	bidsLabel    = "bids"
	errorLabel   = "error"
	hasAdmLabel  = "hasadm"
)

// NewMetrics constructs the appropriate options for the Prometheus metrics. Needs to be fed the promethus config
// Its own function to keep the metric creation function cleaner.
func NewMetrics(cfg config.PrometheusMetrics) *Metrics {
	// define the buckets for timers
	timerBuckets := prometheus.LinearBuckets(0.05, 0.05, 20)
	timerBuckets = append(timerBuckets, []float64{1.5, 2.0, 3.0, 5.0, 10.0}...)

	metrics := Metrics{Registry: prometheus.NewRegistry()}
	metrics.connCounter = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "active_connections",
		Help:      "Current number of active (open) connections.",
	})
	metrics.connError = newCounter(cfg, "connection_errors_total",
		"Errors reported on the connections coming in.",
		[]string{"type"},
	)
	metrics.auctions = newCounter(cfg, "auctions_total",
		"Number of auctions closed, by how they closed.",
		[]string{statusLabel},
	)
	metrics.placements = newCounter(cfg, "placements_requested_total",
		"Number of placements offered in closed auctions.",
		[]string{statusLabel},
	)
	metrics.auctionTimer = newHistogram(cfg, "auction_time_seconds",
		"Seconds from the first bidder request to the close of each auction.",
		[]string{statusLabel}, timerBuckets,
	)
	metrics.liveAuctions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "live_auctions",
		Help:      "Number of auctions held by the auction manager.",
	})
	metrics.adaptRequests = newCounter(cfg, "adapter_requests_total",
		"Number of requests sent out to each bidder.",
		[]string{adapterLabel, bidsLabel},
	)
	metrics.adaptErrors = newCounter(cfg, "adapter_errors_total",
		"Number of requests to each bidder which ended in an error.",
		[]string{adapterLabel, errorLabel},
	)
	metrics.adaptTimer = newHistogram(cfg, "adapter_time_seconds",
		"Seconds to resolve each request to a bidder.",
		[]string{adapterLabel}, timerBuckets,
	)
	metrics.adaptBids = newCounter(cfg, "adapter_bids_received_total",
		"Number of bids received from each bidder.",
		[]string{adapterLabel, hasAdmLabel},
	)
	metrics.adaptPrices = newHistogram(cfg, "adapter_prices",
		"Value of the bids from each bidder.",
		[]string{adapterLabel}, prometheus.LinearBuckets(0.1, 0.1, 200),
	)
	metrics.adaptPanics = newCounter(cfg, "adapter_panics_total",
		"Number of times a bidder's adapter panicked.",
		[]string{adapterLabel},
	)
	metrics.adaptLate = newCounter(cfg, "adapter_late_responses_total",
		"Number of bidder completions which arrived after their auction closed.",
		[]string{adapterLabel},
	)

	metrics.Registry.MustRegister(
		metrics.connCounter,
		metrics.connError,
		metrics.auctions,
		metrics.placements,
		metrics.auctionTimer,
		metrics.liveAuctions,
		metrics.adaptRequests,
		metrics.adaptErrors,
		metrics.adaptTimer,
		metrics.adaptBids,
		metrics.adaptPrices,
		metrics.adaptPanics,
		metrics.adaptLate,
	)
	return &metrics
}

func newCounter(cfg config.PrometheusMetrics, name string, help string, labels []string) *prometheus.CounterVec {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	return prometheus.NewCounterVec(opts, labels)
}

func newHistogram(cfg config.PrometheusMetrics, name string, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	opts := prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
	return prometheus.NewHistogramVec(opts, labels)
}

func (me *Metrics) RecordConnectionAccept(success bool) {
	if success {
		me.connCounter.Inc()
	} else {
		me.connError.WithLabelValues("accept_error").Inc()
	}
}

func (me *Metrics) RecordConnectionClose(success bool) {
	if success {
		me.connCounter.Dec()
	} else {
		me.connError.WithLabelValues("close_error").Inc()
	}
}

func (me *Metrics) RecordAuction(labels metrics.Labels) {
	me.auctions.With(resolveLabels(labels)).Inc()
}

func (me *Metrics) RecordPlacements(labels metrics.Labels, numPlacements int) {
	me.placements.With(resolveLabels(labels)).Add(float64(numPlacements))
}

func (me *Metrics) RecordAuctionTime(labels metrics.Labels, length time.Duration) {
	me.auctionTimer.With(resolveLabels(labels)).Observe(length.Seconds())
}

func (me *Metrics) RecordAdapterRequest(labels metrics.AdapterLabels) {
	me.adaptRequests.With(prometheus.Labels{
		adapterLabel: labels.Adapter,
		bidsLabel:    string(labels.AdapterBids),
	}).Inc()
	for err := range labels.AdapterErrors {
		me.adaptErrors.With(prometheus.Labels{
			adapterLabel: labels.Adapter,
			errorLabel:   string(err),
		}).Inc()
	}
}

func (me *Metrics) RecordAdapterBidReceived(labels metrics.AdapterLabels, hasAdm bool) {
	me.adaptBids.With(prometheus.Labels{
		adapterLabel: labels.Adapter,
		hasAdmLabel:  strconv.FormatBool(hasAdm),
	}).Inc()
}

func (me *Metrics) RecordAdapterPrice(labels metrics.AdapterLabels, cpm float64) {
	me.adaptPrices.With(resolveAdapterLabels(labels)).Observe(cpm)
}

func (me *Metrics) RecordAdapterTime(labels metrics.AdapterLabels, length time.Duration) {
	me.adaptTimer.With(resolveAdapterLabels(labels)).Observe(length.Seconds())
}

func (me *Metrics) RecordAdapterPanic(labels metrics.AdapterLabels) {
	me.adaptPanics.With(resolveAdapterLabels(labels)).Inc()
}

func (me *Metrics) RecordLateResponse(labels metrics.AdapterLabels) {
	me.adaptLate.With(resolveAdapterLabels(labels)).Inc()
}

func (me *Metrics) RecordLiveAuctions(count int) {
	me.liveAuctions.Set(float64(count))
}

func resolveLabels(labels metrics.Labels) prometheus.Labels {
	return prometheus.Labels{
		statusLabel: string(labels.AuctionStatus),
	}
}

func resolveAdapterLabels(labels metrics.AdapterLabels) prometheus.Labels {
	return prometheus.Labels{
		adapterLabel: labels.Adapter,
	}
}
