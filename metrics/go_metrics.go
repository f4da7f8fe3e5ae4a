package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
)

// Metrics is the go-metrics implementation of MetricsEngine.
type Metrics struct {
	MetricsRegistry            metrics.Registry
	ConnectionCounter          metrics.Counter
	ConnectionAcceptErrorMeter metrics.Meter
	ConnectionCloseErrorMeter  metrics.Meter
	PlacementMeter             metrics.Meter
	AuctionTimer               metrics.Timer
	LiveAuctionsGauge          metrics.Gauge
	AuctionStatuses            map[AuctionStatus]metrics.Meter

	// Bidders can be registered at any time, so adapter metrics are created on first use.
	AdapterMetrics        map[string]*AdapterMetrics
	adapterMetricsRWMutex sync.RWMutex
	blank                 bool
}

// AdapterMetrics houses the metrics for a particular adapter
type AdapterMetrics struct {
	NoBidMeter        metrics.Meter
	ErrorMeters       map[AdapterError]metrics.Meter
	RequestMeter      metrics.Meter
	RequestTimer      metrics.Timer
	PriceHistogram    metrics.Histogram
	BidsReceivedMeter metrics.Meter
	AdmMeter          metrics.Meter
	NoAdmMeter        metrics.Meter
	PanicMeter        metrics.Meter
	LateMeter         metrics.Meter
}

// NewBlankMetrics creates a new Metrics object with all blank metrics object. This may also be useful for
// testing routines to ensure that no metrics are written anywhere.
func NewBlankMetrics(registry metrics.Registry, adapters []string) *Metrics {
	blankMeter := &metrics.NilMeter{}
	newMetrics := &Metrics{
		MetricsRegistry:            registry,
		ConnectionCounter:          metrics.NilCounter{},
		ConnectionAcceptErrorMeter: blankMeter,
		ConnectionCloseErrorMeter:  blankMeter,
		PlacementMeter:             blankMeter,
		AuctionTimer:               &metrics.NilTimer{},
		LiveAuctionsGauge:          metrics.NilGauge{},
		AuctionStatuses:            make(map[AuctionStatus]metrics.Meter),
		AdapterMetrics:             make(map[string]*AdapterMetrics, len(adapters)),
		blank:                      true,
	}
	for _, a := range adapters {
		newMetrics.AdapterMetrics[a] = makeBlankAdapterMetrics()
	}
	for _, s := range AuctionStatuses() {
		newMetrics.AuctionStatuses[s] = blankMeter
	}
	return newMetrics
}

// NewMetrics creates a new Metrics object with needed metrics defined. Adapters which aren't listed
// here get their metrics registered the first time they're used.
func NewMetrics(registry metrics.Registry, adapters []string) *Metrics {
	newMetrics := NewBlankMetrics(registry, adapters)
	newMetrics.blank = false
	newMetrics.ConnectionCounter = metrics.GetOrRegisterCounter("active_connections", registry)
	newMetrics.ConnectionAcceptErrorMeter = metrics.GetOrRegisterMeter("connection_accept_errors", registry)
	newMetrics.ConnectionCloseErrorMeter = metrics.GetOrRegisterMeter("connection_close_errors", registry)
	newMetrics.PlacementMeter = metrics.GetOrRegisterMeter("placements_requested", registry)
	newMetrics.AuctionTimer = metrics.GetOrRegisterTimer("auction_time", registry)
	newMetrics.LiveAuctionsGauge = metrics.GetOrRegisterGauge("live_auctions", registry)
	for _, s := range AuctionStatuses() {
		newMetrics.AuctionStatuses[s] = metrics.GetOrRegisterMeter("auctions."+string(s), registry)
	}
	for _, a := range adapters {
		registerAdapterMetrics(registry, a, newMetrics.AdapterMetrics[a])
	}
	return newMetrics
}

// Part of setting up blank metrics, the adapter metrics.
func makeBlankAdapterMetrics() *AdapterMetrics {
	blankMeter := &metrics.NilMeter{}
	newAdapter := &AdapterMetrics{
		NoBidMeter:        blankMeter,
		ErrorMeters:       make(map[AdapterError]metrics.Meter),
		RequestMeter:      blankMeter,
		RequestTimer:      &metrics.NilTimer{},
		PriceHistogram:    &metrics.NilHistogram{},
		BidsReceivedMeter: blankMeter,
		AdmMeter:          blankMeter,
		NoAdmMeter:        blankMeter,
		PanicMeter:        blankMeter,
		LateMeter:         blankMeter,
	}
	for _, err := range AdapterErrors() {
		newAdapter.ErrorMeters[err] = blankMeter
	}
	return newAdapter
}

func registerAdapterMetrics(registry metrics.Registry, adapter string, am *AdapterMetrics) {
	am.NoBidMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.no_bid_requests", adapter), registry)
	am.RequestMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.requests", adapter), registry)
	am.RequestTimer = metrics.GetOrRegisterTimer(fmt.Sprintf("adapter.%s.request_time", adapter), registry)
	am.PriceHistogram = metrics.GetOrRegisterHistogram(fmt.Sprintf("adapter.%s.prices", adapter), registry, metrics.NewExpDecaySample(1028, 0.015))
	am.BidsReceivedMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.bids_received", adapter), registry)
	am.AdmMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.adm_bids_received", adapter), registry)
	am.NoAdmMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.no_adm_bids_received", adapter), registry)
	am.PanicMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.panic", adapter), registry)
	am.LateMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.late_responses", adapter), registry)
	for _, err := range AdapterErrors() {
		am.ErrorMeters[err] = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.requests.%s", adapter, err), registry)
	}
}

// getAdapterMetrics gets or registers the metrics for adapter.
func (me *Metrics) getAdapterMetrics(adapter string) *AdapterMetrics {
	me.adapterMetricsRWMutex.RLock()
	am, ok := me.AdapterMetrics[adapter]
	me.adapterMetricsRWMutex.RUnlock()

	if ok {
		return am
	}

	me.adapterMetricsRWMutex.Lock()
	defer me.adapterMetricsRWMutex.Unlock()

	am, ok = me.AdapterMetrics[adapter]
	if ok {
		return am
	}
	am = makeBlankAdapterMetrics()
	if !me.blank {
		registerAdapterMetrics(me.MetricsRegistry, adapter, am)
	}
	me.AdapterMetrics[adapter] = am
	return am
}

func (me *Metrics) RecordConnectionAccept(success bool) {
	if success {
		me.ConnectionCounter.Inc(1)
	} else {
		me.ConnectionAcceptErrorMeter.Mark(1)
	}
}

func (me *Metrics) RecordConnectionClose(success bool) {
	if success {
		me.ConnectionCounter.Dec(1)
	} else {
		me.ConnectionCloseErrorMeter.Mark(1)
	}
}

// RecordAuction implements a part of the MetricsEngine interface
func (me *Metrics) RecordAuction(labels Labels) {
	if meter, ok := me.AuctionStatuses[labels.AuctionStatus]; ok {
		meter.Mark(1)
	}
}

func (me *Metrics) RecordPlacements(labels Labels, numPlacements int) {
	me.PlacementMeter.Mark(int64(numPlacements))
}

// RecordAuctionTime implements a part of the MetricsEngine interface. Empty auctions never waited on
// anything, so they are left out.
func (me *Metrics) RecordAuctionTime(labels Labels, length time.Duration) {
	if labels.AuctionStatus != AuctionStatusEmpty {
		me.AuctionTimer.Update(length)
	}
}

// RecordAdapterRequest implements a part of the MetricsEngine interface
func (me *Metrics) RecordAdapterRequest(labels AdapterLabels) {
	am := me.getAdapterMetrics(labels.Adapter)
	am.RequestMeter.Mark(1)
	if labels.AdapterBids == AdapterBidNone {
		am.NoBidMeter.Mark(1)
	}
	for err := range labels.AdapterErrors {
		if meter, ok := am.ErrorMeters[err]; ok {
			meter.Mark(1)
		} else {
			am.ErrorMeters[AdapterErrorUnknown].Mark(1)
		}
	}
}

// RecordAdapterBidReceived implements a part of the MetricsEngine interface.
// This tracks how many bids from each Bidder carry their markup.
func (me *Metrics) RecordAdapterBidReceived(labels AdapterLabels, hasAdm bool) {
	am := me.getAdapterMetrics(labels.Adapter)
	am.BidsReceivedMeter.Mark(1)
	if hasAdm {
		am.AdmMeter.Mark(1)
	} else {
		am.NoAdmMeter.Mark(1)
	}
}

// RecordAdapterPrice implements a part of the MetricsEngine interface. The histogram holds
// thousandths of the price, since go-metrics only samples integers.
func (me *Metrics) RecordAdapterPrice(labels AdapterLabels, cpm float64) {
	me.getAdapterMetrics(labels.Adapter).PriceHistogram.Update(int64(cpm * 1000))
}

// RecordAdapterTime implements a part of the MetricsEngine interface. Records the adapter response time
func (me *Metrics) RecordAdapterTime(labels AdapterLabels, length time.Duration) {
	me.getAdapterMetrics(labels.Adapter).RequestTimer.Update(length)
}

func (me *Metrics) RecordAdapterPanic(labels AdapterLabels) {
	me.getAdapterMetrics(labels.Adapter).PanicMeter.Mark(1)
}

func (me *Metrics) RecordLateResponse(labels AdapterLabels) {
	me.getAdapterMetrics(labels.Adapter).LateMeter.Mark(1)
}

func (me *Metrics) RecordLiveAuctions(count int) {
	me.LiveAuctionsGauge.Update(int64(count))
}
