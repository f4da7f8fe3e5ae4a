package build

import (
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/prebid/prebid-auction/analytics"
	"github.com/prebid/prebid-auction/analytics/collector"
	"github.com/prebid/prebid-auction/analytics/filesystem"
	"github.com/prebid/prebid-auction/config"
)

// Modules that need to be logged to need to be initialized here
func New(cfg *config.Analytics, client *http.Client) analytics.Module {
	modules := make(enabledAnalytics, 0)
	if len(cfg.File.Filename) > 0 {
		if mod, err := filesystem.NewFileLogger(cfg.File.Filename); err == nil {
			modules = append(modules, mod)
		} else {
			glog.Errorf("Could not initialize FileLogger for file %v :%v", cfg.File.Filename, err)
		}
	}

	if cfg.Collector.Enabled {
		if mod, err := collector.NewModule(client, cfg.Collector, clock.New()); err == nil {
			modules = append(modules, mod)
		} else {
			glog.Errorf("Could not initialize collector module: %v", err)
		}
	}
	return modules
}

// Collection of all the correctly configured analytics modules - implements the analytics.Module interface
type enabledAnalytics []analytics.Module

func (ea enabledAnalytics) LogRequestIssued(o *analytics.RequestIssuedObject) {
	for _, module := range ea {
		module.LogRequestIssued(o)
	}
}

func (ea enabledAnalytics) LogBidReceived(o *analytics.BidReceivedObject) {
	for _, module := range ea {
		module.LogBidReceived(o)
	}
}

func (ea enabledAnalytics) LogBidderTimeout(o *analytics.BidderTimeoutObject) {
	for _, module := range ea {
		module.LogBidderTimeout(o)
	}
}

func (ea enabledAnalytics) LogAuctionClosed(o *analytics.AuctionClosedObject) {
	for _, module := range ea {
		module.LogAuctionClosed(o)
	}
}

func (ea enabledAnalytics) LogBidWon(o *analytics.BidWonObject) {
	for _, module := range ea {
		module.LogBidWon(o)
	}
}

func (ea enabledAnalytics) LogAuctionError(o *analytics.AuctionErrorObject) {
	for _, module := range ea {
		module.LogAuctionError(o)
	}
}

func (ea enabledAnalytics) Shutdown() {
	for _, module := range ea {
		module.Shutdown()
	}
}
