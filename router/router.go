package router

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"

	"github.com/prebid/prebid-auction/adapters"
	"github.com/prebid/prebid-auction/adapters/amazon"
	"github.com/prebid/prebid-auction/adapters/httpbidder"
	"github.com/prebid/prebid-auction/analytics"
	analyticsBuild "github.com/prebid/prebid-auction/analytics/build"
	"github.com/prebid/prebid-auction/auction"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/endpoints"
	"github.com/prebid/prebid-auction/errortypes"
	metricsConf "github.com/prebid/prebid-auction/metrics/config"
	"github.com/prebid/prebid-auction/pbs"
	"github.com/prebid/prebid-auction/targeting"
	"github.com/prebid/prebid-auction/util/task"
)

// builders holds the bidders with an adapter of their own. Any other configured bidder is
// called through the generic OpenRTB adapter.
var builders = map[string]adapters.Builder{
	"amazon": amazon.Builder,
}

// NewBidderParamsServer serves the params schema of every registered bidder as a single blob:
//
//	{
//	  "amazon": { ... schema ... },
//	  "rubicon": { ... schema ... }
//	}
//
// Bidders which accept any params get an empty schema.
func NewBidderParamsServer(registry *adapters.Registry) httprouter.Handle {
	bidders := registry.Bidders()
	data := make(map[string]json.RawMessage, len(bidders))
	for _, bidder := range bidders {
		settings, _ := registry.Settings(bidder)
		if settings.Params == nil {
			data[bidder] = json.RawMessage("{}")
			continue
		}
		data[bidder] = json.RawMessage(settings.Params.Schema())
	}

	response, err := json.Marshal(data)
	if err != nil {
		glog.Fatalf("Failed to marshal bidder param JSON-schema: %v", err)
	}

	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Add("Content-Type", "application/json")
		w.Write(response)
	}
}

type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

type Router struct {
	*httprouter.Router
	MetricsEngine *metricsConf.DetailedMetricsEngine
	Manager       *auction.Manager
	Analytics     analytics.Module
	Shutdown      func()
}

func getTransport(cfg *config.Configuration) *http.Transport {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     cfg.Client.MaxConnsPerHost,
		MaxIdleConns:        cfg.Client.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Client.MaxIdleConnsPerHost,
		IdleConnTimeout:     time.Duration(cfg.Client.IdleConnTimeout) * time.Second,
	}

	if cfg.Client.DialTimeout > 0 {
		transport.DialContext = (&net.Dialer{
			Timeout:   time.Duration(cfg.Client.DialTimeout) * time.Millisecond,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}
	return transport
}

// newRegistry builds an adapter for every enabled bidder in the config and layers the
// configured overrides on top of the adapter's defaults.
func newRegistry(adapterCfgs map[string]config.Adapter, client *http.Client) (*adapters.Registry, error) {
	registry := adapters.NewRegistry()
	var errs []error
	for bidder, cfg := range adapterCfgs {
		if cfg.Disabled {
			glog.Infof("Bidder %s is disabled", bidder)
			continue
		}
		build, ok := builders[bidder]
		if !ok {
			build = httpbidder.Builder
		}
		adapter, defaults, err := build(bidder, cfg, client)
		if err != nil {
			errs = append(errs, fmt.Errorf("bidder %s: %v", bidder, err))
			continue
		}
		settings, err := adapters.ApplyConfig(defaults, cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("bidder %s: %v", bidder, err))
			continue
		}
		if err := registry.Register(bidder, adapter, settings); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errortypes.NewAggregateErrors("failed to build bidders", errs)
	}
	return registry, nil
}

func New(cfg *config.Configuration) (r *Router, err error) {
	r = &Router{
		Router: httprouter.New(),
	}

	generalHttpClient := &http.Client{
		Transport: getTransport(cfg),
	}

	registry, err := newRegistry(cfg.Adapters, generalHttpClient)
	if err != nil {
		return nil, err
	}
	glog.Infof("Registered bidders: %v", registry.Bidders())

	r.MetricsEngine = metricsConf.NewMetricsEngine(cfg, registry.Bidders())
	r.Analytics = analyticsBuild.New(&cfg.Analytics, generalHttpClient)
	r.Manager = auction.NewManager(auction.Deps{
		Registry:       registry,
		Resolver:       targeting.NewResolver(pbs.PriceGranularity(cfg.PriceGranularity), cfg.MaxKeyLength),
		Metrics:        r.MetricsEngine,
		Analytics:      r.Analytics,
		Clock:          clock.New(),
		DefaultTimeout: cfg.AuctionTimeout(),
		MaxTimeout:     cfg.MaxAuctionTimeout(),
	})

	auctionEndpoints, err := endpoints.NewAuctionEndpoints(r.Manager, cfg.MaxRequestSize, cfg.AuctionRetention())
	if err != nil {
		return nil, err
	}

	r.POST("/auction", auctionEndpoints.Create)
	r.GET("/auction/:id", auctionEndpoints.Get)
	r.DELETE("/auction/:id", auctionEndpoints.Delete)
	r.GET("/bidders/:bidder/auctions", auctionEndpoints.BidderAuctions)
	r.GET("/bids/:id", auctionEndpoints.Bid)
	r.GET("/bidder_params", NewBidderParamsServer(registry))
	r.GET("/status", endpoints.NewStatusEndpoint(cfg.StatusResponse))

	var liveAuctions *task.TickerTask
	if cfg.LiveAuctionsReportIntervalMS > 0 {
		interval := time.Duration(cfg.LiveAuctionsReportIntervalMS) * time.Millisecond
		liveAuctions = task.NewTickerTaskFromFunc("live-auctions", interval, func() error {
			r.MetricsEngine.RecordLiveAuctions(r.Manager.Len())
			return nil
		})
		liveAuctions.Start()
	}

	var retention *task.TickerTask
	if cfg.AuctionRetentionMS > 0 {
		retention = task.NewTickerTaskFromFunc("auction-retention", cfg.AuctionRetention(), func() error {
			auctionEndpoints.EvictClosed()
			return nil
		})
		retention.Start()
	}

	r.Shutdown = func() {
		if liveAuctions != nil {
			liveAuctions.Stop()
		}
		if retention != nil {
			retention.Stop()
		}
		for _, a := range r.Manager.Auctions() {
			a.Close()
		}
		r.Analytics.Shutdown()
	}

	return r, nil
}

func SupportCORS(handler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowCredentials: true,
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}})
	return c.Handler(handler)
}

// PrometheusRegistry returns the registry the Prometheus metrics live in, or nil if Prometheus is off.
func (r *Router) PrometheusRegistry() *prometheus.Registry {
	if r.MetricsEngine == nil || r.MetricsEngine.PrometheusMetrics == nil {
		return nil
	}
	return r.MetricsEngine.PrometheusMetrics.Registry
}
