package router

import (
	"encoding/json"
	"net/http"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prebid/prebid-auction/endpoints"
)

type liveAuction struct {
	AuctionID   string `json:"auction_id"`
	State       string `json:"state"`
	CloseReason string `json:"close_reason,omitempty"`
	Bidders     int    `json:"bidders"`
}

// Admin builds the handler for the admin port. /metrics is only served when Prometheus is configured.
func Admin(revision string, r *Router) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/version", endpoints.NewVersionEndpoint("", revision))
	mux.HandleFunc("/auctions", func(w http.ResponseWriter, _ *http.Request) {
		auctions := r.Manager.Auctions()
		live := make([]liveAuction, 0, len(auctions))
		for _, a := range auctions {
			live = append(live, liveAuction{
				AuctionID:   a.ID(),
				State:       a.State().String(),
				CloseReason: string(a.CloseReason()),
				Bidders:     len(a.BidderRequests()),
			})
		}
		b, err := json.Marshal(live)
		if err != nil {
			glog.Errorf("Failed to marshal live auctions: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	})
	if registry := r.PrometheusRegistry(); registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{ErrorLog: loggerForPrometheus{}}))
	}
	return mux
}

type loggerForPrometheus struct{}

func (loggerForPrometheus) Println(v ...interface{}) {
	glog.Warningln(v...)
}
