// Package httpbidder talks OpenRTB 2.5 to any demand partner which exposes a plain JSON endpoint.
// Each auction dispatch becomes one POST with an Imp per placement.
package httpbidder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/buger/jsonparser"
	"github.com/golang/glog"
	"github.com/mxmCherry/openrtb"
	"github.com/prebid/prebid-auction/adapters"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/pbs"
	"golang.org/x/net/context/ctxhttp"
)

type Adapter struct {
	bidder   string
	endpoint string
	client   *http.Client
}

func New(bidder string, endpoint string, client *http.Client) *Adapter {
	return &Adapter{
		bidder:   bidder,
		endpoint: endpoint,
		client:   client,
	}
}

// Builder builds a generic bidder. It has no opinion about targeting or params, so the defaults are empty.
func Builder(bidder string, cfg config.Adapter, client *http.Client) (adapters.Adapter, adapters.Settings, error) {
	if cfg.Endpoint == "" {
		return nil, adapters.Settings{}, fmt.Errorf("bidder %s needs an endpoint", bidder)
	}
	return New(bidder, cfg.Endpoint, client), adapters.Settings{}, nil
}

type impExt struct {
	Bidder json.RawMessage `json:"bidder,omitempty"`
}

func (a *Adapter) Dispatch(ctx context.Context, request *pbs.BidderRequest, respond adapters.ResponseFunc) {
	body, err := json.Marshal(a.makeRequest(request))
	if err != nil {
		respond(pbs.FailedResponses(request, &errortypes.FailedToRequestBids{Message: err.Error()})...)
		return
	}

	httpReq, err := http.NewRequest("POST", a.endpoint, bytes.NewReader(body))
	if err != nil {
		respond(pbs.FailedResponses(request, &errortypes.FailedToRequestBids{Message: err.Error()})...)
		return
	}
	httpReq.Header.Add("Content-Type", "application/json;charset=utf-8")
	httpReq.Header.Add("Accept", "application/json")

	httpResp, err := ctxhttp.Do(ctx, a.client, httpReq)
	if err != nil {
		if ctx.Err() != nil {
			// The auction closed first. It already recorded the timeout.
			if glog.V(2) {
				glog.Infof("%s request %s abandoned: %v", a.bidder, request.RequestID, err)
			}
			return
		}
		respond(pbs.FailedResponses(request, &errortypes.FailedToRequestBids{Message: err.Error()})...)
		return
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNoContent {
		respond()
		return
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		respond(pbs.FailedResponses(request, &errortypes.BadServerResponse{Message: err.Error()})...)
		return
	}
	if httpResp.StatusCode != http.StatusOK {
		respond(pbs.FailedResponses(request, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("Unexpected status code: %d", httpResp.StatusCode),
		})...)
		return
	}

	var bidResp openrtb.BidResponse
	if err := json.Unmarshal(respBody, &bidResp); err != nil {
		respond(pbs.FailedResponses(request, &errortypes.BadServerResponse{Message: err.Error()})...)
		return
	}

	respond(a.toResponses(request, &bidResp)...)
}

func (a *Adapter) makeRequest(request *pbs.BidderRequest) *openrtb.BidRequest {
	imps := make([]openrtb.Imp, len(request.Placements))
	for i, placement := range request.Placements {
		imps[i] = openrtb.Imp{
			ID:     placement.PlacementID,
			TagID:  placement.PlacementID,
			Banner: &openrtb.Banner{Format: placement.Sizes},
		}
		if len(placement.Params) > 0 {
			ext, err := json.Marshal(impExt{Bidder: placement.Params})
			if err == nil {
				imps[i].Ext = ext
			}
		}
	}
	return &openrtb.BidRequest{
		ID:   request.RequestID,
		Imp:  imps,
		TMax: int64(request.TimeoutMillis),
	}
}

// toResponses reports every returned bid, and a no-bid for each requested placement nobody bid on.
// Bids on placements that weren't requested are passed through so the auction can reject them.
func (a *Adapter) toResponses(request *pbs.BidderRequest, bidResp *openrtb.BidResponse) []pbs.BidResponse {
	responses := make([]pbs.BidResponse, 0, len(request.Placements))
	seen := make(map[string]bool, len(request.Placements))
	for _, seatBid := range bidResp.SeatBid {
		for i := range seatBid.Bid {
			bid := &seatBid.Bid[i]
			seen[bid.ImpID] = true
			responses = append(responses, pbs.NewBidResponse(&pbs.Bid{
				PlacementID: bid.ImpID,
				Bidder:      a.bidder,
				Price:       bid.Price,
				Adm:         bid.AdM,
				Width:       bid.W,
				Height:      bid.H,
				DealID:      bid.DealID,
				Meta:        extToMeta(bid.Ext),
			}))
		}
	}
	for _, placementID := range request.PlacementIDs() {
		if !seen[placementID] {
			responses = append(responses, pbs.NoBidResponse(placementID))
		}
	}
	return responses
}

// extToMeta keeps the string fields of a bid's ext. Anything else is dropped.
func extToMeta(ext json.RawMessage) map[string]string {
	if len(ext) == 0 {
		return nil
	}
	meta := make(map[string]string)
	jsonparser.ObjectEach(ext, func(key []byte, value []byte, dataType jsonparser.ValueType, offset int) error {
		if dataType == jsonparser.String {
			if parsed, err := jsonparser.ParseString(value); err == nil {
				meta[string(key)] = parsed
			}
		}
		return nil
	})
	if len(meta) == 0 {
		return nil
	}
	return meta
}
