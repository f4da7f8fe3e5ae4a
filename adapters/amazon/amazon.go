// Package amazon bids through Amazon's obfuscated price API.
//
// Amazon never discloses its price. Each response carries one or more slot tokens such as
// "a300x250p2" which encode the price bucket, and only the ad server can decode them. The adapter
// bids a placeholder price and relies on alwaysUseBid so the tokens always reach the ad server.
package amazon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/buger/jsonparser"
	"github.com/golang/glog"
	"github.com/prebid/prebid-auction/adapters"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/pbs"
	"golang.org/x/net/context/ctxhttp"
)

const (
	// placeholderPrice stands in for the real, obfuscated price.
	placeholderPrice = 0.10

	// TokenKey is the Meta field holding the slot token of a bid.
	TokenKey = "token"

	defaultEndpoint = "https://c.amazon-adsystem.com/e/dtb/bid"
)

const paramsSchema = `{
  "$schema": "http://json-schema.org/draft-04/schema#",
  "title": "Amazon Adapter Params",
  "description": "A schema which validates params accepted by the Amazon adapter",
  "type": "object",
  "properties": {
    "amazonId": {"type": "string", "minLength": 1, "description": "The publisher's Amazon account ID"},
    "width": {"type": "integer", "minimum": 1, "description": "Width of the slot"},
    "height": {"type": "integer", "minimum": 1, "description": "Height of the slot"},
    "size": {"type": "string", "pattern": "^[0-9]+x[0-9]+$", "description": "The slot size as Amazon expects it, for example 300x250"}
  },
  "required": ["amazonId", "width", "height", "size"]
}`

type Params struct {
	AmazonID string `json:"amazonId"`
	Width    uint64 `json:"width"`
	Height   uint64 `json:"height"`
	Size     string `json:"size"`
}

type Adapter struct {
	bidder   string
	endpoint string
	client   *http.Client
}

func New(bidder string, endpoint string, client *http.Client) *Adapter {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Adapter{
		bidder:   bidder,
		endpoint: endpoint,
		client:   client,
	}
}

// DefaultSettings always forwards Amazon's bid, keyed as "amznslots", and its bid ID as
// "hb_adid_amazon" so the page can still render an Amazon win.
func DefaultSettings() (adapters.Settings, error) {
	validator, err := adapters.NewSchemaValidator(paramsSchema)
	if err != nil {
		return adapters.Settings{}, err
	}
	return adapters.Settings{
		AlwaysUseBid: true,
		TargetingKeys: []adapters.TargetingKeyRule{
			adapters.MetaKey{TargetingKey: "amznslots", Field: TokenKey},
			adapters.BidIDKey{TargetingKey: "hb_adid_amazon"},
		},
		Params: validator,
	}, nil
}

func Builder(bidder string, cfg config.Adapter, client *http.Client) (adapters.Adapter, adapters.Settings, error) {
	settings, err := DefaultSettings()
	if err != nil {
		return nil, adapters.Settings{}, err
	}
	return New(bidder, cfg.Endpoint, client), settings, nil
}

// Dispatch calls Amazon once per placement, and reports each placement as soon as its answer arrives.
func (a *Adapter) Dispatch(ctx context.Context, request *pbs.BidderRequest, respond adapters.ResponseFunc) {
	var wg sync.WaitGroup
	for _, placement := range request.Placements {
		var params Params
		if err := json.Unmarshal(placement.Params, &params); err != nil {
			respond(pbs.FailedResponse(placement.PlacementID, &errortypes.BadInput{
				Message: fmt.Sprintf("Amazon unable to bid on %s: %v", placement.PlacementID, err),
			}))
			continue
		}
		wg.Add(1)
		go func(placementID string, params Params) {
			defer wg.Done()
			a.requestPlacement(ctx, request, placementID, params, respond)
		}(placement.PlacementID, params)
	}
	wg.Wait()
}

func (a *Adapter) requestPlacement(ctx context.Context, request *pbs.BidderRequest, placementID string, params Params, respond adapters.ResponseFunc) {
	query := url.Values{}
	query.Set("src", params.AmazonID)
	query.Set("sz", params.Size)
	query.Set("t", strconv.FormatUint(request.TimeoutMillis, 10))

	httpResp, err := ctxhttp.Get(ctx, a.client, a.endpoint+"?"+query.Encode())
	if err != nil {
		if ctx.Err() != nil {
			if glog.V(2) {
				glog.Infof("amazon request for %s abandoned: %v", placementID, err)
			}
			return
		}
		respond(pbs.FailedResponse(placementID, &errortypes.FailedToRequestBids{Message: err.Error()}))
		return
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNoContent {
		respond(pbs.NoBidResponse(placementID))
		return
	}
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		respond(pbs.FailedResponse(placementID, &errortypes.BadServerResponse{Message: err.Error()}))
		return
	}
	if httpResp.StatusCode != http.StatusOK {
		respond(pbs.FailedResponse(placementID, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("Unexpected status code: %d", httpResp.StatusCode),
		}))
		return
	}

	responses, err := parseResponse(body, a.bidder, placementID, params)
	if err != nil {
		respond(pbs.FailedResponse(placementID, &errortypes.BadServerResponse{Message: err.Error()}))
		return
	}
	respond(responses...)
}

// parseResponse turns {"slots": [...], "ads": {token: markup}} into one bid per slot token.
func parseResponse(body []byte, bidder string, placementID string, params Params) ([]pbs.BidResponse, error) {
	var tokens []string
	var parseErr error
	_, err := jsonparser.ArrayEach(body, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if dataType != jsonparser.String {
			parseErr = fmt.Errorf("slot token at offset %d is a %s", offset, dataType)
			return
		}
		tokens = append(tokens, string(value))
	}, "slots")
	if err != nil && err != jsonparser.KeyPathNotFoundError {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}

	if len(tokens) == 0 {
		if glog.V(2) {
			glog.Infof("amazon: no bid returned for placement %s", placementID)
		}
		return []pbs.BidResponse{pbs.NoBidResponse(placementID)}, nil
	}

	responses := make([]pbs.BidResponse, 0, len(tokens))
	for _, token := range tokens {
		adm, err := jsonparser.GetString(body, "ads", token)
		if err != nil && err != jsonparser.KeyPathNotFoundError {
			return nil, err
		}
		responses = append(responses, pbs.NewBidResponse(&pbs.Bid{
			PlacementID: placementID,
			Bidder:      bidder,
			Price:       placeholderPrice,
			Adm:         adm,
			Width:       params.Width,
			Height:      params.Height,
			Meta:        map[string]string{TokenKey: token},
		}))
	}
	return responses, nil
}
