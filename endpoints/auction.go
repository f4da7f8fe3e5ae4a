package endpoints

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"

	"github.com/prebid/prebid-auction/auction"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/pbs"
)

const auctionRequestSchema = `{
  "$schema": "http://json-schema.org/draft-04/schema#",
  "type": "object",
  "required": ["placements"],
  "properties": {
    "timeout_ms": {"type": "integer", "minimum": 0},
    "placements": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "bids"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "sizes": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["w", "h"],
              "properties": {
                "w": {"type": "integer", "minimum": 1},
                "h": {"type": "integer", "minimum": 1}
              }
            }
          },
          "bids": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["bidder"],
              "properties": {
                "bidder": {"type": "string", "minLength": 1},
                "params": {"type": "object"}
              }
            }
          }
        }
      }
    }
  }
}`

type auctionRequest struct {
	Placements    []pbs.Placement `json:"placements"`
	TimeoutMillis uint64          `json:"timeout_ms"`
}

type auctionResponse struct {
	AuctionID       string               `json:"auction_id"`
	State           string               `json:"state"`
	CloseReason     string               `json:"close_reason,omitempty"`
	TimeoutMillis   int64                `json:"timeout_ms"`
	Targeting       []pbs.TargetingEntry `json:"targeting,omitempty"`
	Bids            []pbs.ReceivedBid    `json:"bids,omitempty"`
	TimedOutBidders []string             `json:"timed_out_bidders,omitempty"`
	Warnings        []string             `json:"warnings,omitempty"`
}

type auctionSummary struct {
	AuctionID string `json:"auction_id"`
	State     string `json:"state"`
}

type bidderAuctionsResponse struct {
	Bidder   string           `json:"bidder"`
	Auctions []auctionSummary `json:"auctions"`
}

type bidLookupResponse struct {
	AuctionID string             `json:"auction_id"`
	Bid       *pbs.Bid           `json:"bid"`
	Request   *pbs.BidderRequest `json:"request,omitempty"`
}

type errorResponse struct {
	Status string `json:"status"`
}

// AuctionEndpoints exposes an auction.Manager over HTTP.
type AuctionEndpoints struct {
	manager        *auction.Manager
	maxRequestSize int64
	retention      time.Duration
	schema         *gojsonschema.Schema
}

// NewAuctionEndpoints builds the handlers. A maxRequestSize of 0 accepts bodies of any size.
// Closed auctions older than retention are dropped by EvictClosed; 0 keeps them until deleted.
func NewAuctionEndpoints(manager *auction.Manager, maxRequestSize int64, retention time.Duration) (*AuctionEndpoints, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(auctionRequestSchema))
	if err != nil {
		return nil, fmt.Errorf("Failed to load the auction request schema: %v", err)
	}
	return &AuctionEndpoints{
		manager:        manager,
		maxRequestSize: maxRequestSize,
		retention:      retention,
		schema:         schema,
	}, nil
}

// Create handles POST /auction. It runs a new auction and answers once it has closed.
func (e *AuctionEndpoints) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, status, err := e.readBody(r)
	if err != nil {
		if glog.V(2) {
			glog.Infof("Rejected /auction request: %v", err)
		}
		writeError(w, status, "Invalid request", err)
		return
	}

	var req auctionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	a := e.manager.CreateAuction()
	if err := a.Run(req.Placements, time.Duration(req.TimeoutMillis)*time.Millisecond); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to run auction", err)
		return
	}
	if err := a.Wait(r.Context()); err != nil {
		glog.Warningf("Client went away before auction %s closed: %v", a.ID(), err)
		writeError(w, http.StatusGatewayTimeout, "Auction still running", err)
		return
	}
	writeJSON(w, http.StatusOK, newAuctionResponse(a))
}

// Get handles GET /auction/:id.
func (e *AuctionEndpoints) Get(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	a, ok := e.manager.GetAuction(ps.ByName("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown auction", nil)
		return
	}
	writeJSON(w, http.StatusOK, newAuctionResponse(a))
}

// Delete handles DELETE /auction/:id. The auction is closed before it is forgotten, so the answer
// always carries final targeting.
func (e *AuctionEndpoints) Delete(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	a, ok := e.manager.GetAuction(ps.ByName("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown auction", nil)
		return
	}
	a.Close()
	e.manager.RemoveAuction(a.ID())
	writeJSON(w, http.StatusOK, newAuctionResponse(a))
}

// BidderAuctions handles GET /bidders/:bidder/auctions.
func (e *AuctionEndpoints) BidderAuctions(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	bidder := ps.ByName("bidder")
	resp := bidderAuctionsResponse{
		Bidder:   bidder,
		Auctions: []auctionSummary{},
	}
	for _, a := range e.manager.FindAuctionsByBidder(bidder) {
		resp.Auctions = append(resp.Auctions, auctionSummary{AuctionID: a.ID(), State: a.State().String()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Bid handles GET /bids/:id.
func (e *AuctionEndpoints) Bid(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	bidID := ps.ByName("id")
	bid, owner, ok := e.manager.FindBid(bidID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown bid", nil)
		return
	}
	resp := bidLookupResponse{
		AuctionID: owner.ID(),
		Bid:       bid,
	}
	if req, ok := e.manager.FindBidderRequestByBidID(bidID); ok {
		resp.Request = req
	}
	writeJSON(w, http.StatusOK, resp)
}

// EvictClosed removes the auctions which closed more than the retention period ago and returns
// how many it removed. Auctions still running are never touched.
func (e *AuctionEndpoints) EvictClosed() int {
	if e.retention <= 0 {
		return 0
	}
	cutoff := e.manager.Clock().Now().Add(-e.retention)
	removed := 0
	for _, a := range e.manager.Auctions() {
		if a.State() != auction.StateClosed || a.EndTime().After(cutoff) {
			continue
		}
		if e.manager.RemoveAuction(a.ID()) {
			removed++
		}
	}
	if removed > 0 && glog.V(2) {
		glog.Infof("Evicted %d closed auctions", removed)
	}
	return removed
}

func (e *AuctionEndpoints) readBody(r *http.Request) ([]byte, int, error) {
	if r.Body == nil {
		return nil, http.StatusBadRequest, errors.New("request body is empty")
	}
	defer r.Body.Close()

	reader := io.Reader(r.Body)
	if e.maxRequestSize > 0 {
		reader = io.LimitReader(r.Body, e.maxRequestSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	if e.maxRequestSize > 0 && int64(len(body)) > e.maxRequestSize {
		return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("request size exceeds max size of %d bytes", e.maxRequestSize)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, http.StatusBadRequest, errors.New("request body is empty")
	}

	result, err := e.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	if !result.Valid() {
		msg := bytes.NewBuffer(make([]byte, 0, 200))
		for i, desc := range result.Errors() {
			if i > 0 {
				msg.WriteString("; ")
			}
			msg.WriteString(desc.String())
		}
		return nil, http.StatusBadRequest, errors.New(msg.String())
	}
	return body, http.StatusOK, nil
}

func newAuctionResponse(a *auction.Auction) auctionResponse {
	resp := auctionResponse{
		AuctionID:       a.ID(),
		State:           a.State().String(),
		CloseReason:     string(a.CloseReason()),
		TimeoutMillis:   a.Timeout().Milliseconds(),
		Bids:            a.ReceivedBids(),
		TimedOutBidders: a.TimedOutBidders(),
	}
	if entries, ok := a.Targeting(); ok {
		resp.Targeting = entries
	}
	for _, warning := range errortypes.WarningOnly(a.Warnings()) {
		resp.Warnings = append(resp.Warnings, warning.Error())
	}
	return resp
}

func writeError(w http.ResponseWriter, status int, s string, err error) {
	resp := errorResponse{Status: s}
	if err != nil {
		resp.Status = fmt.Sprintf("%s: %v", s, err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		glog.Errorf("Failed to marshal response JSON: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
