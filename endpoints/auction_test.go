package endpoints

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prebid/prebid-auction/adapters"
	"github.com/prebid/prebid-auction/auction"
	"github.com/prebid/prebid-auction/pbs"
)

func fixedBid(price float64) adapters.AdapterFunc {
	return func(_ context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		var responses []pbs.BidResponse
		for _, p := range req.Placements {
			responses = append(responses, pbs.NewBidResponse(&pbs.Bid{
				PlacementID: p.PlacementID,
				Price:       price,
				Width:       300,
				Height:      250,
			}))
		}
		respond(responses...)
	}
}

func newTestRouter(t *testing.T, maxRequestSize int64) (*httprouter.Router, *auction.Manager) {
	t.Helper()
	_, r, manager := newTestEndpoints(t, maxRequestSize, 0, nil)
	return r, manager
}

func newTestEndpoints(t *testing.T, maxRequestSize int64, retention time.Duration, clk clock.Clock) (*AuctionEndpoints, *httprouter.Router, *auction.Manager) {
	t.Helper()
	registry := adapters.NewRegistry()
	require.NoError(t, registry.Register("p1", fixedBid(1.00), adapters.Settings{}))
	require.NoError(t, registry.Register("p2", fixedBid(2.00), adapters.Settings{}))
	require.NoError(t, registry.Register("quiet", adapters.AdapterFunc(func(context.Context, *pbs.BidderRequest, adapters.ResponseFunc) {}), adapters.Settings{}))
	manager := auction.NewManager(auction.Deps{Registry: registry, Clock: clk})

	endpoints, err := NewAuctionEndpoints(manager, maxRequestSize, retention)
	require.NoError(t, err)

	r := httprouter.New()
	r.POST("/auction", endpoints.Create)
	r.GET("/auction/:id", endpoints.Get)
	r.DELETE("/auction/:id", endpoints.Delete)
	r.GET("/bidders/:bidder/auctions", endpoints.BidderAuctions)
	r.GET("/bids/:id", endpoints.Bid)
	return endpoints, r, manager
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeAuction(t *testing.T, rec *httptest.ResponseRecorder) auctionResponse {
	t.Helper()
	var resp auctionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestCreateAuction(t *testing.T) {
	r, manager := newTestRouter(t, 0)
	rec := serve(r, "POST", "/auction", `{
		"placements": [
			{"id": "slot-A", "sizes": [{"w": 300, "h": 250}], "bids": [{"bidder": "p1"}, {"bidder": "p2"}]}
		]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodeAuction(t, rec)
	assert.Equal(t, "closed", resp.State)
	assert.Equal(t, "complete", resp.CloseReason)
	require.Len(t, resp.Targeting, 1)
	assert.Equal(t, pbs.TargetingOutcomeWinner, resp.Targeting[0].Outcome)
	assert.Equal(t, "p2", resp.Targeting[0].Bidder)
	assert.Len(t, resp.Bids, 2)
	assert.Equal(t, 1, manager.Len())
}

func TestCreateAuctionTimesOut(t *testing.T) {
	r, _ := newTestRouter(t, 0)
	rec := serve(r, "POST", "/auction", `{
		"timeout_ms": 20,
		"placements": [{"id": "slot-A", "bids": [{"bidder": "p1"}, {"bidder": "quiet"}]}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeAuction(t, rec)
	assert.Equal(t, "timeout", resp.CloseReason)
	assert.Equal(t, int64(20), resp.TimeoutMillis)
	assert.Equal(t, []string{"quiet"}, resp.TimedOutBidders)
	require.Len(t, resp.Targeting, 1)
	assert.Equal(t, "p1", resp.Targeting[0].Bidder)
}

func TestCreateAuctionWarnings(t *testing.T) {
	r, _ := newTestRouter(t, 0)
	rec := serve(r, "POST", "/auction", `{"placements": [{"id": "slot-A", "bids": [{"bidder": "nobody"}]}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeAuction(t, rec)
	assert.Equal(t, "empty", resp.CloseReason)
	assert.NotEmpty(t, resp.Warnings)
	require.Len(t, resp.Targeting, 1)
	assert.Equal(t, pbs.TargetingOutcomeNoBids, resp.Targeting[0].Outcome)
}

func TestCreateAuctionBadInput(t *testing.T) {
	testCases := []struct {
		description string
		body        string
		maxSize     int64
		status      int
	}{
		{description: "empty body", body: "", status: http.StatusBadRequest},
		{description: "not json", body: "{", status: http.StatusBadRequest},
		{description: "no placements", body: `{"placements": []}`, status: http.StatusBadRequest},
		{description: "missing placement id", body: `{"placements": [{"bids": []}]}`, status: http.StatusBadRequest},
		{description: "negative timeout", body: `{"timeout_ms": -1, "placements": [{"id": "a", "bids": []}]}`, status: http.StatusBadRequest},
		{description: "zero size", body: `{"placements": [{"id": "a", "sizes": [{"w": 0, "h": 1}], "bids": []}]}`, status: http.StatusBadRequest},
		{description: "too large", body: `{"placements": [{"id": "a", "bids": []}]}`, maxSize: 10, status: http.StatusRequestEntityTooLarge},
	}

	for _, test := range testCases {
		r, manager := newTestRouter(t, test.maxSize)
		rec := serve(r, "POST", "/auction", test.body)
		assert.Equal(t, test.status, rec.Code, test.description)
		assert.Contains(t, rec.Body.String(), "Invalid request", test.description)
		assert.Zero(t, manager.Len(), test.description)
	}
}

func TestGetAndDeleteAuction(t *testing.T) {
	r, manager := newTestRouter(t, 0)
	a := manager.CreateAuction()

	rec := serve(r, "GET", "/auction/"+a.ID(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAuction(t, rec)
	assert.Equal(t, "created", resp.State)
	assert.Nil(t, resp.Targeting)

	rec = serve(r, "DELETE", "/auction/"+a.ID(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeAuction(t, rec)
	assert.Equal(t, "closed", resp.State)
	assert.Equal(t, "empty", resp.CloseReason)
	assert.Zero(t, manager.Len())

	assert.Equal(t, http.StatusNotFound, serve(r, "GET", "/auction/"+a.ID(), "").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, "DELETE", "/auction/"+a.ID(), "").Code)
}

func TestLookupsByBidderAndBid(t *testing.T) {
	r, manager := newTestRouter(t, 0)
	rec := serve(r, "POST", "/auction", `{"placements": [{"id": "slot-A", "bids": [{"bidder": "p1"}]}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	created := decodeAuction(t, rec)

	rec = serve(r, "GET", "/bidders/p1/auctions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var byBidder bidderAuctionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &byBidder))
	assert.Equal(t, bidderAuctionsResponse{
		Bidder:   "p1",
		Auctions: []auctionSummary{{AuctionID: created.AuctionID, State: "closed"}},
	}, byBidder)

	rec = serve(r, "GET", "/bidders/p2/auctions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bidder": "p2", "auctions": []}`, rec.Body.String())

	bids := manager.Auctions()[0].Bids()
	require.Len(t, bids, 1)
	rec = serve(r, "GET", "/bids/"+bids[0].ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var lookup bidLookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lookup))
	assert.Equal(t, created.AuctionID, lookup.AuctionID)
	assert.Equal(t, bids[0].ID, lookup.Bid.ID)
	require.NotNil(t, lookup.Request)
	assert.Equal(t, "p1", lookup.Request.Bidder)

	assert.Equal(t, http.StatusNotFound, serve(r, "GET", "/bids/missing", "").Code)
}

func TestEvictClosedAuctions(t *testing.T) {
	mockClock := clock.NewMock()
	e, r, manager := newTestEndpoints(t, 0, time.Minute, mockClock)

	for i := 0; i < 50; i++ {
		rec := serve(r, "POST", "/auction", `{"placements": [{"id": "slot-A", "bids": [{"bidder": "p1"}]}]}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	pending := manager.CreateAuction()
	require.Equal(t, 51, manager.Len())

	assert.Zero(t, e.EvictClosed(), "auctions closed less than a minute ago are kept")
	assert.Equal(t, 51, manager.Len())

	mockClock.Add(time.Minute)
	assert.Equal(t, 50, e.EvictClosed())
	assert.Equal(t, 1, manager.Len())
	_, ok := manager.GetAuction(pending.ID())
	assert.True(t, ok, "auctions which are not closed are never evicted")
}

func TestEvictClosedWithoutRetention(t *testing.T) {
	mockClock := clock.NewMock()
	e, r, manager := newTestEndpoints(t, 0, 0, mockClock)
	rec := serve(r, "POST", "/auction", `{"placements": [{"id": "slot-A", "bids": [{"bidder": "p1"}]}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	mockClock.Add(24 * time.Hour)
	assert.Zero(t, e.EvictClosed())
	assert.Equal(t, 1, manager.Len())
}
