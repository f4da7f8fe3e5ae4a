package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/pbs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBidReceivedToJSON(t *testing.T) {
	received := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	obj := &BidReceivedObject{
		AuctionID: "auction-1",
		RequestID: "request-1",
		Received: pbs.ReceivedBid{
			Seq:         3,
			Bidder:      "amazon",
			PlacementID: "slot-A",
			Status:      pbs.BidStatusBid,
			Bid: &pbs.Bid{
				ID:     "bid-1",
				Price:  0.1,
				Width:  300,
				Height: 250,
				Meta:   map[string]string{"token": "a300x250p2"},
			},
			ReceivedAt: received,
		},
		Latency: 42 * time.Millisecond,
	}

	data, err := obj.ToJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, BidReceived, decoded["type"])
	assert.Equal(t, "slot-A", decoded["placement_id"])
	assert.Equal(t, "bid", decoded["status"])
	assert.EqualValues(t, 42, decoded["latency_ms"])
	assert.EqualValues(t, received.UnixNano()/int64(time.Millisecond), decoded["received_at"])
	assert.Nil(t, decoded["error"])

	bid := decoded["bid"].(map[string]interface{})
	assert.Equal(t, "bid-1", bid["id"])
	assert.Equal(t, map[string]interface{}{"token": "a300x250p2"}, bid["meta"])
}

func TestAuctionErrorCarriesCode(t *testing.T) {
	obj := &AuctionErrorObject{
		AuctionID:   "auction-1",
		Bidder:      "p1",
		PlacementID: "slot-A",
		Err:         &errortypes.MalformedBid{Message: "negative price"},
	}
	assert.Equal(t, errortypes.MalformedBidErrorCode, obj.Code())

	data, err := obj.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "auction_error",
		"auction_id": "auction-1",
		"bidder": "p1",
		"placement_id": "slot-A",
		"error": {"code": 5, "severity": "fatal", "message": "negative price"},
		"time": 0
	}`, string(data))
}

func TestAuctionClosedToJSONKeepsKeyOrder(t *testing.T) {
	obj := &AuctionClosedObject{
		AuctionID:    "auction-1",
		Reason:       "complete",
		BidsReceived: 2,
		Targeting: []pbs.TargetingEntry{{
			PlacementID: "slot-A",
			Outcome:     pbs.TargetingOutcomeWinner,
			BidID:       "bid-2",
			Bidder:      "p2",
			Keys:        pbs.KeyValues{{Key: "hb_pb", Value: "2.00"}, {Key: "hb_bidder", Value: "p2"}},
		}},
	}

	data, err := obj.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"keys":{"hb_pb":"2.00","hb_bidder":"p2"}`)
	assert.NotContains(t, string(data), "timed_out_bidders")
}

func TestRequestIssuedWithoutRequest(t *testing.T) {
	data, err := (&RequestIssuedObject{AuctionID: "a"}).ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"request_issued","auction_id":"a","request_id":"","bidder":"","placements":null,"timeout_ms":0,"issued_at":0}`, string(data))
}

func TestBidWonToJSON(t *testing.T) {
	keys := pbs.KeyValues{}
	keys.Set("hb_pb", "2.00")
	keys.Set("hb_bidder", "p2")
	obj := &BidWonObject{
		AuctionID:   "auction-1",
		PlacementID: "slot-A",
		Bid:         &pbs.Bid{ID: "bid-1", Bidder: "p2", Price: 2, Width: 300, Height: 250},
		Keys:        keys,
	}

	data, err := obj.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "bid_won",
		"auction_id": "auction-1",
		"placement_id": "slot-A",
		"bidder": "p2",
		"bid": {"id": "bid-1", "price": 2, "w": 300, "h": 250},
		"keys": {"hb_pb": "2.00", "hb_bidder": "p2"},
		"won_at": 0
	}`, string(data))
}

func TestErrorSeverity(t *testing.T) {
	data, err := (&AuctionErrorObject{Err: &errortypes.LateResponse{Message: "late"}}).ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"severity":"warning"`)
}
