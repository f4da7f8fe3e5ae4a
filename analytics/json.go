package analytics

import (
	"encoding/json"
	"time"

	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/pbs"
)

// Event types written by the transaction log and the collector.
const (
	RequestIssued = "request_issued"
	BidReceived   = "bid_received"
	BidderTimeout = "bidder_timeout"
	AuctionClosed = "auction_closed"
	BidWon        = "bid_won"
	AuctionError  = "auction_error"
)

type errorJSON struct {
	Code     int    `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func newErrorJSON(err error) *errorJSON {
	if err == nil {
		return nil
	}
	return &errorJSON{
		Code:     errortypes.ReadCode(err),
		Severity: errortypes.ReadSeverity(err).String(),
		Message:  err.Error(),
	}
}

type requestIssuedJSON struct {
	Type       string   `json:"type"`
	AuctionID  string   `json:"auction_id"`
	RequestID  string   `json:"request_id"`
	Bidder     string   `json:"bidder"`
	Placements []string `json:"placements"`
	TimeoutMS  uint64   `json:"timeout_ms"`
	IssuedAt   int64    `json:"issued_at"`
}

func (o *RequestIssuedObject) ToJSON() ([]byte, error) {
	e := requestIssuedJSON{
		Type:      RequestIssued,
		AuctionID: o.AuctionID,
		IssuedAt:  millis(o.IssuedAt),
	}
	if o.Request != nil {
		e.RequestID = o.Request.RequestID
		e.Bidder = o.Request.Bidder
		e.Placements = o.Request.PlacementIDs()
		e.TimeoutMS = o.Request.TimeoutMillis
	}
	return json.Marshal(e)
}

type bidJSON struct {
	ID     string            `json:"id"`
	Price  float64           `json:"price"`
	Width  uint64            `json:"w,omitempty"`
	Height uint64            `json:"h,omitempty"`
	DealID string            `json:"deal_id,omitempty"`
	Meta   map[string]string `json:"meta,omitempty"`
}

type bidReceivedJSON struct {
	Type        string     `json:"type"`
	AuctionID   string     `json:"auction_id"`
	RequestID   string     `json:"request_id"`
	Seq         int        `json:"seq"`
	Bidder      string     `json:"bidder"`
	PlacementID string     `json:"placement_id"`
	Status      string     `json:"status"`
	Bid         *bidJSON   `json:"bid,omitempty"`
	Error       *errorJSON `json:"error,omitempty"`
	LatencyMS   int64      `json:"latency_ms"`
	ReceivedAt  int64      `json:"received_at"`
}

func (o *BidReceivedObject) ToJSON() ([]byte, error) {
	r := o.Received
	e := bidReceivedJSON{
		Type:        BidReceived,
		AuctionID:   o.AuctionID,
		RequestID:   o.RequestID,
		Seq:         r.Seq,
		Bidder:      r.Bidder,
		PlacementID: r.PlacementID,
		Status:      string(r.Status),
		Bid:         newBidJSON(r.Bid),
		Error:       newErrorJSON(r.Err),
		LatencyMS:   o.Latency.Milliseconds(),
		ReceivedAt:  millis(r.ReceivedAt),
	}
	return json.Marshal(e)
}

func newBidJSON(bid *pbs.Bid) *bidJSON {
	if bid == nil {
		return nil
	}
	return &bidJSON{
		ID:     bid.ID,
		Price:  bid.Price,
		Width:  bid.Width,
		Height: bid.Height,
		DealID: bid.DealID,
		Meta:   bid.Meta,
	}
}

type bidderTimeoutJSON struct {
	Type       string     `json:"type"`
	AuctionID  string     `json:"auction_id"`
	RequestID  string     `json:"request_id"`
	Bidder     string     `json:"bidder"`
	Placements []string   `json:"placements"`
	TimeoutMS  int64      `json:"timeout_ms"`
	Error      *errorJSON `json:"error,omitempty"`
}

func (o *BidderTimeoutObject) ToJSON() ([]byte, error) {
	return json.Marshal(bidderTimeoutJSON{
		Type:       BidderTimeout,
		AuctionID:  o.AuctionID,
		RequestID:  o.RequestID,
		Bidder:     o.Bidder,
		Placements: o.PlacementIDs,
		TimeoutMS:  o.Timeout.Milliseconds(),
		Error:      newErrorJSON(o.Err),
	})
}

type auctionClosedJSON struct {
	Type            string               `json:"type"`
	AuctionID       string               `json:"auction_id"`
	Reason          string               `json:"reason"`
	StartTime       int64                `json:"start_time"`
	ClosedAt        int64                `json:"closed_at"`
	BidsReceived    int                  `json:"bids_received"`
	TimedOutBidders []string             `json:"timed_out_bidders,omitempty"`
	Targeting       []pbs.TargetingEntry `json:"targeting"`
}

func (o *AuctionClosedObject) ToJSON() ([]byte, error) {
	return json.Marshal(auctionClosedJSON{
		Type:            AuctionClosed,
		AuctionID:       o.AuctionID,
		Reason:          o.Reason,
		StartTime:       millis(o.StartTime),
		ClosedAt:        millis(o.ClosedAt),
		BidsReceived:    o.BidsReceived,
		TimedOutBidders: o.TimedOutBidders,
		Targeting:       o.Targeting,
	})
}

type bidWonJSON struct {
	Type        string        `json:"type"`
	AuctionID   string        `json:"auction_id"`
	PlacementID string        `json:"placement_id"`
	Bidder      string        `json:"bidder"`
	Bid         *bidJSON      `json:"bid"`
	Keys        pbs.KeyValues `json:"keys"`
	WonAt       int64         `json:"won_at"`
}

func (o *BidWonObject) ToJSON() ([]byte, error) {
	e := bidWonJSON{
		Type:        BidWon,
		AuctionID:   o.AuctionID,
		PlacementID: o.PlacementID,
		Bid:         newBidJSON(o.Bid),
		Keys:        o.Keys,
		WonAt:       millis(o.WonAt),
	}
	if o.Bid != nil {
		e.Bidder = o.Bid.Bidder
	}
	return json.Marshal(e)
}

type auctionErrorJSON struct {
	Type        string     `json:"type"`
	AuctionID   string     `json:"auction_id"`
	Bidder      string     `json:"bidder,omitempty"`
	PlacementID string     `json:"placement_id,omitempty"`
	Error       *errorJSON `json:"error,omitempty"`
	Time        int64      `json:"time"`
}

func (o *AuctionErrorObject) ToJSON() ([]byte, error) {
	return json.Marshal(auctionErrorJSON{
		Type:        AuctionError,
		AuctionID:   o.AuctionID,
		Bidder:      o.Bidder,
		PlacementID: o.PlacementID,
		Error:       newErrorJSON(o.Err),
		Time:        millis(o.Time),
	})
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano() / int64(time.Millisecond)
}
