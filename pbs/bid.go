package pbs

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/prebid/prebid-auction/errortypes"
)

// Bid is one bidder's priced response for one placement.
//
// Price is in whatever currency and precision the bidder uses. Meta carries bidder-specific values
// which may be needed for targeting later, such as an obfuscated price token.
type Bid struct {
	ID          string            `json:"id"`
	PlacementID string            `json:"placement_id"`
	Bidder      string            `json:"bidder"`
	Price       float64           `json:"price"`
	Adm         string            `json:"adm,omitempty"`
	Width       uint64            `json:"w,omitempty"`
	Height      uint64            `json:"h,omitempty"`
	DealID      string            `json:"deal_id,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// HasUsablePrice returns true if this bid can take part in the price comparison.
func (b *Bid) HasUsablePrice() bool {
	return b != nil && b.Price > 0 && !math.IsInf(b.Price, 0) && !math.IsNaN(b.Price)
}

// Size returns the creative size in the "WxH" form used by ad servers, or "" if either dimension is unknown.
func (b *Bid) Size() string {
	if b.Width == 0 || b.Height == 0 {
		return ""
	}
	return strconv.FormatUint(b.Width, 10) + "x" + strconv.FormatUint(b.Height, 10)
}

// Validate checks the fields which every bid must carry. A zero price is valid here; it just can't win.
func (b *Bid) Validate() error {
	if b.PlacementID == "" {
		return &errortypes.MalformedBid{Message: "bid is missing a placement_id"}
	}
	if math.IsNaN(b.Price) || math.IsInf(b.Price, 0) {
		return &errortypes.MalformedBid{Message: fmt.Sprintf("bid %q on placement %s has a non-numeric price", b.ID, b.PlacementID)}
	}
	if b.Price < 0 {
		return &errortypes.MalformedBid{Message: fmt.Sprintf("bid %q on placement %s has a negative price %f", b.ID, b.PlacementID, b.Price)}
	}
	return nil
}

// BidResponse is a single outcome reported by an adapter for one placement.
//
// Exactly one of three things is true:
//
//  1. Bid != nil: the bidder bid.
//  2. Bid == nil and Err == nil: the bidder explicitly declined (a "no bid").
//  3. Err != nil: the bidder tried, but failed to produce a usable answer.
type BidResponse struct {
	PlacementID string
	Bid         *Bid
	Err         error
}

// NewBidResponse wraps a Bid for delivery to the auction.
func NewBidResponse(bid *Bid) BidResponse {
	return BidResponse{
		PlacementID: bid.PlacementID,
		Bid:         bid,
	}
}

// NoBidResponse builds an explicit "no bid" for the placement.
func NoBidResponse(placementID string) BidResponse {
	return BidResponse{PlacementID: placementID}
}

// FailedResponse reports that the bidder failed on the placement.
func FailedResponse(placementID string, err error) BidResponse {
	return BidResponse{
		PlacementID: placementID,
		Err:         err,
	}
}

// FailedResponses reports err for every placement in the request.
func FailedResponses(req *BidderRequest, err error) []BidResponse {
	responses := make([]BidResponse, len(req.Placements))
	for i, p := range req.Placements {
		responses[i] = FailedResponse(p.PlacementID, err)
	}
	return responses
}

// IsNoBid returns true if this response is an explicit "no bid".
func (r BidResponse) IsNoBid() bool {
	return r.Bid == nil && r.Err == nil
}

// BidStatus tells apart the ways a bidder can end up on a placement.
type BidStatus string

const (
	BidStatusBid     BidStatus = "bid"
	BidStatusNoBid   BidStatus = "nobid"
	BidStatusFailed  BidStatus = "failed"
	BidStatusTimeout BidStatus = "timeout"
)

// ReceivedBid is one outcome recorded by an auction. Seq is the arrival order within the auction,
// which breaks price ties.
type ReceivedBid struct {
	Seq         int       `json:"seq"`
	Bidder      string    `json:"bidder"`
	PlacementID string    `json:"placement_id"`
	Status      BidStatus `json:"status"`
	Bid         *Bid      `json:"bid,omitempty"`
	Err         error     `json:"-"`
	ReceivedAt  time.Time `json:"received_at"`
}
