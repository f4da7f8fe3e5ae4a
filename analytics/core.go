package analytics

import (
	"time"

	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/pbs"
)

// Module is the observer contract for auction lifecycle events.
// Implementations must not block: they are called from the auction event loop.
type Module interface {
	LogRequestIssued(*RequestIssuedObject)
	LogBidReceived(*BidReceivedObject)
	LogBidderTimeout(*BidderTimeoutObject)
	LogAuctionClosed(*AuctionClosedObject)
	LogBidWon(*BidWonObject)
	LogAuctionError(*AuctionErrorObject)
	Shutdown()
}

// Loggable object of a bidder request as it is handed to the adapter
type RequestIssuedObject struct {
	AuctionID string
	Request   *pbs.BidderRequest
	IssuedAt  time.Time
}

// Loggable object of one accepted outcome (bid, nobid or failure)
type BidReceivedObject struct {
	AuctionID string
	RequestID string
	Received  pbs.ReceivedBid
	Latency   time.Duration
}

// Loggable object of a bidder that missed the auction deadline
type BidderTimeoutObject struct {
	AuctionID    string
	RequestID    string
	Bidder       string
	PlacementIDs []string
	Timeout      time.Duration
	Err          error
}

// Loggable object of a closed auction
type AuctionClosedObject struct {
	AuctionID       string
	Reason          string
	StartTime       time.Time
	ClosedAt        time.Time
	BidsReceived    int
	TimedOutBidders []string
	Targeting       []pbs.TargetingEntry
}

// Loggable object of the bid which won a placement, one per winning targeting entry
type BidWonObject struct {
	AuctionID   string
	PlacementID string
	Bid         *pbs.Bid
	Keys        pbs.KeyValues
	WonAt       time.Time
}

// Loggable object of a rejected input, malformed bid or late response
type AuctionErrorObject struct {
	AuctionID   string
	Bidder      string
	PlacementID string
	Err         error
	Time        time.Time
}

// Code returns the errortypes code of the wrapped error.
func (o *AuctionErrorObject) Code() int {
	return errortypes.ReadCode(o.Err)
}
