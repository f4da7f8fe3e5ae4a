package metrics

import (
	"time"
)

// Labels defines the labels that can be attached to the auction metrics.
type Labels struct {
	AuctionStatus AuctionStatus
}

// AdapterLabels defines the labels that can be attached to the adapter metrics.
type AdapterLabels struct {
	Adapter       string
	AdapterBids   AdapterBid
	AdapterErrors map[AdapterError]struct{}
}

// AuctionStatus : How an auction came to close
type AuctionStatus string

// AdapterBid : Whether or not the adapter returned bids
type AdapterBid string

// AdapterError : Errors which may have occurred during the adapter's execution
type AdapterError string

const (
	// AuctionStatusComplete means every bidder reported before the deadline.
	AuctionStatusComplete AuctionStatus = "complete"
	AuctionStatusTimeout  AuctionStatus = "timeout"
	// AuctionStatusAborted means the auction was closed by its owner before it was complete.
	AuctionStatusAborted AuctionStatus = "aborted"
	// AuctionStatusEmpty means no bidder was eligible, so no request went out.
	AuctionStatusEmpty AuctionStatus = "empty"
)

func AuctionStatuses() []AuctionStatus {
	return []AuctionStatus{
		AuctionStatusComplete,
		AuctionStatusTimeout,
		AuctionStatusAborted,
		AuctionStatusEmpty,
	}
}

// Adapter bid response status.
const (
	AdapterBidPresent AdapterBid = "bid"
	AdapterBidNone    AdapterBid = "nobid"
)

func AdapterBids() []AdapterBid {
	return []AdapterBid{
		AdapterBidPresent,
		AdapterBidNone,
	}
}

// Adapter execution status
const (
	AdapterErrorBadInput          AdapterError = "badinput"
	AdapterErrorBadServerResponse AdapterError = "badserverresponse"
	AdapterErrorTimeout           AdapterError = "timeout"
	AdapterErrorMalformedBid      AdapterError = "malformed_bid"
	AdapterErrorFailedToRequest   AdapterError = "failedtorequestbid"
	AdapterErrorUnknown           AdapterError = "unknown_error"
)

func AdapterErrors() []AdapterError {
	return []AdapterError{
		AdapterErrorBadInput,
		AdapterErrorBadServerResponse,
		AdapterErrorTimeout,
		AdapterErrorMalformedBid,
		AdapterErrorFailedToRequest,
		AdapterErrorUnknown,
	}
}

// MetricsEngine is a generic interface to record auction metrics into the desired backend.
//
// The auction functions fire once per closed auction. The adapter functions fire once per
// bidder per auction, except for RecordAdapterBidReceived and RecordAdapterPrice which fire
// once per bid.
type MetricsEngine interface {
	RecordConnectionAccept(success bool)
	RecordConnectionClose(success bool)
	RecordAuction(labels Labels)
	RecordPlacements(labels Labels, numPlacements int)
	RecordAuctionTime(labels Labels, length time.Duration)
	RecordAdapterRequest(labels AdapterLabels)
	RecordAdapterBidReceived(labels AdapterLabels, hasAdm bool)
	RecordAdapterPrice(labels AdapterLabels, cpm float64)
	RecordAdapterTime(labels AdapterLabels, length time.Duration)
	RecordAdapterPanic(labels AdapterLabels)
	// RecordLateResponse counts completions which arrived after their auction closed.
	RecordLateResponse(labels AdapterLabels)
	// RecordLiveAuctions reports how many auctions the manager is holding on to.
	RecordLiveAuctions(count int)
}
