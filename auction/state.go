package auction

import (
	"github.com/prebid/prebid-auction/metrics"
)

// State is where an Auction is in its lifecycle. It only ever moves forward.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// MarshalText lets the state show up by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CloseReason records why an auction stopped waiting for bidders.
type CloseReason string

const (
	// CloseReasonComplete means every bidder reported before the deadline.
	CloseReasonComplete CloseReason = "complete"
	CloseReasonTimeout  CloseReason = "timeout"
	// CloseReasonAborted means Close was called before the auction was complete.
	CloseReasonAborted CloseReason = "aborted"
	// CloseReasonEmpty means no request went out, because no bidder was eligible or the auction never ran.
	CloseReasonEmpty CloseReason = "empty"
)

func (r CloseReason) metricsStatus() metrics.AuctionStatus {
	switch r {
	case CloseReasonTimeout:
		return metrics.AuctionStatusTimeout
	case CloseReasonAborted:
		return metrics.AuctionStatusAborted
	case CloseReasonEmpty:
		return metrics.AuctionStatusEmpty
	}
	return metrics.AuctionStatusComplete
}
