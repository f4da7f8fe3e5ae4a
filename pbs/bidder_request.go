package pbs

import (
	"encoding/json"
	"time"

	"github.com/mxmCherry/openrtb"
)

// BidderRequest records one dispatch to one bidder within an auction.
//
// It is created when the auction issues the request and is never mutated afterwards.
type BidderRequest struct {
	RequestID     string             `json:"request_id"`
	AuctionID     string             `json:"auction_id"`
	Bidder        string             `json:"bidder"`
	Placements    []PlacementRequest `json:"placements"`
	TimeoutMillis uint64             `json:"timeout_ms"`
	Start         time.Time          `json:"start"`
}

// PlacementRequest is the part of a Placement sent to a single bidder.
type PlacementRequest struct {
	PlacementID string           `json:"placement_id"`
	Sizes       []openrtb.Format `json:"sizes,omitempty"`
	Params      json.RawMessage  `json:"params,omitempty"`
}

// HasPlacement returns true if the placement was sent to this bidder.
func (r *BidderRequest) HasPlacement(placementID string) bool {
	for _, p := range r.Placements {
		if p.PlacementID == placementID {
			return true
		}
	}
	return false
}

// PlacementIDs returns the IDs of every placement in the request, in request order.
func (r *BidderRequest) PlacementIDs() []string {
	ids := make([]string, len(r.Placements))
	for i, p := range r.Placements {
		ids[i] = p.PlacementID
	}
	return ids
}
