package pbs

import (
	"encoding/json"

	"github.com/mxmCherry/openrtb"
)

// Placement is one ad slot offered in an auction.
//
// Bids lists every bidder which may price the slot, along with that bidder's params. A bidder is
// eligible for a Placement only if it appears here.
type Placement struct {
	ID    string           `json:"id"`
	Sizes []openrtb.Format `json:"sizes,omitempty"`
	Bids  []PlacementBid   `json:"bids"`
}

// PlacementBid holds the bidder-specific params for one bidder on one Placement.
type PlacementBid struct {
	Bidder string          `json:"bidder"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Clone returns a deep copy, so that an auction can hold its placements immutable no matter what
// the caller does with the originals.
func (p Placement) Clone() Placement {
	clone := Placement{ID: p.ID}
	if p.Sizes != nil {
		clone.Sizes = make([]openrtb.Format, len(p.Sizes))
		copy(clone.Sizes, p.Sizes)
	}
	if p.Bids != nil {
		clone.Bids = make([]PlacementBid, len(p.Bids))
		for i, bid := range p.Bids {
			clone.Bids[i] = PlacementBid{
				Bidder: bid.Bidder,
				Params: cloneRaw(bid.Params),
			}
		}
	}
	return clone
}

// Bidders returns the bidders named on this placement, in the order they were declared.
func (p Placement) Bidders() []string {
	bidders := make([]string, 0, len(p.Bids))
	for _, bid := range p.Bids {
		bidders = append(bidders, bid.Bidder)
	}
	return bidders
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	clone := make(json.RawMessage, len(raw))
	copy(clone, raw)
	return clone
}
