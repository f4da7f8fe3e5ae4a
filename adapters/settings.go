package adapters

import (
	"encoding/json"

	"github.com/prebid/prebid-auction/pbs"
)

// Settings are the per-bidder rules applied to that bidder's requests and responses.
//
// An auction takes a copy of the Settings for each bidder when it dispatches the request, so
// changing the registry later never changes the rules of an auction which is already running.
type Settings struct {
	// AlwaysUseBid sends this bidder's keys to the ad server even when its bid doesn't win the
	// price comparison. It is meant for bidders whose real price is obfuscated client side and
	// can only be resolved by the ad server. The winning keys of such a bidder never carry a
	// literal price bucket.
	AlwaysUseBid bool
	// TargetingKeys are appended after the standard keys, in order. A key which collides with a
	// standard key replaces it.
	TargetingKeys []TargetingKeyRule
	// PriceRule scores bids from this bidder for the winner comparison. Nil means HighestPrice.
	PriceRule PriceRule
	// Params validates the bidder params on each placement. Nil accepts anything.
	Params ParamsValidator
}

// Clone returns a copy which shares nothing mutable with s.
func (s Settings) Clone() Settings {
	clone := s
	if s.TargetingKeys != nil {
		clone.TargetingKeys = make([]TargetingKeyRule, len(s.TargetingKeys))
		copy(clone.TargetingKeys, s.TargetingKeys)
	}
	return clone
}

// Score returns the value used to compare this bid against the others on its placement.
func (s Settings) Score(bid *pbs.Bid) float64 {
	if s.PriceRule == nil {
		return HighestPrice{}.Score(bid)
	}
	return s.PriceRule.Score(bid)
}

// ValidateParams checks a placement's params for this bidder.
func (s Settings) ValidateParams(params json.RawMessage) error {
	if s.Params == nil {
		return nil
	}
	return s.Params.Validate(params)
}

// TargetingKeyRule derives one ad server key from the winning bid.
//
// Extract must be a pure function of the bid. An empty result means the key is left out.
type TargetingKeyRule interface {
	Key() string
	Extract(bid *pbs.Bid) string
}

// MetaKey sets TargetingKey to the value stored under Field in the bid's Meta.
type MetaKey struct {
	TargetingKey string
	Field        string
}

func (r MetaKey) Key() string {
	return r.TargetingKey
}

func (r MetaKey) Extract(bid *pbs.Bid) string {
	return bid.Meta[r.Field]
}

// BidIDKey sets TargetingKey to the bid ID.
type BidIDKey struct {
	TargetingKey string
}

func (r BidIDKey) Key() string {
	return r.TargetingKey
}

func (r BidIDKey) Extract(bid *pbs.Bid) string {
	return bid.ID
}

// KeyFunc adapts an arbitrary extractor into a TargetingKeyRule.
type KeyFunc struct {
	Name      string
	Extractor func(bid *pbs.Bid) string
}

func (r KeyFunc) Key() string {
	return r.Name
}

func (r KeyFunc) Extract(bid *pbs.Bid) string {
	return r.Extractor(bid)
}

// PriceRule scores a bid. The highest score on a placement wins.
type PriceRule interface {
	Score(bid *pbs.Bid) float64
}

// HighestPrice scores a bid by its price.
type HighestPrice struct{}

func (HighestPrice) Score(bid *pbs.Bid) float64 {
	return bid.Price
}

// AdjustedPrice scores a bid by its price times Factor. Hosts use this to correct for bidders who
// consistently over or under report.
type AdjustedPrice struct {
	Factor float64
}

func (r AdjustedPrice) Score(bid *pbs.Bid) float64 {
	return bid.Price * r.Factor
}
