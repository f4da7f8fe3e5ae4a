// Package targeting turns the outcome of a closed auction into the key-values sent to the ad server.
//
// Removing one of the standard keys, or changing the semantics of what is stored there, will break the
// line item setups of every publisher relying on them.
package targeting

import (
	"github.com/golang/glog"
	"github.com/prebid/prebid-auction/adapters"
	"github.com/prebid/prebid-auction/pbs"
)

type TargetingKey string

const (
	HbpbKey     TargetingKey = "hb_pb"
	HbSizeKey   TargetingKey = "hb_size"
	HbAdIDKey   TargetingKey = "hb_adid"
	HbBidderKey TargetingKey = "hb_bidder"
	HbDealKey   TargetingKey = "hb_deal"
)

// Truncate shortens key for ad servers which limit key length. A maxLength of 0 means no limit.
func Truncate(key string, maxLength int) string {
	if maxLength > 0 && len(key) > maxLength {
		return key[:maxLength]
	}
	return key
}

// SettledBid is a bid along with the settings its bidder had when the auction dispatched to it.
type SettledBid struct {
	Bid      *pbs.Bid
	Settings adapters.Settings
}

// Placement is what reconciliation decided for one placement.
type Placement struct {
	PlacementID string
	// Winner is nil if no bid had a usable price.
	Winner *SettledBid
	// AlwaysUse holds the losing bids of alwaysUseBid bidders, at most one per bidder, in arrival order.
	AlwaysUse []SettledBid
}

type Resolver struct {
	granularity  pbs.PriceGranularity
	maxKeyLength int
}

func NewResolver(granularity pbs.PriceGranularity, maxKeyLength int) *Resolver {
	if !granularity.Valid() {
		glog.Warningf("Unknown price granularity %q, falling back to %s", granularity, pbs.PriceGranularityMed)
		granularity = pbs.PriceGranularityMed
	}
	return &Resolver{
		granularity:  granularity,
		maxKeyLength: maxKeyLength,
	}
}

// Resolve builds the targeting entry for one placement.
//
// The winner's standard keys come first, then its bidder's own keys, which replace any standard key
// of the same name. Losing alwaysUseBid bids add their bidder's keys last but never overwrite anything.
func (r *Resolver) Resolve(placement Placement) pbs.TargetingEntry {
	entry := pbs.TargetingEntry{
		PlacementID: placement.PlacementID,
		Outcome:     pbs.TargetingOutcomeNoBids,
		Keys:        pbs.KeyValues{},
	}
	if placement.Winner == nil {
		return entry
	}

	winner := placement.Winner
	entry.Outcome = pbs.TargetingOutcomeWinner
	entry.BidID = winner.Bid.ID
	entry.Bidder = winner.Bid.Bidder

	r.addStandardKeys(&entry.Keys, winner)
	for _, rule := range winner.Settings.TargetingKeys {
		if value := rule.Extract(winner.Bid); value != "" {
			entry.Keys.Set(r.key(rule.Key()), value)
		}
	}

	for _, settled := range placement.AlwaysUse {
		for _, rule := range settled.Settings.TargetingKeys {
			if value := rule.Extract(settled.Bid); value != "" {
				entry.Keys.SetIfAbsent(r.key(rule.Key()), value)
			}
		}
	}
	return entry
}

func (r *Resolver) addStandardKeys(keys *pbs.KeyValues, winner *SettledBid) {
	bid := winner.Bid
	// An alwaysUseBid price is a placeholder. Its real value travels in the bidder's own keys.
	if !winner.Settings.AlwaysUseBid {
		keys.Set(r.key(string(HbpbKey)), r.priceBucket(bid))
	}
	if size := bid.Size(); size != "" {
		keys.Set(r.key(string(HbSizeKey)), size)
	}
	keys.Set(r.key(string(HbAdIDKey)), bid.ID)
	keys.Set(r.key(string(HbBidderKey)), bid.Bidder)
	if bid.DealID != "" {
		keys.Set(r.key(string(HbDealKey)), bid.DealID)
	}
}

func (r *Resolver) priceBucket(bid *pbs.Bid) string {
	bucket, err := pbs.GetPriceBucket(bid.Price, r.granularity)
	if err != nil {
		glog.Warningf("Price bucket for bid %s: %v", bid.ID, err)
		return "0.00"
	}
	return bucket
}

func (r *Resolver) key(key string) string {
	return Truncate(key, r.maxKeyLength)
}
