package auction

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/golang/glog"

	"github.com/prebid/prebid-auction/adapters"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/metrics"
	"github.com/prebid/prebid-auction/pbs"
)

// plan validates every (placement, bidder) pairing and builds one request per eligible bidder.
// Bidders keep the order in which they first appear across the placements, and their settings are
// snapshotted here so that registry changes can't affect a running auction.
//
// Must be called with a.mu held.
func (a *Auction) plan() []error {
	var warnings []error
	seenPlacements := make(map[string]struct{}, len(a.placements))
	kept := a.placements[:0]

	for _, placement := range a.placements {
		if placement.ID == "" {
			warnings = append(warnings, &errortypes.ValidationError{Message: "placement is missing an id"})
			continue
		}
		if _, dup := seenPlacements[placement.ID]; dup {
			warnings = append(warnings, &errortypes.ValidationError{Message: fmt.Sprintf("placement %s is listed more than once", placement.ID)})
			continue
		}
		seenPlacements[placement.ID] = struct{}{}
		kept = append(kept, placement)

		eligible := 0
		seenBidders := make(map[string]struct{}, len(placement.Bids))
		for _, pb := range placement.Bids {
			if _, dup := seenBidders[pb.Bidder]; dup {
				warnings = append(warnings, &errortypes.ValidationError{Message: fmt.Sprintf("bidder %s is listed more than once on placement %s", pb.Bidder, placement.ID)})
				continue
			}
			seenBidders[pb.Bidder] = struct{}{}

			b, ok := a.byBidder[pb.Bidder]
			if !ok {
				adapter, settings, registered := a.deps.Registry.Lookup(pb.Bidder)
				if !registered {
					warnings = append(warnings, &errortypes.ValidationError{Message: fmt.Sprintf("bidder %s is not registered, skipping it on placement %s", pb.Bidder, placement.ID)})
					continue
				}
				b = &bidderState{
					request: &pbs.BidderRequest{
						RequestID:     newID(),
						AuctionID:     a.id,
						Bidder:        pb.Bidder,
						TimeoutMillis: uint64(a.timeout.Milliseconds()),
						Start:         a.startTime,
					},
					adapter:  adapter,
					settings: settings,
					pending:  make(map[string]struct{}),
					errs:     make(map[metrics.AdapterError]struct{}),
				}
			}
			if err := b.settings.ValidateParams(pb.Params); err != nil {
				warnings = append(warnings, &errortypes.ValidationError{Message: fmt.Sprintf("bidder %s skipped on placement %s: %v", pb.Bidder, placement.ID, err)})
				continue
			}
			if !ok {
				a.byBidder[pb.Bidder] = b
				a.bidders = append(a.bidders, b)
			}
			b.request.Placements = append(b.request.Placements, pbs.PlacementRequest{
				PlacementID: placement.ID,
				Sizes:       placement.Sizes,
				Params:      pb.Params,
			})
			b.pending[placement.ID] = struct{}{}
			eligible++
		}
		if eligible == 0 {
			warnings = append(warnings, &errortypes.ValidationError{Message: fmt.Sprintf("placement %s has no eligible bidder", placement.ID)})
		}
	}
	a.placements = kept
	a.outstanding = len(a.bidders)
	return warnings
}

// dispatch hands the request to the bidder's adapter. A panicking adapter fails every placement it
// was asked about instead of taking the process down.
func (a *Auction) dispatch(ctx context.Context, b *bidderState) {
	bidder := b.request.Bidder
	respond := a.responder(bidder)
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("Auction %s recovered panic from bidder %s: %v. Stack trace is: %v", a.id, bidder, r, string(debug.Stack()))
			a.deps.Metrics.RecordAdapterPanic(metrics.AdapterLabels{Adapter: bidder})
			respond(pbs.FailedResponses(b.request, &errortypes.FailedToRequestBids{
				Message: fmt.Sprintf("bidder %s panicked: %v", bidder, r),
			})...)
		}
	}()
	b.adapter.Dispatch(ctx, b.request, respond)
}

// responder builds the callback handed to a bidder's adapter. Completions are queued on the event
// loop, or recorded as late once the loop stopped accepting them.
func (a *Auction) responder(bidder string) adapters.ResponseFunc {
	return func(responses ...pbs.BidResponse) {
		c := completion{
			bidder:    bidder,
			responses: append([]pbs.BidResponse(nil), responses...),
		}
		select {
		case <-a.stopped:
			a.recordLate(c)
			return
		default:
		}
		select {
		case a.completions <- c:
		case <-a.stopped:
			a.recordLate(c)
		}
	}
}
