package auction

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"

	"github.com/prebid/prebid-auction/analytics"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/metrics"
	"github.com/prebid/prebid-auction/pbs"
)

// loop is the only writer while the auction runs. Completions, the deadline and Close all race in
// the same select, so every completion is applied in the order the loop accepted it.
func (a *Auction) loop(timer *clock.Timer) {
	reason := CloseReasonComplete
wait:
	for a.outstanding > 0 {
		select {
		case c := <-a.completions:
			a.ingest(c)
		case <-timer.C:
			reason = CloseReasonTimeout
			break wait
		case <-a.closeCh:
			reason = CloseReasonAborted
			break wait
		}
	}
	timer.Stop()
	close(a.stopped)
	a.finish(reason)
}

func (a *Auction) ingest(c completion) {
	now := a.deps.Clock.Now()
	var accepted []pbs.ReceivedBid
	var rejected []*analytics.AuctionErrorObject

	a.mu.Lock()
	b, ok := a.byBidder[c.bidder]
	if !ok {
		a.mu.Unlock()
		glog.Errorf("Auction %s got a completion from %s, which was never dispatched to", a.id, c.bidder)
		return
	}

	add := func(r pbs.ReceivedBid) {
		r.Seq = len(a.received)
		r.Bidder = c.bidder
		r.ReceivedAt = now
		a.received = append(a.received, r)
		accepted = append(accepted, r)
	}
	reject := func(placementID string, err error) {
		b.errs[metrics.AdapterErrorMalformedBid] = struct{}{}
		rejected = append(rejected, &analytics.AuctionErrorObject{
			AuctionID:   a.id,
			Bidder:      c.bidder,
			PlacementID: placementID,
			Err:         err,
			Time:        now,
		})
	}

	for _, resp := range c.responses {
		placementID := resp.PlacementID
		if placementID == "" && resp.Bid != nil {
			placementID = resp.Bid.PlacementID
		}
		if !b.request.HasPlacement(placementID) {
			reject(placementID, &errortypes.MalformedBid{Message: fmt.Sprintf("bidder %s answered for placement %q, which it was not asked about", c.bidder, placementID)})
			continue
		}
		_, pending := b.pending[placementID]

		switch {
		case resp.Bid != nil:
			delete(b.pending, placementID)
			bid, err := a.acceptBid(c.bidder, placementID, resp.Bid)
			if err != nil {
				reject(placementID, err)
				continue
			}
			add(pbs.ReceivedBid{PlacementID: placementID, Status: pbs.BidStatusBid, Bid: bid})
		case !pending:
			// A placement gets at most one non-bid outcome, and none once it has a bid.
			glog.V(2).Infof("Auction %s: ignoring extra outcome from %s for placement %s", a.id, c.bidder, placementID)
		case resp.Err != nil:
			delete(b.pending, placementID)
			b.errs[adapterError(resp.Err)] = struct{}{}
			add(pbs.ReceivedBid{PlacementID: placementID, Status: pbs.BidStatusFailed, Err: resp.Err})
		default:
			delete(b.pending, placementID)
			add(pbs.ReceivedBid{PlacementID: placementID, Status: pbs.BidStatusNoBid})
		}
	}

	// An empty completion means the bidder is done with everything it didn't answer yet.
	if len(c.responses) == 0 {
		for _, placementID := range b.request.PlacementIDs() {
			if _, pending := b.pending[placementID]; pending {
				delete(b.pending, placementID)
				add(pbs.ReceivedBid{PlacementID: placementID, Status: pbs.BidStatusNoBid})
			}
		}
	}

	if !b.reported && len(b.pending) == 0 {
		b.reported = true
		b.reportedAt = now
		a.outstanding--
	}
	requestID := b.request.RequestID
	start := a.startTime
	a.mu.Unlock()

	for _, r := range accepted {
		a.deps.Analytics.LogBidReceived(&analytics.BidReceivedObject{
			AuctionID: a.id,
			RequestID: requestID,
			Received:  r,
			Latency:   now.Sub(start),
		})
	}
	for _, obj := range rejected {
		if errortypes.IsWarning(obj.Err) {
			glog.V(2).Infof("Auction %s: %v", a.id, obj.Err)
		} else {
			glog.Warningf("Auction %s: %v", a.id, obj.Err)
		}
		a.deps.Analytics.LogAuctionError(obj)
	}
}

// acceptBid checks a bid and stores its id. The returned bid is the auction's own copy.
//
// Must be called with a.mu held.
func (a *Auction) acceptBid(bidder, placementID string, in *pbs.Bid) (*pbs.Bid, error) {
	bid := cloneBid(in)
	bid.Bidder = bidder
	if bid.PlacementID == "" {
		bid.PlacementID = placementID
	} else if bid.PlacementID != placementID {
		return nil, &errortypes.MalformedBid{Message: fmt.Sprintf("bid %q from %s names placement %s but was reported for %s", bid.ID, bidder, bid.PlacementID, placementID)}
	}
	if err := bid.Validate(); err != nil {
		return nil, err
	}
	if bid.ID == "" {
		bid.ID = newID()
	} else if _, dup := a.bidIDs[bid.ID]; dup {
		return nil, &errortypes.MalformedBid{Message: fmt.Sprintf("bid id %q from %s was already used in this auction", bid.ID, bidder)}
	}
	a.bidIDs[bid.ID] = struct{}{}
	return bid, nil
}

func cloneBid(in *pbs.Bid) *pbs.Bid {
	bid := *in
	if in.Meta != nil {
		bid.Meta = make(map[string]string, len(in.Meta))
		for k, v := range in.Meta {
			bid.Meta[k] = v
		}
	}
	return &bid
}

func (a *Auction) recordLate(c completion) {
	now := a.deps.Clock.Now()
	a.mu.Lock()
	a.late = append(a.late, LateResponse{
		Bidder:     c.bidder,
		Responses:  c.responses,
		ReceivedAt: now,
	})
	a.mu.Unlock()

	err := &errortypes.LateResponse{Message: fmt.Sprintf("bidder %s answered after auction %s closed", c.bidder, a.id)}
	glog.V(2).Info(err.Message)
	a.deps.Metrics.RecordLateResponse(metrics.AdapterLabels{Adapter: c.bidder})
	a.deps.Analytics.LogAuctionError(&analytics.AuctionErrorObject{
		AuctionID: a.id,
		Bidder:    c.bidder,
		Err:       err,
		Time:      now,
	})
}

// expirePending turns every answer still owed into a timeout outcome.
//
// Must be called with a.mu held.
func (a *Auction) expirePending(now time.Time) []*analytics.BidderTimeoutObject {
	var timeouts []*analytics.BidderTimeoutObject
	for _, b := range a.bidders {
		if len(b.pending) == 0 {
			continue
		}
		bidder := b.request.Bidder
		err := &errortypes.BidderTimeout{Message: fmt.Sprintf("bidder %s did not answer within %s", bidder, a.timeout)}
		var placementIDs []string
		for _, placementID := range b.request.PlacementIDs() {
			if _, pending := b.pending[placementID]; !pending {
				continue
			}
			delete(b.pending, placementID)
			placementIDs = append(placementIDs, placementID)
			a.received = append(a.received, pbs.ReceivedBid{
				Seq:         len(a.received),
				Bidder:      bidder,
				PlacementID: placementID,
				Status:      pbs.BidStatusTimeout,
				Err:         err,
				ReceivedAt:  now,
			})
		}
		b.errs[metrics.AdapterErrorTimeout] = struct{}{}
		a.timedOut = append(a.timedOut, bidder)
		timeouts = append(timeouts, &analytics.BidderTimeoutObject{
			AuctionID:    a.id,
			RequestID:    b.request.RequestID,
			Bidder:       bidder,
			PlacementIDs: placementIDs,
			Timeout:      a.timeout,
			Err:          err,
		})
	}
	return timeouts
}

// finish takes the auction through Closing to Closed. It runs exactly once per auction.
func (a *Auction) finish(reason CloseReason) {
	now := a.deps.Clock.Now()

	a.mu.Lock()
	a.state = StateClosing
	a.reason = reason
	timeouts := a.expirePending(now)
	a.targeting = a.reconcile()
	a.endTime = now
	a.state = StateClosed
	cancel := a.cancel
	closed := &analytics.AuctionClosedObject{
		AuctionID:       a.id,
		Reason:          string(reason),
		StartTime:       a.startTime,
		ClosedAt:        now,
		BidsReceived:    a.countBids(),
		TimedOutBidders: append([]string(nil), a.timedOut...),
		Targeting:       a.targeting,
	}
	var won []*analytics.BidWonObject
	for _, entry := range a.targeting {
		if !entry.HasWinner() {
			continue
		}
		if bid, ok := a.findBid(entry.BidID); ok {
			won = append(won, &analytics.BidWonObject{
				AuctionID:   a.id,
				PlacementID: entry.PlacementID,
				Bid:         bid,
				Keys:        entry.Keys,
				WonAt:       now,
			})
		}
	}
	reports := a.adapterReports(now)
	placements := len(a.placements)
	start := a.startTime
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	for _, t := range timeouts {
		glog.V(2).Infof("Auction %s: %v", a.id, t.Err)
		a.deps.Analytics.LogBidderTimeout(t)
	}
	// An auction closed before it ran has no start time.
	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = now.Sub(start)
	}
	a.recordMetrics(reason, placements, elapsed, reports)
	for _, w := range won {
		a.deps.Analytics.LogBidWon(w)
	}
	a.deps.Analytics.LogAuctionClosed(closed)
	glog.V(2).Infof("Auction %s closed (%s) with %d bids", a.id, reason, closed.BidsReceived)

	close(a.done)
}

func (a *Auction) countBids() int {
	count := 0
	for _, r := range a.received {
		if r.Status == pbs.BidStatusBid {
			count++
		}
	}
	return count
}

// adapterError maps an adapter failure onto its metrics label.
func adapterError(err error) metrics.AdapterError {
	switch err.(type) {
	case *errortypes.BadInput, *errortypes.ValidationError:
		return metrics.AdapterErrorBadInput
	case *errortypes.BadServerResponse:
		return metrics.AdapterErrorBadServerResponse
	case *errortypes.BidderTimeout:
		return metrics.AdapterErrorTimeout
	case *errortypes.MalformedBid:
		return metrics.AdapterErrorMalformedBid
	case *errortypes.FailedToRequestBids:
		return metrics.AdapterErrorFailedToRequest
	}
	return metrics.AdapterErrorUnknown
}
