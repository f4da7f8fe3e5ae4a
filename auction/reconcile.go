package auction

import (
	"time"

	"github.com/prebid/prebid-auction/metrics"
	"github.com/prebid/prebid-auction/pbs"
	"github.com/prebid/prebid-auction/targeting"
)

// reconcile settles every placement and resolves its targeting, in placement order.
//
// Must be called with a.mu held.
func (a *Auction) reconcile() []pbs.TargetingEntry {
	entries := make([]pbs.TargetingEntry, 0, len(a.placements))
	for _, p := range a.placements {
		entries = append(entries, a.deps.Resolver.Resolve(a.settle(p.ID)))
	}
	return entries
}

// settle picks the winner of one placement. Bids are scored by their bidder's price rule, in arrival
// order, and only a strictly better score takes the lead, so ties go to the bid which arrived first.
//
// Bidders with alwaysUseBid set keep their best losing bid, so that their keys still reach the ad server.
func (a *Auction) settle(placementID string) targeting.Placement {
	settled := targeting.Placement{PlacementID: placementID}

	type candidate struct {
		bid   targeting.SettledBid
		score float64
	}
	var candidates []candidate
	winner := -1

	for _, r := range a.received {
		if r.Status != pbs.BidStatusBid || r.PlacementID != placementID || !r.Bid.HasUsablePrice() {
			continue
		}
		settings := a.byBidder[r.Bidder].settings
		candidates = append(candidates, candidate{
			bid:   targeting.SettledBid{Bid: r.Bid, Settings: settings},
			score: settings.Score(r.Bid),
		})
		if last := len(candidates) - 1; winner < 0 || candidates[last].score > candidates[winner].score {
			winner = last
		}
	}
	if winner < 0 {
		return settled
	}
	settled.Winner = &candidates[winner].bid
	winnerBidder := settled.Winner.Bid.Bidder

	chosen := make(map[string]int)
	var scores []float64
	for _, c := range candidates {
		bidder := c.bid.Bid.Bidder
		if !c.bid.Settings.AlwaysUseBid || bidder == winnerBidder {
			continue
		}
		if i, ok := chosen[bidder]; ok {
			if c.score > scores[i] {
				settled.AlwaysUse[i] = c.bid
				scores[i] = c.score
			}
			continue
		}
		chosen[bidder] = len(settled.AlwaysUse)
		settled.AlwaysUse = append(settled.AlwaysUse, c.bid)
		scores = append(scores, c.score)
	}
	return settled
}

type adapterReport struct {
	labels  metrics.AdapterLabels
	latency time.Duration
	bids    []*pbs.Bid
}

// adapterReports summarizes each bidder's part in the auction for the metrics engine.
//
// Must be called with a.mu held.
func (a *Auction) adapterReports(now time.Time) []adapterReport {
	reports := make([]adapterReport, 0, len(a.bidders))
	for _, b := range a.bidders {
		bidder := b.request.Bidder
		report := adapterReport{
			labels: metrics.AdapterLabels{
				Adapter:       bidder,
				AdapterBids:   metrics.AdapterBidNone,
				AdapterErrors: make(map[metrics.AdapterError]struct{}, len(b.errs)),
			},
			latency: now.Sub(a.startTime),
		}
		if b.reported {
			report.latency = b.reportedAt.Sub(a.startTime)
		}
		for e := range b.errs {
			report.labels.AdapterErrors[e] = struct{}{}
		}
		for _, r := range a.received {
			if r.Bidder == bidder && r.Status == pbs.BidStatusBid {
				report.labels.AdapterBids = metrics.AdapterBidPresent
				report.bids = append(report.bids, r.Bid)
			}
		}
		reports = append(reports, report)
	}
	return reports
}

func (a *Auction) recordMetrics(reason CloseReason, placements int, elapsed time.Duration, reports []adapterReport) {
	labels := metrics.Labels{AuctionStatus: reason.metricsStatus()}
	a.deps.Metrics.RecordAuction(labels)
	a.deps.Metrics.RecordPlacements(labels, placements)
	a.deps.Metrics.RecordAuctionTime(labels, elapsed)

	for _, report := range reports {
		a.deps.Metrics.RecordAdapterRequest(report.labels)
		a.deps.Metrics.RecordAdapterTime(report.labels, report.latency)
		for _, bid := range report.bids {
			a.deps.Metrics.RecordAdapterBidReceived(report.labels, bid.Adm != "")
			a.deps.Metrics.RecordAdapterPrice(report.labels, bid.Price)
		}
	}
}
