// Package auction runs header bidding auctions: it fans a set of placements out to the registered
// bidders, collects their answers until everyone reported or the deadline passed, and settles one
// winner per placement.
package auction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gofrs/uuid"
	"github.com/golang/glog"

	"github.com/prebid/prebid-auction/adapters"
	"github.com/prebid/prebid-auction/analytics"
	analyticsBuild "github.com/prebid/prebid-auction/analytics/build"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/metrics"
	metricsConf "github.com/prebid/prebid-auction/metrics/config"
	"github.com/prebid/prebid-auction/pbs"
	"github.com/prebid/prebid-auction/targeting"
)

const defaultTimeout = 1000 * time.Millisecond

// Deps holds everything an auction needs from the outside world. Nil fields get working defaults.
type Deps struct {
	Registry  *adapters.Registry
	Resolver  *targeting.Resolver
	Metrics   metrics.MetricsEngine
	Analytics analytics.Module
	Clock     clock.Clock
	// DefaultTimeout is used by auctions run without a timeout.
	DefaultTimeout time.Duration
	// MaxTimeout caps the timeout of every auction. 0 means no cap.
	MaxTimeout time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Registry == nil {
		d.Registry = adapters.NewRegistry()
	}
	if d.Resolver == nil {
		d.Resolver = targeting.NewResolver(pbs.PriceGranularityMed, 0)
	}
	if d.Metrics == nil {
		d.Metrics = &metricsConf.DummyMetricsEngine{}
	}
	if d.Analytics == nil {
		d.Analytics = analyticsBuild.New(&config.Analytics{}, nil)
	}
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.DefaultTimeout <= 0 {
		d.DefaultTimeout = defaultTimeout
	}
	return d
}

func (d Deps) timeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		requested = d.DefaultTimeout
	}
	if d.MaxTimeout > 0 && requested > d.MaxTimeout {
		glog.V(2).Infof("Clamping auction timeout %s to %s", requested, d.MaxTimeout)
		requested = d.MaxTimeout
	}
	return requested
}

// LateResponse is a completion which arrived after its auction stopped accepting answers.
type LateResponse struct {
	Bidder     string
	Responses  []pbs.BidResponse
	ReceivedAt time.Time
}

type completion struct {
	bidder    string
	responses []pbs.BidResponse
}

type bidderState struct {
	request  *pbs.BidderRequest
	adapter  adapters.Adapter
	settings adapters.Settings
	// pending holds the placements this bidder owes an answer for.
	pending    map[string]struct{}
	reported   bool
	reportedAt time.Time
	errs       map[metrics.AdapterError]struct{}
}

// Auction is a single run over a set of placements. Create them through a Manager.
//
// Once Run is called, one goroutine owns every mutation until the auction closes; the accessors
// are safe to call from anywhere at any time.
type Auction struct {
	id   string
	deps Deps

	mu         sync.RWMutex
	state      State
	reason     CloseReason
	placements []pbs.Placement
	timeout    time.Duration
	startTime  time.Time
	endTime    time.Time
	bidders    []*bidderState
	byBidder   map[string]*bidderState
	// outstanding counts the bidders which have not reported yet.
	outstanding int
	received    []pbs.ReceivedBid
	bidIDs      map[string]struct{}
	timedOut    []string
	late        []LateResponse
	warnings    []error
	targeting   []pbs.TargetingEntry

	completions chan completion
	closeCh     chan struct{}
	closeOnce   sync.Once
	stopped     chan struct{}
	done        chan struct{}
	cancel      context.CancelFunc
}

func newAuction(id string, deps Deps) *Auction {
	return &Auction{
		id:          id,
		deps:        deps,
		state:       StateCreated,
		byBidder:    make(map[string]*bidderState),
		bidIDs:      make(map[string]struct{}),
		completions: make(chan completion),
		closeCh:     make(chan struct{}),
		stopped:     make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func newID() string {
	id, err := uuid.NewV4()
	if err != nil {
		glog.Warningf("Failed to generate a random id, retrying: %v", err)
		id = uuid.Must(uuid.NewV4())
	}
	return id.String()
}

// Run dispatches the placements to every eligible bidder and returns without waiting for answers.
//
// A timeout of 0 uses the default. Pairings which fail validation are skipped and reported through
// Warnings; they never fail the auction. Run may only be called once.
func (a *Auction) Run(placements []pbs.Placement, timeout time.Duration) error {
	a.mu.Lock()
	if a.state != StateCreated {
		state := a.state
		a.mu.Unlock()
		return &errortypes.AuctionStateError{Message: fmt.Sprintf("auction %s cannot run: it is already %s", a.id, state)}
	}
	a.state = StateRunning
	a.timeout = a.deps.timeout(timeout)
	a.startTime = a.deps.Clock.Now()
	a.placements = make([]pbs.Placement, 0, len(placements))
	for _, p := range placements {
		a.placements = append(a.placements, p.Clone())
	}
	a.warnings = a.plan()
	warnings := a.warnings
	bidders := a.bidders
	a.mu.Unlock()

	for _, warning := range warnings {
		glog.V(2).Infof("Auction %s: %v", a.id, warning)
		a.deps.Analytics.LogAuctionError(&analytics.AuctionErrorObject{
			AuctionID: a.id,
			Err:       warning,
			Time:      a.startTime,
		})
	}

	if len(bidders) == 0 {
		glog.V(2).Infof("Auction %s has no eligible bidder, closing it right away", a.id)
		a.finish(CloseReasonEmpty)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	// The deadline is shared by every bidder and starts before the first request goes out.
	timer := a.deps.Clock.Timer(a.timeout)
	go a.loop(timer)

	for _, b := range bidders {
		a.deps.Analytics.LogRequestIssued(&analytics.RequestIssuedObject{
			AuctionID: a.id,
			Request:   b.request,
			IssuedAt:  a.deps.Clock.Now(),
		})
		go a.dispatch(ctx, b)
	}
	return nil
}

// Close forces the auction to close. A running auction closes as if its deadline had passed, and
// Close waits until it has. An auction which never ran closes with no outcomes. Closing a closed
// auction does nothing.
func (a *Auction) Close() {
	a.mu.Lock()
	switch a.state {
	case StateCreated:
		a.state = StateClosing
		a.mu.Unlock()
		a.finish(CloseReasonEmpty)
		return
	case StateRunning:
		a.mu.Unlock()
		a.closeOnce.Do(func() { close(a.closeCh) })
		<-a.done
		return
	}
	a.mu.Unlock()
}

// Wait blocks until the auction is closed or ctx is done.
func (a *Auction) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the auction is closed and its targeting is final.
func (a *Auction) Done() <-chan struct{} {
	return a.done
}

func (a *Auction) ID() string {
	return a.id
}

func (a *Auction) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// CloseReason returns why the auction closed, or "" while it is still open.
func (a *Auction) CloseReason() CloseReason {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.reason
}

// Timeout returns the deadline the auction runs with, after defaults and clamping.
func (a *Auction) Timeout() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.timeout
}

func (a *Auction) StartTime() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.startTime
}

// EndTime is zero until the auction is closed.
func (a *Auction) EndTime() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.endTime
}

func (a *Auction) Placements() []pbs.Placement {
	a.mu.RLock()
	defer a.mu.RUnlock()
	placements := make([]pbs.Placement, len(a.placements))
	for i, p := range a.placements {
		placements[i] = p.Clone()
	}
	return placements
}

// BidderRequests returns the requests sent out, in dispatch order.
func (a *Auction) BidderRequests() []*pbs.BidderRequest {
	a.mu.RLock()
	defer a.mu.RUnlock()
	requests := make([]*pbs.BidderRequest, len(a.bidders))
	for i, b := range a.bidders {
		requests[i] = b.request
	}
	return requests
}

// BidderRequest returns the request sent to bidder, if any.
func (a *Auction) BidderRequest(bidder string) (*pbs.BidderRequest, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if b, ok := a.byBidder[bidder]; ok {
		return b.request, true
	}
	return nil, false
}

// HasBidder returns true if a request was sent to bidder.
func (a *Auction) HasBidder(bidder string) bool {
	_, ok := a.BidderRequest(bidder)
	return ok
}

// ReceivedBids returns every accepted outcome in arrival order, timeouts included.
func (a *Auction) ReceivedBids() []pbs.ReceivedBid {
	a.mu.RLock()
	defer a.mu.RUnlock()
	received := make([]pbs.ReceivedBid, len(a.received))
	copy(received, a.received)
	return received
}

// Bids returns the accepted bids in arrival order.
func (a *Auction) Bids() []*pbs.Bid {
	a.mu.RLock()
	defer a.mu.RUnlock()
	bids := make([]*pbs.Bid, 0, len(a.received))
	for _, r := range a.received {
		if r.Status == pbs.BidStatusBid {
			bids = append(bids, r.Bid)
		}
	}
	return bids
}

// Bid finds an accepted bid by its id.
func (a *Auction) Bid(bidID string) (*pbs.Bid, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.findBid(bidID)
}

// BidderRequestForBid returns the request which produced the bid with the given id.
func (a *Auction) BidderRequestForBid(bidID string) (*pbs.BidderRequest, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	bid, ok := a.findBid(bidID)
	if !ok {
		return nil, false
	}
	b, ok := a.byBidder[bid.Bidder]
	if !ok {
		return nil, false
	}
	return b.request, true
}

func (a *Auction) findBid(bidID string) (*pbs.Bid, bool) {
	if _, ok := a.bidIDs[bidID]; !ok {
		return nil, false
	}
	for _, r := range a.received {
		if r.Bid != nil && r.Bid.ID == bidID {
			return r.Bid, true
		}
	}
	return nil, false
}

// TimedOutBidders lists the bidders which still owed answers when the auction closed.
func (a *Auction) TimedOutBidders() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.timedOut...)
}

func (a *Auction) LateResponses() []LateResponse {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]LateResponse(nil), a.late...)
}

// Warnings returns the validation problems found when the auction was run.
func (a *Auction) Warnings() []error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]error(nil), a.warnings...)
}

// Targeting returns one entry per placement once the auction is closed. ok is false before that.
func (a *Auction) Targeting() (entries []pbs.TargetingEntry, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.state != StateClosed {
		return nil, false
	}
	entries = make([]pbs.TargetingEntry, len(a.targeting))
	for i, entry := range a.targeting {
		entry.Keys = append(pbs.KeyValues{}, entry.Keys...)
		entries[i] = entry
	}
	return entries, true
}
