package auction

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prebid/prebid-auction/adapters"
	"github.com/prebid/prebid-auction/adapters/amazon"
	"github.com/prebid/prebid-auction/analytics"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/pbs"
	"github.com/prebid/prebid-auction/targeting"
)

// recordingModule keeps every analytics event it is handed.
type recordingModule struct {
	mu       sync.Mutex
	issued   []*analytics.RequestIssuedObject
	received []*analytics.BidReceivedObject
	timeouts []*analytics.BidderTimeoutObject
	closed   []*analytics.AuctionClosedObject
	won      []*analytics.BidWonObject
	errs     []*analytics.AuctionErrorObject
}

func (m *recordingModule) LogRequestIssued(o *analytics.RequestIssuedObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued = append(m.issued, o)
}

func (m *recordingModule) LogBidReceived(o *analytics.BidReceivedObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, o)
}

func (m *recordingModule) LogBidderTimeout(o *analytics.BidderTimeoutObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = append(m.timeouts, o)
}

func (m *recordingModule) LogAuctionClosed(o *analytics.AuctionClosedObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, o)
}

func (m *recordingModule) LogBidWon(o *analytics.BidWonObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.won = append(m.won, o)
}

func (m *recordingModule) LogAuctionError(o *analytics.AuctionErrorObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, o)
}

func (m *recordingModule) Shutdown() {}

func (m *recordingModule) errors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	errs := make([]error, len(m.errs))
	for i, o := range m.errs {
		errs[i] = o.Err
	}
	return errs
}

func (m *recordingModule) closedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.closed)
}

func (m *recordingModule) bidsWon() []*analytics.BidWonObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*analytics.BidWonObject(nil), m.won...)
}

type testEnv struct {
	registry *adapters.Registry
	clock    *clock.Mock
	events   *recordingModule
	manager  *Manager
}

func newTestEnv() *testEnv {
	env := &testEnv{
		registry: adapters.NewRegistry(),
		clock:    clock.NewMock(),
		events:   &recordingModule{},
	}
	env.manager = NewManager(Deps{
		Registry:       env.registry,
		Resolver:       targeting.NewResolver(pbs.PriceGranularityMed, 0),
		Analytics:      env.events,
		Clock:          env.clock,
		DefaultTimeout: 1000 * time.Millisecond,
		MaxTimeout:     5000 * time.Millisecond,
	})
	return env
}

func (env *testEnv) register(t *testing.T, bidder string, adapter adapters.Adapter, settings adapters.Settings) {
	t.Helper()
	require.NoError(t, env.registry.Register(bidder, adapter, settings))
}

// bidOn answers every placement with a bid at the given price.
func bidOn(price float64) adapters.AdapterFunc {
	return func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		responses := make([]pbs.BidResponse, 0, len(req.Placements))
		for _, p := range req.Placements {
			responses = append(responses, pbs.NewBidResponse(&pbs.Bid{
				PlacementID: p.PlacementID,
				Price:       price,
				Width:       300,
				Height:      250,
				Adm:         "<div>" + req.Bidder + "</div>",
			}))
		}
		respond(responses...)
	}
}

func noBid() adapters.AdapterFunc {
	return func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		respond()
	}
}

func silent() adapters.AdapterFunc {
	return func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {}
}

func placement(id string, bidders ...string) pbs.Placement {
	p := pbs.Placement{ID: id}
	for _, bidder := range bidders {
		p.Bids = append(p.Bids, pbs.PlacementBid{Bidder: bidder})
	}
	return p
}

func waitClosed(t *testing.T, a *Auction) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Wait(ctx), "auction did not close")
}

func entryFor(t *testing.T, a *Auction, placementID string) pbs.TargetingEntry {
	t.Helper()
	entries, ok := a.Targeting()
	require.True(t, ok)
	for _, e := range entries {
		if e.PlacementID == placementID {
			return e
		}
	}
	require.Failf(t, "missing entry", "no targeting for %s", placementID)
	return pbs.TargetingEntry{}
}

func TestHighestBidWins(t *testing.T) {
	env := newTestEnv()
	env.register(t, "p1", bidOn(1.50), adapters.Settings{})
	env.register(t, "p2", bidOn(2.00), adapters.Settings{})

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1", "p2")}, 0))
	waitClosed(t, a)

	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, CloseReasonComplete, a.CloseReason())
	assert.Empty(t, a.TimedOutBidders())

	entry := entryFor(t, a, "slot-A")
	assert.Equal(t, pbs.TargetingOutcomeWinner, entry.Outcome)
	assert.Equal(t, "p2", entry.Bidder)
	pb, _ := entry.Keys.Get("hb_pb")
	assert.Equal(t, "2.00", pb)
	bidder, _ := entry.Keys.Get("hb_bidder")
	assert.Equal(t, "p2", bidder)
	size, _ := entry.Keys.Get("hb_size")
	assert.Equal(t, "300x250", size)
	adID, _ := entry.Keys.Get("hb_adid")
	assert.Equal(t, entry.BidID, adID)

	assert.Len(t, a.Bids(), 2)
	assert.Equal(t, 1, env.events.closedCount())

	won := env.events.bidsWon()
	require.Len(t, won, 1)
	assert.Equal(t, a.ID(), won[0].AuctionID)
	assert.Equal(t, "slot-A", won[0].PlacementID)
	assert.Equal(t, entry.BidID, won[0].Bid.ID)
	assert.Equal(t, "p2", won[0].Bid.Bidder)
	assert.Equal(t, 2.00, won[0].Bid.Price)
	assert.Equal(t, entry.Keys, won[0].Keys)
}

func TestSilentBidderTimesOut(t *testing.T) {
	env := newTestEnv()
	env.register(t, "p1", bidOn(1.00), adapters.Settings{})
	env.register(t, "p2", silent(), adapters.Settings{})

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1", "p2")}, 100*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, a.Timeout())

	require.Eventually(t, func() bool { return len(a.ReceivedBids()) == 1 }, time.Second, time.Millisecond)
	_, ok := a.Targeting()
	assert.False(t, ok, "targeting must not be ready before the deadline")

	env.clock.Add(100 * time.Millisecond)
	waitClosed(t, a)

	assert.Equal(t, CloseReasonTimeout, a.CloseReason())
	assert.Equal(t, []string{"p2"}, a.TimedOutBidders())
	entry := entryFor(t, a, "slot-A")
	assert.Equal(t, "p1", entry.Bidder)

	received := a.ReceivedBids()
	require.Len(t, received, 2)
	assert.Equal(t, pbs.BidStatusTimeout, received[1].Status)
	assert.IsType(t, &errortypes.BidderTimeout{}, received[1].Err)

	require.Len(t, env.events.timeouts, 1)
	assert.Equal(t, "p2", env.events.timeouts[0].Bidder)
	assert.Equal(t, []string{"slot-A"}, env.events.timeouts[0].PlacementIDs)
}

func TestTimeoutIsClamped(t *testing.T) {
	env := newTestEnv()
	a := env.manager.CreateAuction()
	require.NoError(t, a.Run(nil, time.Minute))
	assert.Equal(t, 5*time.Second, a.Timeout())

	b := env.manager.CreateAuction()
	require.NoError(t, b.Run(nil, 0))
	assert.Equal(t, time.Second, b.Timeout())
}

// orderedBidders makes "first" answer before "second" is allowed to.
func orderedBidders(price float64) (first, second adapters.AdapterFunc) {
	firstDone := make(chan struct{})
	first = func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		bidOn(price)(ctx, req, respond)
		close(firstDone)
	}
	second = func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		<-firstDone
		bidOn(price)(ctx, req, respond)
	}
	return first, second
}

func TestTiesGoToFirstArrival(t *testing.T) {
	for _, firstBidder := range []string{"p1", "p2"} {
		t.Run(firstBidder+" first", func(t *testing.T) {
			env := newTestEnv()
			first, second := orderedBidders(1.50)
			if firstBidder == "p1" {
				env.register(t, "p1", first, adapters.Settings{})
				env.register(t, "p2", second, adapters.Settings{})
			} else {
				env.register(t, "p1", second, adapters.Settings{})
				env.register(t, "p2", first, adapters.Settings{})
			}

			a := env.manager.CreateAuction()
			require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1", "p2")}, 0))
			waitClosed(t, a)

			assert.Equal(t, firstBidder, entryFor(t, a, "slot-A").Bidder)
			received := a.ReceivedBids()
			require.Len(t, received, 2)
			assert.Equal(t, firstBidder, received[0].Bidder)
			assert.Equal(t, 0, received[0].Seq)
			assert.Equal(t, 1, received[1].Seq)
		})
	}
}

func TestNoWinnerIsNotTheSameAsNotClosed(t *testing.T) {
	env := newTestEnv()
	hold := make(chan struct{})
	env.register(t, "p1", adapters.AdapterFunc(func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		<-hold
		respond(pbs.NoBidResponse("slot-A"))
	}), adapters.Settings{})

	a := env.manager.CreateAuction()
	_, ok := a.Targeting()
	assert.False(t, ok)

	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1")}, 0))
	_, ok = a.Targeting()
	assert.False(t, ok)

	close(hold)
	waitClosed(t, a)

	entries, ok := a.Targeting()
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, pbs.TargetingOutcomeNoBids, entries[0].Outcome)
	assert.False(t, entries[0].HasWinner())
	assert.Empty(t, entries[0].Keys)
	assert.Equal(t, pbs.BidStatusNoBid, a.ReceivedBids()[0].Status)
}

func TestEmptyCompletionCoversUnansweredPlacements(t *testing.T) {
	env := newTestEnv()
	env.register(t, "p1", adapters.AdapterFunc(func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		respond(pbs.NewBidResponse(&pbs.Bid{PlacementID: "slot-A", Price: 0.5}))
		respond()
	}), adapters.Settings{})

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1"), placement("slot-B", "p1")}, 0))
	waitClosed(t, a)

	assert.Equal(t, CloseReasonComplete, a.CloseReason())
	assert.True(t, entryFor(t, a, "slot-A").HasWinner())
	assert.False(t, entryFor(t, a, "slot-B").HasWinner())
	received := a.ReceivedBids()
	require.Len(t, received, 2)
	assert.Equal(t, pbs.BidStatusNoBid, received[1].Status)
	assert.Equal(t, "slot-B", received[1].PlacementID)
}

func TestFailuresAreDistinctFromNoBids(t *testing.T) {
	env := newTestEnv()
	env.register(t, "p1", adapters.AdapterFunc(func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		respond(pbs.FailedResponses(req, &errortypes.BadServerResponse{Message: "500"})...)
	}), adapters.Settings{})
	env.register(t, "p2", noBid(), adapters.Settings{})

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1", "p2")}, 0))
	waitClosed(t, a)

	statuses := map[string]pbs.BidStatus{}
	for _, r := range a.ReceivedBids() {
		statuses[r.Bidder] = r.Status
	}
	assert.Equal(t, map[string]pbs.BidStatus{"p1": pbs.BidStatusFailed, "p2": pbs.BidStatusNoBid}, statuses)
	assert.Equal(t, pbs.TargetingOutcomeNoBids, entryFor(t, a, "slot-A").Outcome)
}

func TestCloseIsIdempotent(t *testing.T) {
	env := newTestEnv()
	env.register(t, "p1", bidOn(1.00), adapters.Settings{})
	env.register(t, "p2", silent(), adapters.Settings{})

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1", "p2")}, 0))
	require.Eventually(t, func() bool { return len(a.ReceivedBids()) == 1 }, time.Second, time.Millisecond)

	a.Close()
	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, CloseReasonAborted, a.CloseReason())
	first, _ := a.Targeting()

	a.Close()
	env.clock.Add(10 * time.Second)
	a.Close()

	second, _ := a.Targeting()
	assert.Equal(t, first, second)
	assert.Equal(t, 1, env.events.closedCount())
	assert.Equal(t, []string{"p2"}, a.TimedOutBidders())
	assert.Equal(t, "p1", entryFor(t, a, "slot-A").Bidder)
}

func TestCloseBeforeRun(t *testing.T) {
	env := newTestEnv()
	a := env.manager.CreateAuction()
	a.Close()

	assert.Equal(t, StateClosed, a.State())
	entries, ok := a.Targeting()
	assert.True(t, ok)
	assert.Empty(t, entries)

	err := a.Run([]pbs.Placement{placement("slot-A", "p1")}, 0)
	assert.IsType(t, &errortypes.AuctionStateError{}, err)
	assert.Equal(t, 1, env.events.closedCount())
}

func TestRunTwiceFails(t *testing.T) {
	env := newTestEnv()
	env.register(t, "p1", noBid(), adapters.Settings{})
	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1")}, 0))
	err := a.Run([]pbs.Placement{placement("slot-A", "p1")}, 0)
	assert.IsType(t, &errortypes.AuctionStateError{}, err)
	waitClosed(t, a)
}

func TestLateResponsesDoNotChangeTargeting(t *testing.T) {
	env := newTestEnv()
	env.register(t, "p1", bidOn(1.00), adapters.Settings{})
	saved := make(chan adapters.ResponseFunc, 1)
	env.register(t, "p2", adapters.AdapterFunc(func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		saved <- respond
	}), adapters.Settings{})

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1", "p2")}, 100*time.Millisecond))
	respondLate := <-saved
	require.Eventually(t, func() bool { return len(a.ReceivedBids()) == 1 }, time.Second, time.Millisecond)
	env.clock.Add(100 * time.Millisecond)
	waitClosed(t, a)
	before, _ := a.Targeting()

	respondLate(pbs.NewBidResponse(&pbs.Bid{PlacementID: "slot-A", Price: 50}))

	after, _ := a.Targeting()
	assert.Equal(t, before, after)
	assert.Equal(t, "p1", entryFor(t, a, "slot-A").Bidder)
	late := a.LateResponses()
	require.Len(t, late, 1)
	assert.Equal(t, "p2", late[0].Bidder)

	errs := env.events.errors()
	require.NotEmpty(t, errs)
	assert.IsType(t, &errortypes.LateResponse{}, errs[len(errs)-1])
}

func TestMalformedBidsAreRejected(t *testing.T) {
	env := newTestEnv()
	env.register(t, "p1", adapters.AdapterFunc(func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		respond(
			pbs.NewBidResponse(&pbs.Bid{PlacementID: "slot-A", Price: -1}),
			pbs.NewBidResponse(&pbs.Bid{PlacementID: "slot-Z", Price: 9}),
		)
	}), adapters.Settings{})
	env.register(t, "p2", adapters.AdapterFunc(func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		respond(
			pbs.NewBidResponse(&pbs.Bid{ID: "dup", PlacementID: "slot-A", Price: 1}),
			pbs.NewBidResponse(&pbs.Bid{ID: "dup", PlacementID: "slot-A", Price: 3}),
			pbs.NewBidResponse(&pbs.Bid{PlacementID: "slot-A", Price: math.Inf(1)}),
		)
	}), adapters.Settings{})

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1", "p2")}, 0))
	waitClosed(t, a)

	assert.Equal(t, CloseReasonComplete, a.CloseReason())
	entry := entryFor(t, a, "slot-A")
	assert.Equal(t, "p2", entry.Bidder)
	assert.Equal(t, "dup", entry.BidID)
	pb, _ := entry.Keys.Get("hb_pb")
	assert.Equal(t, "1.00", pb)

	malformed := 0
	for _, err := range env.events.errors() {
		if _, ok := err.(*errortypes.MalformedBid); ok {
			malformed++
		}
	}
	assert.Equal(t, 4, malformed)
}

func TestBidsGetIDsAndBidder(t *testing.T) {
	env := newTestEnv()
	env.register(t, "p1", adapters.AdapterFunc(func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		respond(pbs.NewBidResponse(&pbs.Bid{PlacementID: "slot-A", Bidder: "someone-else", Price: 1}))
	}), adapters.Settings{})

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1")}, 0))
	waitClosed(t, a)

	bids := a.Bids()
	require.Len(t, bids, 1)
	assert.NotEmpty(t, bids[0].ID)
	assert.Equal(t, "p1", bids[0].Bidder)

	req, ok := a.BidderRequestForBid(bids[0].ID)
	require.True(t, ok)
	assert.Equal(t, "p1", req.Bidder)
	assert.Equal(t, a.ID(), req.AuctionID)
	assert.Equal(t, uint64(1000), req.TimeoutMillis)
}

func TestValidationWarnings(t *testing.T) {
	env := newTestEnv()
	validator, err := adapters.RequiredParams("siteId")
	require.NoError(t, err)
	env.register(t, "strict", bidOn(3.00), adapters.Settings{Params: validator})
	env.register(t, "p1", bidOn(1.00), adapters.Settings{})

	good := placement("slot-A", "strict", "p1")
	good.Bids[0].Params = json.RawMessage(`{"siteId": "abc"}`)
	bad := placement("slot-B", "strict", "unknown")

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{good, bad}, 0))
	waitClosed(t, a)

	warnings := a.Warnings()
	require.Len(t, warnings, 3)
	for _, w := range warnings {
		assert.IsType(t, &errortypes.ValidationError{}, w)
		assert.True(t, errortypes.IsWarning(w))
	}

	req, ok := a.BidderRequest("strict")
	require.True(t, ok)
	assert.Equal(t, []string{"slot-A"}, req.PlacementIDs())
	assert.Equal(t, "strict", entryFor(t, a, "slot-A").Bidder)
	assert.Equal(t, pbs.TargetingOutcomeNoBids, entryFor(t, a, "slot-B").Outcome)
	assert.False(t, a.HasBidder("unknown"))
}

func TestNoEligibleBidderClosesImmediately(t *testing.T) {
	env := newTestEnv()
	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "nobody")}, 0))

	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, CloseReasonEmpty, a.CloseReason())
	entries, ok := a.Targeting()
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, pbs.TargetingOutcomeNoBids, entries[0].Outcome)
}

func TestRequestsFollowFirstAppearance(t *testing.T) {
	env := newTestEnv()
	env.register(t, "p1", noBid(), adapters.Settings{})
	env.register(t, "p2", noBid(), adapters.Settings{})
	env.register(t, "p3", noBid(), adapters.Settings{})

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p2", "p1"), placement("slot-B", "p3", "p1")}, 0))
	waitClosed(t, a)

	var order []string
	for _, req := range a.BidderRequests() {
		order = append(order, req.Bidder)
	}
	assert.Equal(t, []string{"p2", "p1", "p3"}, order)
	req, _ := a.BidderRequest("p1")
	assert.Equal(t, []string{"slot-A", "slot-B"}, req.PlacementIDs())
	assert.Len(t, env.events.issued, 3)
}

func TestSettingsAreSnapshotAtDispatch(t *testing.T) {
	env := newTestEnv()
	hold := make(chan struct{})
	env.register(t, "p1", adapters.AdapterFunc(func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		<-hold
		bidOn(1.00)(ctx, req, respond)
	}), adapters.Settings{})

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1")}, 0))
	env.registry.RegisterDefaults("p1", adapters.Settings{
		TargetingKeys: []adapters.TargetingKeyRule{adapters.BidIDKey{TargetingKey: "late_key"}},
	})
	close(hold)
	waitClosed(t, a)

	_, found := entryFor(t, a, "slot-A").Keys.Get("late_key")
	assert.False(t, found)
}

func TestAdjustedPriceRule(t *testing.T) {
	env := newTestEnv()
	env.register(t, "p1", bidOn(2.00), adapters.Settings{PriceRule: adapters.AdjustedPrice{Factor: 0.5}})
	env.register(t, "p2", bidOn(1.50), adapters.Settings{})

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1", "p2")}, 0))
	waitClosed(t, a)

	assert.Equal(t, "p2", entryFor(t, a, "slot-A").Bidder)
}

func TestAlwaysUseBidKeysReachTargeting(t *testing.T) {
	env := newTestEnv()
	settings, err := amazon.DefaultSettings()
	require.NoError(t, err)
	env.register(t, "amazon", adapters.AdapterFunc(func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		respond(pbs.NewBidResponse(&pbs.Bid{
			ID:          "amzn-1",
			PlacementID: "slot-A",
			Price:       0.10,
			Width:       300,
			Height:      250,
			Meta:        map[string]string{amazon.TokenKey: "a300x250p2"},
		}))
		respond()
	}), settings)
	env.register(t, "p2", bidOn(2.00), adapters.Settings{})

	amazonParams := json.RawMessage(`{"amazonId": "1234", "width": 300, "height": 250, "size": "300x250"}`)
	slotA := placement("slot-A", "amazon", "p2")
	slotA.Bids[0].Params = amazonParams
	slotB := placement("slot-B", "amazon")
	slotB.Bids[0].Params = amazonParams

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{slotA, slotB}, 0))
	waitClosed(t, a)
	require.Empty(t, a.Warnings())

	entry := entryFor(t, a, "slot-A")
	assert.Equal(t, "p2", entry.Bidder)
	pb, _ := entry.Keys.Get("hb_pb")
	assert.Equal(t, "2.00", pb)
	token, _ := entry.Keys.Get("amznslots")
	assert.Equal(t, "a300x250p2", token)
	adID, _ := entry.Keys.Get("hb_adid_amazon")
	assert.Equal(t, "amzn-1", adID)

	// slot-B got no answer from amazon, so it has nothing to show.
	assert.False(t, entryFor(t, a, "slot-B").HasWinner())
}

func TestAlwaysUseBidWinnerHidesPlaceholderPrice(t *testing.T) {
	env := newTestEnv()
	settings, err := amazon.DefaultSettings()
	require.NoError(t, err)
	env.register(t, "amazon", adapters.AdapterFunc(func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		respond(pbs.NewBidResponse(&pbs.Bid{
			PlacementID: "slot-A",
			Price:       0.10,
			Meta:        map[string]string{amazon.TokenKey: "a728x90p1"},
		}))
	}), settings)

	slotA := placement("slot-A", "amazon")
	slotA.Bids[0].Params = json.RawMessage(`{"amazonId": "1234", "width": 728, "height": 90, "size": "728x90"}`)

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{slotA}, 0))
	waitClosed(t, a)

	entry := entryFor(t, a, "slot-A")
	assert.Equal(t, "amazon", entry.Bidder)
	_, hasPb := entry.Keys.Get("hb_pb")
	assert.False(t, hasPb)
	token, _ := entry.Keys.Get("amznslots")
	assert.Equal(t, "a728x90p1", token)
}

func TestPanickingAdapterFailsItsPlacements(t *testing.T) {
	env := newTestEnv()
	env.register(t, "boom", adapters.AdapterFunc(func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		panic("adapter bug")
	}), adapters.Settings{})
	env.register(t, "p1", bidOn(1.00), adapters.Settings{})

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "boom", "p1")}, 0))
	waitClosed(t, a)

	assert.Equal(t, CloseReasonComplete, a.CloseReason())
	assert.Equal(t, "p1", entryFor(t, a, "slot-A").Bidder)
	for _, r := range a.ReceivedBids() {
		if r.Bidder == "boom" {
			assert.Equal(t, pbs.BidStatusFailed, r.Status)
			assert.IsType(t, &errortypes.FailedToRequestBids{}, r.Err)
		}
	}
}

func TestAdapterContextIsCancelledOnClose(t *testing.T) {
	env := newTestEnv()
	cancelled := make(chan struct{})
	env.register(t, "p1", adapters.AdapterFunc(func(ctx context.Context, req *pbs.BidderRequest, respond adapters.ResponseFunc) {
		<-ctx.Done()
		close(cancelled)
	}), adapters.Settings{})

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run([]pbs.Placement{placement("slot-A", "p1")}, 0))
	a.Close()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("adapter context was not cancelled")
	}
}

func TestPlacementsAreCopied(t *testing.T) {
	env := newTestEnv()
	env.register(t, "p1", noBid(), adapters.Settings{})
	placements := []pbs.Placement{placement("slot-A", "p1")}

	a := env.manager.CreateAuction()
	require.NoError(t, a.Run(placements, 0))
	placements[0].ID = "changed"
	waitClosed(t, a)

	assert.Equal(t, "slot-A", a.Placements()[0].ID)
}
