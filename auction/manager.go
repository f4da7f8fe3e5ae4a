package auction

import (
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/prebid/prebid-auction/adapters"
	"github.com/prebid/prebid-auction/pbs"
)

// Manager creates auctions and keeps them around for lookups. Nothing is evicted automatically;
// callers remove auctions they no longer need.
type Manager struct {
	deps Deps

	mu       sync.RWMutex
	auctions map[string]*Auction
	// order holds the live auctions in creation order.
	order []*Auction
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:     deps.withDefaults(),
		auctions: make(map[string]*Auction),
	}
}

// Registry returns the bidder registry every auction of this manager dispatches through.
func (m *Manager) Registry() *adapters.Registry {
	return m.deps.Registry
}

// Clock returns the clock the manager's auctions keep time with.
func (m *Manager) Clock() clock.Clock {
	return m.deps.Clock
}

// CreateAuction makes a new auction in the Created state.
func (m *Manager) CreateAuction() *Auction {
	a := newAuction(newID(), m.deps)
	m.mu.Lock()
	m.auctions[a.id] = a
	m.order = append(m.order, a)
	m.mu.Unlock()
	return a
}

func (m *Manager) GetAuction(id string) (*Auction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.auctions[id]
	return a, ok
}

// GetSingleAuction returns the most recently created auction, creating one if there is none. It
// serves callers which only ever run one auction at a time.
func (m *Manager) GetSingleAuction() *Auction {
	m.mu.RLock()
	if n := len(m.order); n > 0 {
		a := m.order[n-1]
		m.mu.RUnlock()
		return a
	}
	m.mu.RUnlock()
	return m.CreateAuction()
}

// FindAuctionsByBidder returns the auctions which sent a request to bidder, oldest first.
func (m *Manager) FindAuctionsByBidder(bidder string) []*Auction {
	var found []*Auction
	for _, a := range m.Auctions() {
		if a.HasBidder(bidder) {
			found = append(found, a)
		}
	}
	return found
}

// FindBidderRequestByBidID returns the request which produced the bid, searching the newest auctions first.
func (m *Manager) FindBidderRequestByBidID(bidID string) (*pbs.BidderRequest, bool) {
	auctions := m.Auctions()
	for i := len(auctions) - 1; i >= 0; i-- {
		if req, ok := auctions[i].BidderRequestForBid(bidID); ok {
			return req, true
		}
	}
	return nil, false
}

// FindBid returns an accepted bid and the auction it belongs to.
func (m *Manager) FindBid(bidID string) (*pbs.Bid, *Auction, bool) {
	auctions := m.Auctions()
	for i := len(auctions) - 1; i >= 0; i-- {
		if bid, ok := auctions[i].Bid(bidID); ok {
			return bid, auctions[i], true
		}
	}
	return nil, nil, false
}

// RemoveAuction forgets the auction. It does not close it.
func (m *Manager) RemoveAuction(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.auctions[id]; !ok {
		return false
	}
	delete(m.auctions, id)
	for i, a := range m.order {
		if a.id == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear forgets every auction.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.auctions = make(map[string]*Auction)
	m.order = nil
	m.mu.Unlock()
}

// Auctions returns every live auction in creation order.
func (m *Manager) Auctions() []*Auction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Auction(nil), m.order...)
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}
