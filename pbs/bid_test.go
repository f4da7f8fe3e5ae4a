package pbs

import (
	"errors"
	"math"
	"testing"

	"github.com/mxmCherry/openrtb"
	"github.com/stretchr/testify/assert"

	"github.com/prebid/prebid-auction/errortypes"
)

func TestBidHasUsablePrice(t *testing.T) {
	var nilBid *Bid
	assert.False(t, nilBid.HasUsablePrice())
	assert.False(t, (&Bid{Price: 0}).HasUsablePrice())
	assert.False(t, (&Bid{Price: math.Inf(1)}).HasUsablePrice())
	assert.True(t, (&Bid{Price: 0.01}).HasUsablePrice())
}

func TestBidValidate(t *testing.T) {
	testCases := []struct {
		description string
		bid         Bid
		valid       bool
	}{
		{"valid", Bid{PlacementID: "slot-A", Price: 1.2}, true},
		{"zero price is valid", Bid{PlacementID: "slot-A"}, true},
		{"missing placement", Bid{Price: 1.2}, false},
		{"negative price", Bid{PlacementID: "slot-A", Price: -0.5}, false},
		{"NaN price", Bid{PlacementID: "slot-A", Price: math.NaN()}, false},
	}

	for _, test := range testCases {
		err := test.bid.Validate()
		if test.valid {
			assert.NoError(t, err, test.description)
		} else {
			var malformed *errortypes.MalformedBid
			assert.True(t, errors.As(err, &malformed), test.description)
		}
	}
}

func TestBidSize(t *testing.T) {
	assert.Equal(t, "300x250", (&Bid{Width: 300, Height: 250}).Size())
	assert.Equal(t, "", (&Bid{Width: 300}).Size())
}

func TestBidResponseKinds(t *testing.T) {
	assert.True(t, NoBidResponse("slot-A").IsNoBid())
	assert.False(t, NewBidResponse(&Bid{PlacementID: "slot-A"}).IsNoBid())

	req := &BidderRequest{Placements: []PlacementRequest{{PlacementID: "a"}, {PlacementID: "b"}}}
	failed := FailedResponses(req, errors.New("boom"))
	assert.Len(t, failed, 2)
	assert.Equal(t, "b", failed[1].PlacementID)
	assert.False(t, failed[0].IsNoBid())
}

func TestPlacementCloneIsDeep(t *testing.T) {
	original := Placement{
		ID:    "slot-A",
		Sizes: []openrtb.Format{{W: 300, H: 250}},
		Bids:  []PlacementBid{{Bidder: "amazon", Params: []byte(`{"amazonId":"1"}`)}},
	}
	clone := original.Clone()
	original.Sizes[0].W = 728
	original.Bids[0].Params[2] = 'X'

	assert.Equal(t, uint64(300), clone.Sizes[0].W)
	assert.Equal(t, `{"amazonId":"1"}`, string(clone.Bids[0].Params))
	assert.Equal(t, []string{"amazon"}, clone.Bidders())
}
