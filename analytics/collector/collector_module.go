package collector

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docker/go-units"
	"github.com/golang/glog"

	"github.com/prebid/prebid-auction/analytics"
	"github.com/prebid/prebid-auction/analytics/collector/eventchannel"
	"github.com/prebid/prebid-auction/config"
)

const stream = "auction"

type jsonable interface {
	ToJSON() ([]byte, error)
}

// Module ships every auction event, one JSON document per line, to a remote collector in gzipped batches.
type Module struct {
	channel *eventchannel.EventChannel
}

func newLimit(count int, size, duration string) (eventchannel.Limit, error) {
	pDuration, err := time.ParseDuration(duration)
	if err != nil {
		return eventchannel.Limit{}, fmt.Errorf("invalid buffers.timeout %q: %v", duration, err)
	}
	pSize, err := units.FromHumanSize(size)
	if err != nil {
		return eventchannel.Limit{}, fmt.Errorf("invalid buffers.size %q: %v", size, err)
	}
	if count <= 0 || pSize <= 0 || pDuration <= 0 {
		return eventchannel.Limit{}, fmt.Errorf("collector buffers must be positive, got count=%d size=%d timeout=%s", count, pSize, pDuration)
	}
	return eventchannel.Limit{
		MaxByteSize:   pSize,
		MaxEventCount: int64(count),
		MaxTime:       pDuration,
	}, nil
}

func NewModule(client *http.Client, cfg config.CollectorConfig, clock clock.Clock) (analytics.Module, error) {
	limit, err := newLimit(cfg.Buffers.EventCount, cfg.Buffers.BufferSize, cfg.Buffers.Timeout)
	if err != nil {
		return nil, err
	}
	sender, err := eventchannel.BuildEndpointSender(client, cfg.Endpoint, stream)
	if err != nil {
		return nil, err
	}
	glog.Infof("[collector] sending events to %s (count=%d, size=%d, every %s)", cfg.Endpoint, limit.MaxEventCount, limit.MaxByteSize, limit.MaxTime)
	return NewModuleWithSender(sender, limit, clock), nil
}

func NewModuleWithSender(sender eventchannel.Sender, limit eventchannel.Limit, clock clock.Clock) *Module {
	return &Module{
		channel: eventchannel.NewEventChannel(sender, clock, limit),
	}
}

func (m *Module) LogRequestIssued(o *analytics.RequestIssuedObject) {
	m.push(analytics.RequestIssued, o)
}

func (m *Module) LogBidReceived(o *analytics.BidReceivedObject) {
	m.push(analytics.BidReceived, o)
}

func (m *Module) LogBidderTimeout(o *analytics.BidderTimeoutObject) {
	m.push(analytics.BidderTimeout, o)
}

func (m *Module) LogAuctionClosed(o *analytics.AuctionClosedObject) {
	m.push(analytics.AuctionClosed, o)
}

func (m *Module) LogBidWon(o *analytics.BidWonObject) {
	m.push(analytics.BidWon, o)
}

func (m *Module) LogAuctionError(o *analytics.AuctionErrorObject) {
	m.push(analytics.AuctionError, o)
}

func (m *Module) Shutdown() {
	glog.Info("[collector] shutdown, flushing pending events")
	m.channel.Close()
}

func (m *Module) push(eventType string, o jsonable) {
	payload, err := o.ToJSON()
	if err != nil {
		glog.Errorf("[collector] failed to serialize %s event: %v", eventType, err)
		return
	}
	var b bytes.Buffer
	b.Write(payload)
	b.WriteByte('\n')
	m.channel.Push(b.Bytes())
}
