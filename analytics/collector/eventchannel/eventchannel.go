package eventchannel

import (
	"bytes"
	"compress/gzip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
)

type Metrics struct {
	bufferSize int64
	eventCount int64
}

// Limit holds the thresholds which trigger a flush. Whichever is reached first wins.
type Limit struct {
	MaxByteSize   int64
	MaxEventCount int64
	MaxTime       time.Duration
}

// EventChannel batches events into gzipped payloads and hands them to a Sender.
type EventChannel struct {
	gz   *gzip.Writer
	buff *bytes.Buffer

	ch          chan []byte
	endCh       chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	sending     sync.WaitGroup
	metrics     Metrics
	muxGzBuffer sync.RWMutex
	send        Sender
	limit       Limit
	clock       clock.Clock
}

func NewEventChannel(sender Sender, clock clock.Clock, limit Limit) *EventChannel {
	b := &bytes.Buffer{}
	gzw := gzip.NewWriter(b)

	c := EventChannel{
		gz:      gzw,
		buff:    b,
		ch:      make(chan []byte),
		endCh:   make(chan struct{}),
		done:    make(chan struct{}),
		metrics: Metrics{},
		send:    sender,
		limit:   limit,
		clock:   clock,
	}
	ticker := c.clock.Ticker(c.limit.MaxTime)
	go c.start(ticker)
	return &c
}

// Push queues an event. Events pushed after Close are dropped.
func (c *EventChannel) Push(event []byte) {
	select {
	case c.ch <- event:
	case <-c.done:
		glog.V(2).Info("[collector] channel closed, dropping event")
	}
}

// Close flushes whatever is buffered and waits for every pending payload to be sent.
func (c *EventChannel) Close() {
	c.closeOnce.Do(func() {
		close(c.endCh)
		<-c.done
		c.sending.Wait()
	})
}

func (c *EventChannel) buffer(event []byte) {
	c.muxGzBuffer.Lock()
	defer c.muxGzBuffer.Unlock()

	_, err := c.gz.Write(event)
	if err != nil {
		glog.Warning("[collector] fail to compress, skip the event")
		return
	}

	c.metrics.eventCount++
	c.metrics.bufferSize += int64(len(event))
}

func (c *EventChannel) isBufferFull() bool {
	c.muxGzBuffer.RLock()
	defer c.muxGzBuffer.RUnlock()
	return c.metrics.eventCount >= c.limit.MaxEventCount || c.metrics.bufferSize >= c.limit.MaxByteSize
}

func (c *EventChannel) reset() {
	c.gz.Reset(c.buff)
	c.buff.Reset()

	c.metrics.eventCount = 0
	c.metrics.bufferSize = 0
}

func (c *EventChannel) flush() {
	c.muxGzBuffer.Lock()
	defer c.muxGzBuffer.Unlock()

	if c.metrics.eventCount == 0 || c.metrics.bufferSize == 0 {
		return
	}

	defer c.reset()

	// writes the gzip footer
	err := c.gz.Close()
	if err != nil {
		glog.Warning("[collector] fail to close gzipped buffer")
		return
	}

	payload := make([]byte, c.buff.Len())
	_, err = c.buff.Read(payload)
	if err != nil {
		glog.Warning("[collector] fail to copy the buffer")
		return
	}

	c.sending.Add(1)
	go func() {
		defer c.sending.Done()
		if err := c.send(payload); err != nil {
			glog.Errorf("[collector] failed to send %d bytes: %v", len(payload), err)
		}
	}()
}

func (c *EventChannel) start(ticker *clock.Ticker) {
	defer close(c.done)
	defer ticker.Stop()

	for {
		select {
		case <-c.endCh:
			c.flush()
			return

		case event := <-c.ch:
			c.buffer(event)
			if c.isBufferFull() {
				c.flush()
			}

		case <-ticker.C:
			c.flush()
		}
	}
}
