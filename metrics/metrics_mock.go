package metrics

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MetricsEngineMock is mock for the MetricsEngine interface
type MetricsEngineMock struct {
	mock.Mock
}

// RecordConnectionAccept mock
func (me *MetricsEngineMock) RecordConnectionAccept(success bool) {
	me.Called(success)
}

// RecordConnectionClose mock
func (me *MetricsEngineMock) RecordConnectionClose(success bool) {
	me.Called(success)
}

// RecordAuction mock
func (me *MetricsEngineMock) RecordAuction(labels Labels) {
	me.Called(labels)
}

// RecordPlacements mock
func (me *MetricsEngineMock) RecordPlacements(labels Labels, numPlacements int) {
	me.Called(labels, numPlacements)
}

// RecordAuctionTime mock
func (me *MetricsEngineMock) RecordAuctionTime(labels Labels, length time.Duration) {
	me.Called(labels, length)
}

// RecordAdapterRequest mock
func (me *MetricsEngineMock) RecordAdapterRequest(labels AdapterLabels) {
	me.Called(labels)
}

// RecordAdapterBidReceived mock
func (me *MetricsEngineMock) RecordAdapterBidReceived(labels AdapterLabels, hasAdm bool) {
	me.Called(labels, hasAdm)
}

// RecordAdapterPrice mock
func (me *MetricsEngineMock) RecordAdapterPrice(labels AdapterLabels, cpm float64) {
	me.Called(labels, cpm)
}

// RecordAdapterTime mock
func (me *MetricsEngineMock) RecordAdapterTime(labels AdapterLabels, length time.Duration) {
	me.Called(labels, length)
}

// RecordAdapterPanic mock
func (me *MetricsEngineMock) RecordAdapterPanic(labels AdapterLabels) {
	me.Called(labels)
}

// RecordLateResponse mock
func (me *MetricsEngineMock) RecordLateResponse(labels AdapterLabels) {
	me.Called(labels)
}

// RecordLiveAuctions mock
func (me *MetricsEngineMock) RecordLiveAuctions(count int) {
	me.Called(count)
}
