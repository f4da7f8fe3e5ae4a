package filesystem

import (
	"bytes"
	"fmt"

	"github.com/chasex/glog"
	"github.com/prebid/prebid-auction/analytics"
)

type jsonable interface {
	ToJSON() ([]byte, error)
}

// Module that can perform transactional logging
type FileLogger struct {
	Logger *glog.Logger
}

// Writes RequestIssuedObject to file
func (f *FileLogger) LogRequestIssued(o *analytics.RequestIssuedObject) {
	f.write(analytics.RequestIssued, o)
}

// Writes BidReceivedObject to file
func (f *FileLogger) LogBidReceived(o *analytics.BidReceivedObject) {
	f.write(analytics.BidReceived, o)
}

// Writes BidderTimeoutObject to file
func (f *FileLogger) LogBidderTimeout(o *analytics.BidderTimeoutObject) {
	f.write(analytics.BidderTimeout, o)
}

// Writes AuctionClosedObject to file
func (f *FileLogger) LogAuctionClosed(o *analytics.AuctionClosedObject) {
	f.write(analytics.AuctionClosed, o)
}

// Writes BidWonObject to file
func (f *FileLogger) LogBidWon(o *analytics.BidWonObject) {
	f.write(analytics.BidWon, o)
}

// Writes AuctionErrorObject to file
func (f *FileLogger) LogAuctionError(o *analytics.AuctionErrorObject) {
	f.write(analytics.AuctionError, o)
}

func (f *FileLogger) Shutdown() {
	f.Logger.Flush()
}

func (f *FileLogger) write(eventType string, o jsonable) {
	var b bytes.Buffer
	b.WriteString(jsonify(eventType, o))
	f.Logger.Debug(b.String())
	f.Logger.Flush()
}

func jsonify(eventType string, o jsonable) string {
	data, err := o.ToJSON()
	if err != nil {
		return fmt.Sprintf("Transactional Logs Error: %s object badly formed %v", eventType, err)
	}
	return string(data)
}

// Method to initialize the analytic module
func NewFileLogger(filename string) (analytics.Module, error) {
	options := glog.LogOptions{
		File:  filename,
		Flag:  glog.LstdFlags,
		Level: glog.Ldebug,
		Mode:  glog.R_Day,
	}
	if logger, err := glog.New(options); err == nil {
		return &FileLogger{
			logger,
		}, nil
	} else {
		return nil, err
	}
}
