package errortypes

// ValidationError flags a (placement, bidder) pairing which could not be dispatched, usually
// because the placement is missing parameters the bidder requires.
//
// These are warnings: the pairing is skipped and the rest of the auction proceeds.
type ValidationError struct {
	Message string
}

func (err *ValidationError) Error() string {
	return err.Message
}

func (err *ValidationError) Code() int {
	return ValidationErrorCode
}

func (err *ValidationError) Severity() Severity {
	return SeverityWarning
}

// BidderTimeout should be used to flag that a bidder failed to report on a placement before the
// auction deadline expired. The placement is treated as a no-bid for that bidder and is not retried.
type BidderTimeout struct {
	Message string
}

func (err *BidderTimeout) Error() string {
	return err.Message
}

func (err *BidderTimeout) Code() int {
	return TimeoutErrorCode
}

func (err *BidderTimeout) Severity() Severity {
	return SeverityFatal
}

// LateResponse flags an adapter callback which arrived after the auction stopped accepting bids.
// Late responses are kept for auditing only and never change an auction's targeting.
type LateResponse struct {
	Message string
}

func (err *LateResponse) Error() string {
	return err.Message
}

func (err *LateResponse) Code() int {
	return LateResponseErrorCode
}

func (err *LateResponse) Severity() Severity {
	return SeverityWarning
}

// MalformedBid should be used when an adapter reports a bid which cannot be accepted: a bad price,
// a placement which wasn't requested from it, or a duplicate bid ID.
//
// The bid is rejected at ingestion. Other bids from the same bidder are unaffected.
type MalformedBid struct {
	Message string
}

func (err *MalformedBid) Error() string {
	return err.Message
}

func (err *MalformedBid) Code() int {
	return MalformedBidErrorCode
}

func (err *MalformedBid) Severity() Severity {
	return SeverityFatal
}

// BadServerResponse should be used when returning errors which are caused by bad/unexpected behavior on the remote server.
//
// For example:
//
//   - The external server responded with a 500
//   - The external server gave a malformed or unexpected response.
//
// These should not be used to log _connection_ errors (e.g. "couldn't find host"),
// which may indicate config issues for the host company.
type BadServerResponse struct {
	Message string
}

func (err *BadServerResponse) Error() string {
	return err.Message
}

func (err *BadServerResponse) Code() int {
	return BadServerResponseErrorCode
}

func (err *BadServerResponse) Severity() Severity {
	return SeverityFatal
}

// FailedToRequestBids covers the case where an adapter could not build or send its request at all,
// or panicked while doing so.
type FailedToRequestBids struct {
	Message string
}

func (err *FailedToRequestBids) Error() string {
	return err.Message
}

func (err *FailedToRequestBids) Code() int {
	return FailedToRequestBidsErrorCode
}

func (err *FailedToRequestBids) Severity() Severity {
	return SeverityFatal
}

// AuctionStateError is returned when an operation is not allowed in the auction's current state,
// for example calling Run twice.
type AuctionStateError struct {
	Message string
}

func (err *AuctionStateError) Error() string {
	return err.Message
}

func (err *AuctionStateError) Code() int {
	return AuctionStateErrorCode
}

func (err *AuctionStateError) Severity() Severity {
	return SeverityFatal
}

// BadInput should be used when returning errors which are caused by bad input to one of the
// HTTP endpoints or to the configuration.
type BadInput struct {
	Message string
}

func (err *BadInput) Error() string {
	return err.Message
}

func (err *BadInput) Code() int {
	return BadInputErrorCode
}

func (err *BadInput) Severity() Severity {
	return SeverityFatal
}
