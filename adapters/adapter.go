package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/prebid/prebid-auction/pbs"
)

// Adapters connect the auction to a demand partner. Their only job is to price the placements in a
// BidderRequest and report back.
type Adapter interface {
	// Dispatch sends the request to the demand partner. It must not block on the partner's answer
	// for longer than ctx allows; ctx is cancelled as soon as the auction closes.
	//
	// Results are reported through respond, which may be called zero or more times. Each call is one
	// completion and may carry outcomes for any subset of the requested placements. A call with no
	// outcomes means "done": every placement not reported yet is treated as a no-bid.
	//
	// If respond is never called, the auction deadline covers it.
	Dispatch(ctx context.Context, request *pbs.BidderRequest, respond ResponseFunc)
}

// ResponseFunc delivers one completion for a BidderRequest. It is safe to call from any goroutine,
// and calls made after the auction closed are recorded as late responses.
type ResponseFunc func(responses ...pbs.BidResponse)

// AdapterFunc lets ordinary functions act as Adapters.
type AdapterFunc func(ctx context.Context, request *pbs.BidderRequest, respond ResponseFunc)

func (f AdapterFunc) Dispatch(ctx context.Context, request *pbs.BidderRequest, respond ResponseFunc) {
	f(ctx, request, respond)
}

// HTTPAdapterConfig groups options which control how HTTP requests are made by adapters.
type HTTPAdapterConfig struct {
	// See IdleConnTimeout on https://golang.org/pkg/net/http/#Transport
	IdleConnTimeout time.Duration
	// See MaxIdleConns on https://golang.org/pkg/net/http/#Transport
	MaxConns int
	// See MaxIdleConnsPerHost on https://golang.org/pkg/net/http/#Transport
	MaxConnsPerHost int
}

// HTTPAdapter holds the transport shared by every HTTP based adapter.
type HTTPAdapter struct {
	Transport *http.Transport
	Client    *http.Client
}

// DefaultHTTPAdapterConfig is an HTTPAdapterConfig that chooses sensible default values.
var DefaultHTTPAdapterConfig = &HTTPAdapterConfig{
	MaxConns:        50,
	MaxConnsPerHost: 10,
	IdleConnTimeout: 60 * time.Second,
}

// NewHTTPAdapter creates an HTTPAdapter which obeys the rules given by the config.
func NewHTTPAdapter(c *HTTPAdapterConfig) *HTTPAdapter {
	ts := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        c.MaxConns,
		MaxIdleConnsPerHost: c.MaxConnsPerHost,
		IdleConnTimeout:     c.IdleConnTimeout,
	}

	return &HTTPAdapter{
		Transport: ts,
		Client: &http.Client{
			Transport: ts,
		},
	}
}
