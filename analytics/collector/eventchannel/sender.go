package eventchannel

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/golang/glog"
)

// Sender delivers one gzipped batch of newline-delimited events.
type Sender = func(payload []byte) error

func NewHttpSender(client *http.Client, endpoint string) Sender {
	return func(payload []byte) error {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			glog.Error(err)
			return err
		}

		req.Header.Set("Content-Type", "application/x-ndjson")
		req.Header.Set("Content-Encoding", "gzip")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("wrong code received %d from %s", resp.StatusCode, endpoint)
		}
		return nil
	}
}

// BuildEndpointSender posts batches to <baseUrl>/events/<stream>.
func BuildEndpointSender(client *http.Client, baseUrl string, stream string) (Sender, error) {
	endpoint, err := url.Parse(baseUrl)
	if err != nil {
		return nil, err
	}
	endpoint.Path = path.Join(endpoint.Path, "events", stream)
	return NewHttpSender(client, endpoint.String()), nil
}
