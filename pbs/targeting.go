package pbs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"
)

// TargetingOutcome says whether a closed auction found a winner for a placement.
type TargetingOutcome string

const (
	TargetingOutcomeWinner TargetingOutcome = "winner"
	TargetingOutcomeNoBids TargetingOutcome = "no_bids"
)

// TargetingEntry is the resolved ad server key-value set for one placement.
//
// BidID only refers to the winning Bid. The Bid itself stays with the auction which received it.
type TargetingEntry struct {
	PlacementID string           `json:"placement_id"`
	Outcome     TargetingOutcome `json:"outcome"`
	BidID       string           `json:"bid_id,omitempty"`
	Bidder      string           `json:"bidder,omitempty"`
	Keys        KeyValues        `json:"keys"`
}

// HasWinner returns true if a bid won this placement.
func (e TargetingEntry) HasWinner() bool {
	return e.Outcome == TargetingOutcomeWinner
}

// KeyValue is a single ad server targeting pair.
type KeyValue struct {
	Key   string
	Value string
}

// KeyValues is an ordered set of targeting pairs. Keys are unique.
type KeyValues []KeyValue

// Get returns the value stored under key.
func (kvs KeyValues) Get(key string) (string, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Set stores value under key. An existing key keeps its position and takes the new value.
func (kvs *KeyValues) Set(key, value string) {
	for i := range *kvs {
		if (*kvs)[i].Key == key {
			(*kvs)[i].Value = value
			return
		}
	}
	*kvs = append(*kvs, KeyValue{Key: key, Value: value})
}

// SetIfAbsent stores value under key only if the key is not there yet.
func (kvs *KeyValues) SetIfAbsent(key, value string) bool {
	if _, ok := kvs.Get(key); ok {
		return false
	}
	*kvs = append(*kvs, KeyValue{Key: key, Value: value})
	return true
}

// Map returns the pairs as a plain map, for callers which don't care about order.
func (kvs KeyValues) Map() map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

// MarshalJSON writes the pairs as a JSON object, keeping their order.
func (kvs KeyValues) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range kvs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of string values, keeping the order the keys appear in.
func (kvs *KeyValues) UnmarshalJSON(data []byte) error {
	parsed := KeyValues{}
	err := jsonparser.ObjectEach(data, func(key []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		if dataType != jsonparser.String {
			return fmt.Errorf("targeting value for %q must be a string, got %s", key, dataType)
		}
		k, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		v, err := jsonparser.ParseString(value)
		if err != nil {
			return err
		}
		parsed.Set(k, v)
		return nil
	})
	if err != nil {
		return err
	}
	*kvs = parsed
	return nil
}
