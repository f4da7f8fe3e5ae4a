package config

import (
	"fmt"
	"strings"

	validator "github.com/asaskevich/govalidator"
)

type Adapter struct {
	// Endpoint is where the bidder's requests go. Some bidders ship a default.
	Endpoint string `mapstructure:"endpoint"`
	Disabled bool   `mapstructure:"disabled"`

	// The fields below override the defaults the bidder's adapter registers with.

	// AlwaysUseBid is left nil to keep the adapter's default.
	AlwaysUseBid *bool `mapstructure:"always_use_bid"`
	// BidAdjustment multiplies the bidder's prices when picking a winner. 0 and 1 both mean no adjustment.
	BidAdjustment float64 `mapstructure:"bid_adjustment"`
	// TargetingKeys replaces the bidder's own targeting keys when set.
	TargetingKeys []TargetingKey `mapstructure:"targeting_keys"`
	// RequiredParams replaces the bidder's params schema with a check that these params are present.
	RequiredParams []string `mapstructure:"required_params"`
}

// TargetingKey maps an ad server key to a value taken from the winning bid.
//
// Source is either "bid_id" or "meta:<field>", where field names a value the adapter put in the bid's meta.
type TargetingKey struct {
	Key    string `mapstructure:"key"`
	Source string `mapstructure:"source"`
}

// validateAdapters validates each enabled adapter's endpoint and overrides.
func validateAdapters(adapterMap map[string]Adapter, errs []error) []error {
	for adapterName, adapter := range adapterMap {
		if adapter.Disabled {
			continue
		}
		if adapter.Endpoint != "" && !isValidURL(adapter.Endpoint) {
			errs = append(errs, fmt.Errorf("The endpoint: %s for %s is not a valid URL", adapter.Endpoint, adapterName))
		}
		if adapter.BidAdjustment < 0 {
			errs = append(errs, fmt.Errorf("adapters.%s.bid_adjustment must not be negative, got %f", adapterName, adapter.BidAdjustment))
		}
		for _, key := range adapter.TargetingKeys {
			errs = validateTargetingKey(adapterName, key, errs)
		}
	}
	return errs
}

func validateTargetingKey(adapterName string, key TargetingKey, errs []error) []error {
	if key.Key == "" {
		return append(errs, fmt.Errorf("adapters.%s.targeting_keys has an entry with no key", adapterName))
	}
	if key.Source != "bid_id" && (!strings.HasPrefix(key.Source, "meta:") || key.Source == "meta:") {
		return append(errs, fmt.Errorf("adapters.%s.targeting_keys.%s has unknown source %q", adapterName, key.Key, key.Source))
	}
	return errs
}

// IsURL allows relative paths, whereas IsRequestURL requires an absolute one, so both are checked.
func isValidURL(endpoint string) bool {
	return validator.IsURL(endpoint) && validator.IsRequestURL(endpoint)
}
