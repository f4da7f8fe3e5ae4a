package adapters

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prebid/prebid-auction/config"
)

// Builder constructs a bidder's Adapter along with the default Settings it ships with.
type Builder func(bidder string, cfg config.Adapter, client *http.Client) (Adapter, Settings, error)

const metaKeyPrefix = "meta:"

// ApplyConfig layers the host's overrides for a bidder on top of the adapter's defaults.
func ApplyConfig(defaults Settings, cfg config.Adapter) (Settings, error) {
	settings := defaults.Clone()
	if cfg.AlwaysUseBid != nil {
		settings.AlwaysUseBid = *cfg.AlwaysUseBid
	}
	if cfg.BidAdjustment > 0 && cfg.BidAdjustment != 1 {
		settings.PriceRule = AdjustedPrice{Factor: cfg.BidAdjustment}
	}
	if len(cfg.TargetingKeys) > 0 {
		rules := make([]TargetingKeyRule, 0, len(cfg.TargetingKeys))
		for _, key := range cfg.TargetingKeys {
			rule, err := parseKeyRule(key)
			if err != nil {
				return Settings{}, err
			}
			rules = append(rules, rule)
		}
		settings.TargetingKeys = rules
	}
	if len(cfg.RequiredParams) > 0 {
		validator, err := RequiredParams(cfg.RequiredParams...)
		if err != nil {
			return Settings{}, err
		}
		settings.Params = validator
	}
	return settings, nil
}

func parseKeyRule(key config.TargetingKey) (TargetingKeyRule, error) {
	switch {
	case key.Source == "bid_id":
		return BidIDKey{TargetingKey: key.Key}, nil
	case strings.HasPrefix(key.Source, metaKeyPrefix) && len(key.Source) > len(metaKeyPrefix):
		return MetaKey{TargetingKey: key.Key, Field: strings.TrimPrefix(key.Source, metaKeyPrefix)}, nil
	}
	return nil, fmt.Errorf("targeting key %s has unknown source %q. Expected bid_id or meta:<field>", key.Key, key.Source)
}
