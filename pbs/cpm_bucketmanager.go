package pbs

import (
	"fmt"
	"math"
	"strconv"
)

const DEFAULT_PRECISION = 2

// PriceGranularity names one of the price bucket tables used to build the price targeting key.
type PriceGranularity string

const (
	PriceGranularityLow   PriceGranularity = "low"
	PriceGranularityMed   PriceGranularity = "med"
	PriceGranularityHigh  PriceGranularity = "high"
	PriceGranularityAuto  PriceGranularity = "auto"
	PriceGranularityDense PriceGranularity = "dense"
)

type priceBucket struct {
	min       float64
	max       float64
	increment float64
	precision int
}

var priceGranularities = map[PriceGranularity][]priceBucket{
	PriceGranularityLow: {
		{min: 0, max: 5, increment: 0.5},
	},
	PriceGranularityMed: {
		{min: 0, max: 20, increment: 0.1},
	},
	PriceGranularityHigh: {
		{min: 0, max: 20, increment: 0.01},
	},
	PriceGranularityDense: {
		{min: 0, max: 3, increment: 0.01},
		{min: 3, max: 8, increment: 0.05},
		{min: 8, max: 20, increment: 0.5},
	},
	PriceGranularityAuto: {
		{min: 0, max: 5, increment: 0.05},
		{min: 5, max: 10, increment: 0.1},
		{min: 10, max: 20, increment: 0.5},
	},
}

// Valid returns true if the granularity names a known bucket table.
func (g PriceGranularity) Valid() bool {
	_, ok := priceGranularities[g]
	return ok
}

// GetPriceBucket rounds the cpm down into its bucket. Prices above the highest bucket are capped at its max.
func GetPriceBucket(cpm float64, granularity PriceGranularity) (string, error) {
	buckets, ok := priceGranularities[granularity]
	if !ok {
		return "", fmt.Errorf("unknown price granularity %q", granularity)
	}
	cpmStr := getCpmStringValue(cpm, buckets)
	if cpmStr == "" {
		return "", fmt.Errorf("price %f does not fall in any %s price bucket", cpm, granularity)
	}
	return cpmStr, nil
}

func getCpmStringValue(cpm float64, buckets []priceBucket) string {
	cpmStr := ""
	var bucket *priceBucket
	bucketMax := 0.0
	// calculate max of highest bucket
	for i := range buckets {
		if buckets[i].max > bucketMax {
			bucketMax = buckets[i].max
		}
	}
	// calculate which bucket cpm is in
	for i := range buckets {
		currentBucket := buckets[i]
		if cpm > bucketMax {
			precision := DEFAULT_PRECISION
			if currentBucket.precision != 0 {
				precision = currentBucket.precision
			}
			cpmStr = strconv.FormatFloat(bucketMax, 'f', precision, 64)
		} else if cpm >= currentBucket.min && cpm <= currentBucket.max {
			bucket = &buckets[i]
		}
	}
	if bucket != nil {
		cpmStr = getCpmTarget(cpm, bucket.increment, bucket.precision)
	}
	return cpmStr
}

func getCpmTarget(cpm float64, increment float64, precision int) string {
	if precision == 0 {
		precision = DEFAULT_PRECISION
	}
	d := RoundUp(cpm/increment, precision)
	roundedCPM := math.Floor(d) * increment
	return strconv.FormatFloat(roundedCPM, 'f', precision, 64)
}

func RoundUp(input float64, places int) (newVal float64) {
	var round float64
	pow := math.Pow(10, float64(places))
	digit := pow * input
	round = math.Ceil(digit)
	newVal = round / pow
	return
}

// GetPriceBucketString returns the bucketed cpm for every known granularity.
func GetPriceBucketString(cpm float64) map[string]string {
	result := make(map[string]string, len(priceGranularities))
	for granularity, buckets := range priceGranularities {
		result[string(granularity)] = getCpmStringValue(cpm, buckets)
	}
	return result
}
