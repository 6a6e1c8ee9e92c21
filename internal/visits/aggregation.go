package visits

import (
	"fmt"
	"sort"
)

// Aggregation dimensions accepted by AggregateBy.
const (
	DimensionDate         = "date"
	DimensionDevice       = "device"
	DimensionBrowser      = "browser"
	DimensionOS           = "os"
	DimensionCountry      = "country"
	DimensionCity         = "city"
	DimensionSocialSource = "social_source"
	DimensionUTMSource    = "utm_source"
	DimensionPlatform     = "platform"
	DimensionBotLabel     = "bot_label"
)

// Dimensions that cap their result at topN entries.
const topN = 10

// Bucket is one aggregation group.
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// AggregateBy groups the given visits along one dimension and returns
// buckets sorted by descending count, ties broken by first-encountered
// order. Visits with no value for the dimension are skipped, not
// bucketed under a placeholder. Pure: no I/O, input order respected.
func AggregateBy(records []Visit, dimension string) ([]Bucket, error) {
	keyFn, capped, err := dimensionKey(dimension)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, record := range records {
		key := keyFn(&record)
		if key == "" {
			continue
		}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	buckets := make([]Bucket, 0, len(order))
	for _, key := range order {
		buckets = append(buckets, Bucket{Key: key, Count: counts[key]})
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Count > buckets[j].Count
	})

	if capped && len(buckets) > topN {
		buckets = buckets[:topN]
	}
	return buckets, nil
}

// dimensionKey returns the key extractor for a dimension and whether
// the result list is capped at the top entries.
func dimensionKey(dimension string) (func(*Visit) string, bool, error) {
	switch dimension {
	case DimensionDate:
		return func(v *Visit) string {
			return v.Timestamp.UTC().Format("2006-01-02")
		}, false, nil
	case DimensionDevice:
		return func(v *Visit) string { return deref(v.DeviceClass) }, false, nil
	case DimensionBrowser:
		return func(v *Visit) string { return deref(v.Browser) }, true, nil
	case DimensionOS:
		return func(v *Visit) string { return deref(v.OS) }, false, nil
	case DimensionCountry:
		return func(v *Visit) string { return deref(v.CountryCode) }, true, nil
	case DimensionCity:
		// City alone is ambiguous (Paris, France vs Paris, Texas), so
		// the bucket key carries the country code.
		return func(v *Visit) string {
			city := deref(v.City)
			if city == "" {
				return ""
			}
			if code := deref(v.CountryCode); code != "" {
				return fmt.Sprintf("%s, %s", city, code)
			}
			return city
		}, true, nil
	case DimensionSocialSource:
		return func(v *Visit) string { return deref(v.SocialSource) }, false, nil
	case DimensionUTMSource:
		return func(v *Visit) string { return deref(v.UTMSource) }, false, nil
	case DimensionPlatform:
		return func(v *Visit) string { return deref(v.Platform) }, false, nil
	case DimensionBotLabel:
		return func(v *Visit) string { return deref(v.BotLabel) }, false, nil
	default:
		return nil, false, fmt.Errorf("unknown aggregation dimension %q", dimension)
	}
}
