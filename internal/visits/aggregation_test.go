package visits

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func visitWith(set func(*Visit)) Visit {
	v := Visit{
		ParentType: ParentTypeLink,
		ParentID:   1,
		Kind:       KindView,
		Timestamp:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	set(&v)
	return v
}

func TestAggregateByCountryOrdering(t *testing.T) {
	var records []Visit
	for i := 0; i < 7; i++ {
		records = append(records, visitWith(func(v *Visit) { v.CountryCode = ptr("US") }))
	}
	for i := 0; i < 3; i++ {
		records = append(records, visitWith(func(v *Visit) { v.CountryCode = ptr("CA") }))
	}

	buckets, err := AggregateBy(records, DimensionCountry)
	require.NoError(t, err)
	assert.Equal(t, []Bucket{{Key: "US", Count: 7}, {Key: "CA", Count: 3}}, buckets)
}

func TestAggregateByTiesKeepFirstEncounteredOrder(t *testing.T) {
	records := []Visit{
		visitWith(func(v *Visit) { v.Browser = ptr("Safari") }),
		visitWith(func(v *Visit) { v.Browser = ptr("Chrome") }),
		visitWith(func(v *Visit) { v.Browser = ptr("Safari") }),
		visitWith(func(v *Visit) { v.Browser = ptr("Chrome") }),
	}

	buckets, err := AggregateBy(records, DimensionBrowser)
	require.NoError(t, err)
	assert.Equal(t, []Bucket{{Key: "Safari", Count: 2}, {Key: "Chrome", Count: 2}}, buckets)
}

func TestAggregateByCityKeyIncludesCountry(t *testing.T) {
	records := []Visit{
		visitWith(func(v *Visit) { v.City = ptr("Paris"); v.CountryCode = ptr("FR") }),
		visitWith(func(v *Visit) { v.City = ptr("Paris"); v.CountryCode = ptr("US") }),
		visitWith(func(v *Visit) { v.City = ptr("Paris"); v.CountryCode = ptr("FR") }),
	}

	buckets, err := AggregateBy(records, DimensionCity)
	require.NoError(t, err)
	assert.Equal(t, []Bucket{{Key: "Paris, FR", Count: 2}, {Key: "Paris, US", Count: 1}}, buckets)
}

func TestAggregateByDateDayGranularity(t *testing.T) {
	records := []Visit{
		visitWith(func(v *Visit) { v.Timestamp = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }),
		visitWith(func(v *Visit) { v.Timestamp = time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC) }),
		visitWith(func(v *Visit) { v.Timestamp = time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC) }),
	}

	buckets, err := AggregateBy(records, DimensionDate)
	require.NoError(t, err)
	assert.Equal(t, []Bucket{{Key: "2026-03-01", Count: 2}, {Key: "2026-03-02", Count: 1}}, buckets)
}

func TestAggregateBySkipsUndetermined(t *testing.T) {
	records := []Visit{
		visitWith(func(v *Visit) { v.Browser = ptr("Safari") }),
		visitWith(func(v *Visit) {}),
	}

	buckets, err := AggregateBy(records, DimensionBrowser)
	require.NoError(t, err)
	assert.Equal(t, []Bucket{{Key: "Safari", Count: 1}}, buckets)
}

func TestAggregateByTopNCap(t *testing.T) {
	var records []Visit
	for i := 0; i < 15; i++ {
		code := fmt.Sprintf("C%02d", i)
		// Descending counts so the cap keeps the first 10 codes.
		for j := 0; j < 15-i; j++ {
			records = append(records, visitWith(func(v *Visit) { v.CountryCode = ptr(code) }))
		}
	}

	buckets, err := AggregateBy(records, DimensionCountry)
	require.NoError(t, err)
	assert.Len(t, buckets, 10)
	assert.Equal(t, Bucket{Key: "C00", Count: 15}, buckets[0])
}

func TestAggregateByPlatform(t *testing.T) {
	records := []Visit{
		visitWith(func(v *Visit) { v.Platform = ptr("spotify") }),
		visitWith(func(v *Visit) { v.Platform = ptr("spotify") }),
		visitWith(func(v *Visit) { v.Platform = ptr("apple_music") }),
		visitWith(func(v *Visit) {}),
	}

	buckets, err := AggregateBy(records, DimensionPlatform)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, Bucket{Key: "spotify", Count: 2}, buckets[0])
	assert.Equal(t, Bucket{Key: "apple_music", Count: 1}, buckets[1])
}

func TestAggregateByUnknownDimension(t *testing.T) {
	_, err := AggregateBy(nil, "flavor")
	assert.Error(t, err)
}

func TestAggregateByBotLabel(t *testing.T) {
	records := []Visit{
		visitWith(func(v *Visit) { v.BotLabel = ptr("Google Bot") }),
		visitWith(func(v *Visit) { v.BotLabel = ptr("Google Bot") }),
		visitWith(func(v *Visit) { v.BotLabel = ptr("Facebook Link Preview") }),
	}

	buckets, err := AggregateBy(records, DimensionBotLabel)
	require.NoError(t, err)
	assert.Equal(t, []Bucket{
		{Key: "Google Bot", Count: 2},
		{Key: "Facebook Link Preview", Count: 1},
	}, buckets)
}
