package v1

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/pariz/gountries"

	"tonelink/internal/visits"
)

var countryQuery = gountries.New()

// CountryBucket is a country aggregate with its display name resolved
// from the ISO code.
type CountryBucket struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// AnalyticsShowHandler returns the aggregated analytics for one short
// link or release page. Bot traffic is excluded from the audience
// aggregates and reported separately by bot label.
func AnalyticsShowHandler() func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		parentType := ctx.Ctx.Params("parentType")
		if parentType != visits.ParentTypeLink && parentType != visits.ParentTypeRelease {
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid parent type"})
		}

		parentID, err := strconv.ParseUint(ctx.Ctx.Params("parentId"), 10, 32)
		if err != nil || parentID == 0 {
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid parent id"})
		}

		since := time.Time{}
		if days, err := strconv.Atoi(ctx.Ctx.Query("days")); err == nil && days > 0 {
			since = time.Now().UTC().AddDate(0, 0, -days)
		}

		db := ctx.DBManager.GetConnection()
		records, err := visits.GetVisitsForParent(db, parentType, uint(parentID), since)
		if err != nil {
			ctx.Logger.Error("Failed to load visits for analytics",
				slog.String("parent_type", parentType),
				slog.Uint64("parent_id", parentID),
				slog.Any("error", err))
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}

		var audience, bots []visits.Visit
		totals := fiber.Map{}
		var views, platformClicks, buttonClicks int
		for _, record := range records {
			if record.IsBot != nil && *record.IsBot {
				bots = append(bots, record)
				continue
			}
			audience = append(audience, record)
			switch record.Kind {
			case visits.KindView:
				views++
			case visits.KindPlatformClick:
				platformClicks++
			case visits.KindButtonClick:
				buttonClicks++
			}
		}
		totals["visits"] = len(audience)
		totals["views"] = views
		totals["platformClicks"] = platformClicks
		totals["buttonClicks"] = buttonClicks
		totals["bots"] = len(bots)

		aggregates := fiber.Map{}
		for _, dimension := range []string{
			visits.DimensionDate,
			visits.DimensionDevice,
			visits.DimensionBrowser,
			visits.DimensionOS,
			visits.DimensionCity,
			visits.DimensionSocialSource,
			visits.DimensionUTMSource,
			visits.DimensionPlatform,
		} {
			buckets, err := visits.AggregateBy(audience, dimension)
			if err != nil {
				return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
			}
			aggregates[dimension] = buckets
		}

		countries, err := visits.AggregateBy(audience, visits.DimensionCountry)
		if err != nil {
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		aggregates[visits.DimensionCountry] = withCountryNames(countries)

		botLabels, err := visits.AggregateBy(bots, visits.DimensionBotLabel)
		if err != nil {
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		aggregates[visits.DimensionBotLabel] = botLabels

		return ctx.Status(http.StatusOK).JSON(fiber.Map{
			"parentType": parentType,
			"parentId":   parentID,
			"totals":     totals,
			"aggregates": aggregates,
		})
	}
}

// withCountryNames resolves ISO country codes to display names. Codes
// gountries does not know keep the code as the name.
func withCountryNames(buckets []visits.Bucket) []CountryBucket {
	result := make([]CountryBucket, 0, len(buckets))
	for _, bucket := range buckets {
		name := bucket.Key
		if country, err := countryQuery.FindCountryByAlpha(bucket.Key); err == nil {
			name = country.Name.Common
		}
		result = append(result, CountryBucket{Key: bucket.Key, Name: name, Count: bucket.Count})
	}
	return result
}
