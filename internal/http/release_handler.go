package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	v1 "tonelink/api/v1"
	"tonelink/internal/releases"
	"tonelink/internal/visits"
)

// ReleaseShowAction returns the release landing page handler. It serves
// the page data the client renders and logs the view; analytics errors
// stay invisible to the visitor.
func ReleaseShowAction(service *visits.Service) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		slug := ctx.Ctx.Params("slug")
		db := ctx.DBManager.GetConnection()

		release, err := releases.GetReleaseBySlug(db, slug)
		if err != nil {
			var notFoundErr *releases.ReleasePageNotFoundError
			if errors.As(err, &notFoundErr) {
				return ctx.Status(http.StatusNotFound).JSON(fiber.Map{"error": "release not found"})
			}
			ctx.Logger.Error("Failed to load release page", slog.String("slug", slug), slog.Any("error", err))
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}

		if err := service.Ingest(ctx.Ctx.UserContext(), visits.Request{
			ParentType: visits.ParentTypeRelease,
			ParentID:   release.ID,
			Kind:       visits.KindView,
			IP:         v1.ClientIP(ctx.Ctx),
			UserAgent:  ctx.Get("User-Agent"),
			Referrer:   ctx.Get("Referer"),
			PageQuery:  requestQuery(ctx.Ctx),
		}); err != nil {
			ctx.Logger.Warn("Failed to ingest release view",
				slog.String("slug", slug),
				slog.Any("error", err))
		}

		return ctx.Status(http.StatusOK).JSON(fiber.Map{
			"id":          release.ID,
			"slug":        release.Slug,
			"artistName":  release.ArtistName,
			"title":       release.Title,
			"coverArtUrl": release.CoverArtURL,
			"releaseType": release.ReleaseType,
			"platforms":   release.PlatformLinks(),
		})
	}
}
