package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	v1 "tonelink/api/v1"
	"tonelink/internal/links"
	"tonelink/internal/visits"
)

// LinkRedirectAction returns the short link redirect handler. The visit
// is ingested before redirecting; ingestion is bounded by the geo budget
// and its errors never block or fail the redirect.
func LinkRedirectAction(service *visits.Service) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		slug := ctx.Ctx.Params("slug")
		db := ctx.DBManager.GetConnection()

		link, err := links.GetLinkBySlug(db, slug)
		if err != nil {
			var notFoundErr *links.LinkNotFoundError
			if errors.As(err, &notFoundErr) {
				return ctx.Status(http.StatusNotFound).JSON(fiber.Map{"error": "link not found"})
			}
			ctx.Logger.Error("Failed to load short link", slog.String("slug", slug), slog.Any("error", err))
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}

		if err := service.Ingest(ctx.Ctx.UserContext(), visits.Request{
			ParentType: visits.ParentTypeLink,
			ParentID:   link.ID,
			Kind:       visits.KindView,
			IP:         v1.ClientIP(ctx.Ctx),
			UserAgent:  ctx.Get("User-Agent"),
			Referrer:   ctx.Get("Referer"),
			PageQuery:  requestQuery(ctx.Ctx),
		}); err != nil {
			ctx.Logger.Warn("Failed to ingest link visit",
				slog.String("slug", slug),
				slog.Any("error", err))
		}

		return ctx.Redirect(link.TargetURL, http.StatusFound)
	}
}

// requestQuery collects the request's own query parameters, which carry
// the UTM tags appended to the short link.
func requestQuery(c *fiber.Ctx) url.Values {
	values := url.Values{}
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		values.Add(string(key), string(value))
	})
	return values
}
