package v1

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"tonelink/internal/visits"
)

const (
	msgInteractionAccepted = "Interaction accepted"
	errInvalidRequest      = "Invalid request"
)

// CreateInteractionParams is the beacon payload sent by landing pages
// for platform clicks, button clicks and client-side page views.
type CreateInteractionParams struct {
	ParentType  string `json:"parentType"`
	ParentID    uint   `json:"parentId"`
	Kind        string `json:"kind"`
	URL         string `json:"url"` // the page's own URL, carries UTM params
	Referrer    string `json:"referrer"`
	Platform    string `json:"platform"`
	ButtonLabel string `json:"buttonLabel"`
	UserAgent   string `json:"userAgent"`
}

// CreateInteractionHandler returns the public beacon endpoint handler.
// Sent via sendBeacon on page unload, so the response is best-effort:
// anything past payload validation is logged, never surfaced, and the
// client always gets 202.
func CreateInteractionHandler(service *visits.Service) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		var params CreateInteractionParams
		if err := ctx.Ctx.BodyParser(&params); err != nil {
			ctx.Logger.Debug("Failed to parse interaction payload", slog.Any("error", err))
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
		}

		userAgent := params.UserAgent
		if userAgent == "" {
			userAgent = ctx.Get("User-Agent")
		}
		referrer := params.Referrer
		if referrer == "" {
			referrer = ctx.Get("Referer")
		}

		req := visits.Request{
			ParentType:  params.ParentType,
			ParentID:    params.ParentID,
			Kind:        params.Kind,
			IP:          ClientIP(ctx.Ctx),
			UserAgent:   userAgent,
			Referrer:    referrer,
			PageQuery:   pageQueryFromURL(params.URL),
			Platform:    params.Platform,
			ButtonLabel: params.ButtonLabel,
		}

		if err := service.Ingest(ctx.Ctx.UserContext(), req); err != nil {
			// Best-effort analytics: an unregistered parent or a busy
			// database must stay invisible to the visitor's browser.
			ctx.Logger.Warn("Failed to ingest interaction",
				slog.String("parent_type", params.ParentType),
				slog.Uint64("parent_id", uint64(params.ParentID)),
				slog.Any("error", err))
		}

		return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
			"message": msgInteractionAccepted,
			"status":  http.StatusAccepted,
		})
	}
}

// EnrichParams scope an on-demand enrichment run.
type EnrichParams struct {
	ParentType string `json:"parentType"`
	ParentID   uint   `json:"parentId"`
	BatchSize  int    `json:"batchSize"`
}

// CreateEnrichHandler returns the manual enrichment trigger. The same
// sweep the scheduler runs, but scoped and on demand, e.g. right before
// an artist opens a release's analytics.
func CreateEnrichHandler(service *visits.Service) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		var params EnrichParams
		if len(ctx.Ctx.Body()) > 0 {
			if err := ctx.Ctx.BodyParser(&params); err != nil {
				return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
			}
		}

		scope := visits.EnrichScope{}
		if params.ParentType != "" {
			if params.ParentType != visits.ParentTypeLink && params.ParentType != visits.ParentTypeRelease {
				return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid parentType"})
			}
			scope.ParentType = params.ParentType
			scope.ParentID = params.ParentID
		}

		result, err := service.EnrichBatch(context.WithoutCancel(ctx.Ctx.UserContext()), scope, params.BatchSize)
		if err != nil {
			ctx.Logger.Error("Enrichment run failed", slog.Any("error", err))
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "enrichment failed"})
		}

		return ctx.Status(http.StatusOK).JSON(result)
	}
}

// pageQueryFromURL extracts the query parameters from the page URL the
// beacon reported. Malformed URLs contribute no parameters.
func pageQueryFromURL(raw string) url.Values {
	if raw == "" {
		return url.Values{}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}
