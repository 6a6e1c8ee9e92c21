// Package v1_test contains tests for the API v1 handlers
package v1_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonelink/internal/config"
	"tonelink/internal/testsupport"
	"tonelink/internal/visits"
)

func TestMain(m *testing.M) {
	os.Setenv("TONELINK_ENV", "test")
	config.Reset()
	os.Exit(m.Run())
}

const uaIPhoneSafari = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	return decoded
}

func TestCreateInteractionHandler(t *testing.T) {
	t.Run("accepts platform click beacon", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		release := testsupport.CreateTestRelease(t, db, "midnight-drive")
		app := testsupport.CreateMinimalTestApp(t, db)

		payload := map[string]interface{}{
			"parentType": visits.ParentTypeRelease,
			"parentId":   release.ID,
			"kind":       visits.KindPlatformClick,
			"url":        "https://tonelink.app/r/midnight-drive?utm_campaign=launch",
			"referrer":   "https://l.instagram.com/",
			"platform":   "spotify",
			"userAgent":  uaIPhoneSafari,
		}

		resp := postJSON(t, app, "/api/v1/interactions", payload)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		respBody := decodeBody(t, resp)
		assert.Equal(t, "Interaction accepted", respBody["message"])
		assert.Equal(t, float64(http.StatusAccepted), respBody["status"])

		var visit visits.Visit
		require.NoError(t, db.First(&visit).Error)
		require.NotNil(t, visit.Platform)
		assert.Equal(t, "spotify", *visit.Platform)
		require.NotNil(t, visit.SocialSource)
		assert.Equal(t, "Instagram", *visit.SocialSource)
		require.NotNil(t, visit.UTMCampaign)
		assert.Equal(t, "launch", *visit.UTMCampaign)
		require.NotNil(t, visit.DeviceClass)
		assert.Equal(t, "mobile", *visit.DeviceClass)

		// No public IP reaches the test server, so there is nothing to
		// geolocate and nothing for the enrichment job to pick up later.
		assert.Nil(t, visit.IP)
		assert.Equal(t, visits.EnrichmentPending, visit.EnrichmentStatus)

		// Platform clicks never bump the view counter.
		var views int64
		require.NoError(t, db.Table("release_pages").Where("id = ?", release.ID).Select("views").Scan(&views).Error)
		assert.Equal(t, int64(0), views)
	})

	t.Run("rejects malformed payload", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		req := httptest.NewRequest("POST", "/api/v1/interactions", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("swallows ingest failures", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		// Unknown interaction kind: the beacon still gets 202 but no
		// visit is recorded.
		payload := map[string]interface{}{
			"parentType": visits.ParentTypeLink,
			"parentId":   1,
			"kind":       "hover",
			"userAgent":  uaIPhoneSafari,
		}

		resp := postJSON(t, app, "/api/v1/interactions", payload)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var count int64
		require.NoError(t, db.Model(&visits.Visit{}).Count(&count).Error)
		assert.Equal(t, int64(0), count)
	})
}

func TestCreateEnrichHandler(t *testing.T) {
	t.Run("rejects unknown parent type scope", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		resp := postJSON(t, app, "/api/v1/enrich", map[string]interface{}{
			"parentType": "playlist",
			"parentId":   1,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("runs with empty body and reports counts", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		req := httptest.NewRequest("POST", "/api/v1/enrich", nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		respBody := decodeBody(t, resp)
		assert.Equal(t, float64(0), respBody["total"])
		assert.Equal(t, float64(0), respBody["updated"])
		assert.Equal(t, float64(0), respBody["failed"])
	})
}

func TestAnalyticsShowHandler(t *testing.T) {
	t.Run("rejects unknown parent type", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		req := httptest.NewRequest("GET", "/api/v1/analytics/playlist/1", nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("splits audience from bots and names countries", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		link := testsupport.CreateTestLink(t, db, "drop", "https://open.spotify.com/track/1")
		app := testsupport.CreateMinimalTestApp(t, db)

		us := "US"
		unitedStates := "United States"
		isBot := true

		for i := 0; i < 2; i++ {
			testsupport.CreateTestVisit(t, db, visits.Visit{
				ParentType:  visits.ParentTypeLink,
				ParentID:    link.ID,
				Kind:        visits.KindView,
				CountryCode: &us,
				Country:     &unitedStates,
			})
		}
		botLabel := "Google Bot"
		testsupport.CreateTestVisit(t, db, visits.Visit{
			ParentType: visits.ParentTypeLink,
			ParentID:   link.ID,
			Kind:       visits.KindView,
			IsBot:      &isBot,
			BotLabel:   &botLabel,
		})

		req := httptest.NewRequest("GET", "/api/v1/analytics/link/"+itoa(link.ID), nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		respBody := decodeBody(t, resp)

		totals, ok := respBody["totals"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(2), totals["visits"])
		assert.Equal(t, float64(2), totals["views"])
		assert.Equal(t, float64(1), totals["bots"])
		assert.Equal(t, float64(0), totals["platformClicks"])

		aggregates, ok := respBody["aggregates"].(map[string]interface{})
		require.True(t, ok)

		countries, ok := aggregates["country"].([]interface{})
		require.True(t, ok)
		require.Len(t, countries, 1)
		top := countries[0].(map[string]interface{})
		assert.Equal(t, "US", top["key"])
		assert.Equal(t, "United States", top["name"])
		assert.Equal(t, float64(2), top["count"])

		botLabels, ok := aggregates["bot_label"].([]interface{})
		require.True(t, ok)
		require.Len(t, botLabels, 1)
	})

	t.Run("days filter excludes old visits", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		link := testsupport.CreateTestLink(t, db, "old-news", "https://example.com")
		app := testsupport.CreateMinimalTestApp(t, db)

		testsupport.CreateTestVisit(t, db, visits.Visit{
			ParentType: visits.ParentTypeLink,
			ParentID:   link.ID,
			Kind:       visits.KindView,
			Timestamp:  time.Now().UTC().AddDate(0, 0, -60),
		})
		testsupport.CreateTestVisit(t, db, visits.Visit{
			ParentType: visits.ParentTypeLink,
			ParentID:   link.ID,
			Kind:       visits.KindView,
		})

		req := httptest.NewRequest("GET", "/api/v1/analytics/link/"+itoa(link.ID)+"?days=30", nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		respBody := decodeBody(t, resp)
		totals := respBody["totals"].(map[string]interface{})
		assert.Equal(t, float64(1), totals["visits"])
	})
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
