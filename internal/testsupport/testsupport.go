package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tonelink/internal"
	"tonelink/internal/config"
	"tonelink/internal/links"
	"tonelink/internal/releases"
	"tonelink/internal/visits"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with tonelink's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all tonelink models for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&links.ShortLink{},
		&releases.ReleasePage{},
		&visits.Visit{},
	}
}

// SetupTestDB creates a test database with all tonelink models migrated.
// Uses a named in-memory database with cache=shared so multiple
// connections within a test share the same database. Cached by root test
// name so subtests reuse the outer database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set TONELINK_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}
	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CreateTestLink creates a short link in the database
func CreateTestLink(t *testing.T, db *gorm.DB, slug, targetURL string) links.ShortLink {
	t.Helper()

	link := links.ShortLink{Slug: slug, TargetURL: targetURL, Title: "Test Link"}
	require.NoError(t, links.CreateLink(db, &link))
	return link
}

// CreateTestRelease creates a release page in the database
func CreateTestRelease(t *testing.T, db *gorm.DB, slug string) releases.ReleasePage {
	t.Helper()

	release := releases.ReleasePage{
		Slug:        slug,
		ArtistName:  "Test Artist",
		Title:       "Test Release",
		ReleaseType: "single",
	}
	require.NoError(t, release.SetPlatformLinks([]releases.PlatformLink{
		{Platform: "spotify", URL: "https://open.spotify.com/track/test"},
		{Platform: "apple_music", URL: "https://music.apple.com/album/test"},
	}))
	require.NoError(t, releases.CreateRelease(db, &release))
	return release
}

// CreateTestVisit stores a visit directly, bypassing the ingest pipeline
func CreateTestVisit(t *testing.T, db *gorm.DB, visit visits.Visit) visits.Visit {
	t.Helper()

	if visit.Timestamp.IsZero() {
		visit.Timestamp = time.Now().UTC()
	}
	if visit.Kind == "" {
		visit.Kind = visits.KindView
	}
	if visit.EnrichmentStatus == "" {
		visit.EnrichmentStatus = visits.EnrichmentPending
	}
	require.NoError(t, db.Create(&visit).Error)
	return visit
}

// CreateMinimalTestApp creates a test Fiber app with all routes mounted
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	// Mirror cartridge's own testsupport server setup: the Sec-Fetch-Site
	// CSRF middleware rejects httptest requests, which never carry the
	// browser-only header.
	cfg.EnableRequestLogger = false
	cfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
