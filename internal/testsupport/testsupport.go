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
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Riken-Shah/finding-me/internal"
	"github.com/Riken-Shah/finding-me/internal/config"
	"github.com/Riken-Shah/finding-me/internal/sessions"
	"github.com/Riken-Shah/finding-me/internal/tracking"
)

// SessionCookieName is the cookie set by the track endpoint in tests.
// Must match routes.go: cfg.AppName + "_session"
const SessionCookieName = "findingme_session"

// testDBCache caches test databases by root test name so setup helpers that
// capture the outer t still share one database across subtests.
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager.
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

func allModels() []any {
	return []any{
		&sessions.Session{},
		&tracking.PageView{},
		&tracking.Event{},
	}
}

// SetupTestDB creates a named in-memory database with cache=shared so every
// connection in a test sees the same data, migrates all models, and caches
// the handle by root test name.
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

// SetupTestDBManager creates a test DB manager plus a quiet logger.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set FINDINGME_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// CleanTables deletes rows from the given tables, or every non-system table
// when none are named.
func CleanTables(db *gorm.DB, tables []string) {
	if len(tables) == 0 {
		var tableNames []string
		db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)
		for _, name := range tableNames {
			if name != "migrations" && name != "schema_migrations" {
				tables = append(tables, name)
			}
		}
		if len(tables) == 0 {
			return
		}
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

// CreateTestSession inserts a session with sensible defaults and returns it.
func CreateTestSession(t *testing.T, db *gorm.DB, sessionID string, startTime time.Time) sessions.Session {
	t.Helper()

	session := sessions.Session{
		SessionID: sessionID,
		StartTime: startTime,
		PageCount: 1,
		IsBounce:  true,
		Device:    "desktop",
		Browser:   "chrome",
		OS:        "MacOS",
		Country:   "US",
		City:      "San Francisco",
	}
	require.NoError(t, db.Create(&session).Error)
	return session
}

// CreateTestPageView inserts a pageview row for an existing session.
func CreateTestPageView(t *testing.T, db *gorm.DB, sessionID, path string, timestamp time.Time) tracking.PageView {
	t.Helper()

	pv := tracking.PageView{
		SessionID: sessionID,
		PagePath:  path,
		Timestamp: timestamp,
	}
	require.NoError(t, db.Create(&pv).Error)
	return pv
}

// GetLogger returns a test logger that only prints errors.
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateMinimalTestApp creates a test Fiber app with all routes mounted.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test
	appConfig.PublicDirectory = "../../web"

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	cfg.StaticDirectory = appConfig.PublicDirectory
	cfg.StaticPrefix = appConfig.PublicAssetsUrlPrefix
	cfg.TemplatesDirectory = appConfig.PublicDirectory
	// Enable SecFetchSite validation in tests to match production behavior
	// This blocks requests without Sec-Fetch-Site header (server-to-server requests)
	cfg.EnableSecFetchSite = true
	cfg.SecFetchSiteAllowedValues = []string{"same-site", "same-origin"}

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
