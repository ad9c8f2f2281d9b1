// Package integrationtest provides db helpers used in integration tests.
package integrationtest

import (
	"database/sql"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/cmd/httpserver"
	"github.com/go-petr/pet-ledger/internal/ledgerrepo"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
)

// ConfigPath is the location of app.env relative to a package directory two
// levels below the module root.
const ConfigPath = "../../configs"

// LoadConfig loads the application config or fails the test.
func LoadConfig(t *testing.T) configpkg.Config {
	t.Helper()

	config, err := configpkg.Load(ConfigPath)
	if err != nil {
		t.Fatalf(`configpkg.Load(%q) returned error: %v`, ConfigPath, err)
	}

	return config
}

// SetupServer returns test server backed by Postgres that cleans up database
// after each integration test.
func SetupServer(t *testing.T) *httpserver.Server {
	t.Helper()

	config := LoadConfig(t)

	zerolog.SetGlobalLevel(zerolog.FatalLevel)

	logger := middleware.GetLogger(config)

	db := SetupDB(t, config.DBDriver, config.DBSource)

	gin.SetMode(gin.ReleaseMode)

	server, err := httpserver.New(ledgerrepo.NewRepoPGS(db), logger, config)
	if err != nil {
		t.Fatalf(`httpserver.New(store, logger, config) returned error: %v`, err)
	}

	return server
}

// Flush flushes all db tables without droping.
//
// TRUNCATE does not fire the row level triggers that keep entries append-only.
func Flush(t *testing.T, db *sql.DB) {
	t.Helper()

	var tables string

	const query = `
	SELECT string_agg(table_name, ', ')
	FROM information_schema.tables
	WHERE table_schema='public' AND table_name <> 'schema_migrations';`

	row := db.QueryRow(query)

	err := row.Scan(&tables)
	if err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}

	if _, err := db.Exec(`TRUNCATE TABLE ` + tables + " RESTART IDENTITY CASCADE"); err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}
}

// SetupDB sets up connection with database for testing and then cleans it.
func SetupDB(t *testing.T, driver, source string) *sql.DB {
	t.Helper()

	db, err := dbpkg.Setup(driver, source)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	t.Cleanup(func() {
		Flush(t, db)

		if err := db.Close(); err != nil {
			t.Fatalf("db cleanup failed. err: %v", err)
		}
	})

	return db
}

// SetupTX sets up a database transaction to be used in tests.
//
// Once the tests are done it will rollback the transaction.
func SetupTX(t *testing.T, driver, source string) *sql.Tx {
	t.Helper()

	db, err := dbpkg.Setup(driver, source)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("db.Begin() failed: %v", err)
	}

	t.Cleanup(func() {
		if err := tx.Rollback(); err != nil {
			t.Fatalf("tx.Rollback() failed: %v", err)
		}
		if err := db.Close(); err != nil {
			t.Fatalf("db.Close() failed: %v", err)
		}
	})

	return tx
}
