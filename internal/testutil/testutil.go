// Package testutil connects integration tests to the Postgres and Redis
// instances of the local test profile, skipping when they are unreachable.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	// Import pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/target/namescreen/internal/migrate"
)

const (
	pingTimeout    = 2 * time.Second
	migrateTimeout = 30 * time.Second
)

// screeningTables lists tables in delete order (results reference jobs).
var screeningTables = []string{"record_results", "screening_jobs"}

// TestingTB is the subset of testing.TB the helpers need.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// TestDBConfig holds connection settings for the test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig reads TEST_DB_* variables. The port defaults to 55432,
// the docker-compose test profile; CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "55432"),
		User:     envOr("TEST_DB_USER", "namescreen"),
		Password: envOr("TEST_DB_PASSWORD", "namescreen"),
		DBName:   envOr("TEST_DB_NAME", "namescreen"),
	}
}

// DSN renders the config as a pgx URL, optionally scoped to a schema.
func (c TestDBConfig) DSN(schema string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := url.Values{"sslmode": {envOr("DB_SSL_MODE", "disable")}}
	if schema != "" {
		q.Set("search_path", schema+",public")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// SkipIfNoTestDB skips the test when the test database does not answer a ping.
// TEST_REQUIRE_DB or TEST_REQUIRE_INFRA turns the skip into a failure.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()
	db, err := sql.Open("pgx", DefaultTestDBConfig().DSN(""))
	if err == nil {
		defer closeQuietly(t, "ping db", db)
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		err = db.PingContext(ctx)
	}
	if err == nil {
		return
	}
	if required("TEST_REQUIRE_DB") {
		t.Fatal("test database not available:", err)
	}
	t.Skip("test database not available:", err)
}

// WithAutoDB runs fn against a migrated database. With TEST_DB_EPHEMERAL set,
// fn gets a private schema that is dropped afterwards; otherwise it shares the
// test database, whose screening tables are emptied before and after fn.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	SkipIfNoTestDB(t)

	cfg := DefaultTestDBConfig()
	schema := ""
	if envBool("TEST_DB_EPHEMERAL") {
		schema = createSchema(t, cfg)
		defer dropSchema(t, cfg, schema)
	}

	db := openMigrated(t, cfg.DSN(schema))
	defer closeQuietly(t, "test db", db)

	if schema == "" {
		truncate(t, db)
		defer truncate(t, db)
	}
	fn(db)
}

func openMigrated(t TestingTB, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal("open test db:", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		closeQuietly(t, "test db", db)
		t.Fatal("migrate test db:", err)
	}
	return db
}

func truncate(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()
	for _, table := range screeningTables {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil { // #nosec G202 -- fixed table list
			t.Fatalf("clean table %s: %v", table, err)
		}
	}
}

func createSchema(t TestingTB, cfg TestDBConfig) string {
	t.Helper()
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		t.Fatal("schema name:", err)
	}
	schema := "t_" + hex.EncodeToString(b)
	execAdmin(t, cfg, "CREATE SCHEMA "+schema)
	t.Logf("using ephemeral schema %s", schema)
	return schema
}

func dropSchema(t TestingTB, cfg TestDBConfig, schema string) {
	execAdmin(t, cfg, "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
}

func execAdmin(t TestingTB, cfg TestDBConfig, stmt string) {
	t.Helper()
	admin, err := sql.Open("pgx", cfg.DSN(""))
	if err != nil {
		t.Fatal("open admin db:", err)
	}
	defer closeQuietly(t, "admin db", admin)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, stmt); err != nil {
		t.Fatalf("%s: %v", stmt, err)
	}
}

// SetupTestRedis returns a client on a flushed test database, or skips.
// REDIS_ADDR overrides the candidate addresses; TEST_REDIS_DB picks the database
// index (default 1 so DB 0 of a developer instance is left alone).
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	candidates := []string{"localhost:56379", "redis:6379", "localhost:6379"}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		candidates = []string{addr}
	}
	db := 1
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			db = i
		}
	}

	var lastErr error
	for _, addr := range candidates {
		client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		lastErr = client.Ping(ctx).Err()
		if lastErr == nil {
			lastErr = client.FlushDB(ctx).Err()
		}
		cancel()
		if lastErr == nil {
			t.Logf("using redis %s db=%d", addr, db)
			return client
		}
		closeQuietly(t, "redis client", client)
	}

	if required("TEST_REQUIRE_REDIS") {
		t.Fatalf("redis not available for testing: %v", lastErr)
	}
	t.Skipf("redis not available for testing: %v", lastErr)
	return nil
}

// FixedTimeFunc returns a clock frozen at t.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func closeQuietly(t TestingTB, name string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		t.Logf("close %s: %v", name, err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func required(key string) bool {
	return envBool(key) || envBool("TEST_REQUIRE_INFRA")
}
