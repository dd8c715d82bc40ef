// Package target opens the databases questions are asked against. Every
// handle is opened read-only at the driver level.
package target

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"

	"github.com/querymind/querymind/internal/connections"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// DB is an open target database.
type DB struct {
	SQL      *sql.DB
	Dialect  Dialect
	Name     string
	Database string
	Schema   string
}

func (d *DB) Close() error {
	if d == nil || d.SQL == nil {
		return nil
	}
	return d.SQL.Close()
}

func Open(ctx context.Context, profile connections.Profile, opts Options) (*DB, error) {
	dialect, err := DialectFor(profile.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := DataSourceName(profile)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s target: %w", dialect.Name, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s target: %w", dialect.Name, err)
	}

	schema := strings.TrimSpace(profile.Schema)
	if schema == "" {
		schema = dialect.DefaultSchema
	}
	return &DB{SQL: db, Dialect: dialect, Name: profile.Name, Database: databaseName(profile), Schema: schema}, nil
}

// databaseName is the label shown in schema descriptions: the postgres
// database, or the file name of an embedded database.
func databaseName(profile connections.Profile) string {
	if profile.Driver == connections.DriverDuckDB || profile.Driver == connections.DriverSQLite {
		return filepath.Base(profile.Database)
	}
	if profile.Database != "" {
		return profile.Database
	}
	if u, err := url.Parse(profile.DSN); err == nil {
		return strings.TrimPrefix(u.Path, "/")
	}
	return ""
}

// DataSourceName builds the driver DSN for a profile.
func DataSourceName(profile connections.Profile) (string, error) {
	switch profile.Driver {
	case connections.DriverPostgres, "":
		return postgresDSN(profile)
	case connections.DriverDuckDB:
		path := strings.TrimSpace(profile.Database)
		if path == "" {
			return "", fmt.Errorf("duckdb database path is required")
		}
		// External access covers file readers, replacement scans on paths,
		// ATTACH and extension installs.
		return path + "?access_mode=read_only&enable_external_access=false", nil
	case connections.DriverSQLite:
		path := strings.TrimSpace(profile.Database)
		if path == "" {
			return "", fmt.Errorf("sqlite database path is required")
		}
		return "file:" + path + "?mode=ro&_pragma=query_only(1)", nil
	default:
		return "", fmt.Errorf("unsupported driver %q", profile.Driver)
	}
}

func postgresDSN(profile connections.Profile) (string, error) {
	var u *url.URL
	if dsn := strings.TrimSpace(profile.DSN); dsn != "" {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse postgres dsn: %w", err)
		}
		u = parsed
	} else {
		if profile.Host == "" || profile.Database == "" {
			return "", fmt.Errorf("postgres host and database are required")
		}
		port := profile.Port
		if port == 0 {
			port = connections.DefaultPostgresPort
		}
		u = &url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(profile.Host, strconv.Itoa(port)),
			Path:   "/" + profile.Database,
		}
		if profile.User != "" {
			u.User = url.UserPassword(profile.User, profile.Password)
		}
	}

	query := u.Query()
	if profile.SSLMode != "" && query.Get("sslmode") == "" {
		query.Set("sslmode", profile.SSLMode)
	}
	if query.Get("application_name") == "" {
		query.Set("application_name", "querymind")
	}
	query.Set("default_transaction_read_only", "on")
	u.RawQuery = query.Encode()
	return u.String(), nil
}

type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Version string `json:"version,omitempty"`
}

// Test opens the profile, reads the server version and closes again.
// Connection failures are reported in the result, not as an error.
func Test(ctx context.Context, profile connections.Profile, opts Options) (TestResult, error) {
	if _, err := DialectFor(profile.Driver); err != nil {
		return TestResult{}, err
	}
	db, err := Open(ctx, profile, opts)
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}, nil
	}
	defer func() { _ = db.Close() }()

	version, err := db.Version(ctx)
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}, nil
	}
	return TestResult{Success: true, Message: "Connection successful", Version: version}, nil
}

func (d *DB) Version(ctx context.Context) (string, error) {
	var version string
	if err := d.SQL.QueryRowContext(ctx, d.Dialect.VersionQuery).Scan(&version); err != nil {
		return "", fmt.Errorf("read %s version: %w", d.Dialect.Name, err)
	}
	return version, nil
}
